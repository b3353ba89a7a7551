// Package cache stores finished design flood results so identical requests
// against the same dataset are answered without recomputing.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/constants"
	"github.com/chrissnell/designflood/pkg/config"
)

// keyPrefix namespaces keys in a shared Redis.
const keyPrefix = constants.Name + ":result:"

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get reports found=false for a missing or expired key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New returns the cache selected by cfg, or nil when caching is disabled.
func New(ctx context.Context, cfg config.CacheData, logger *zap.SugaredLogger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		logger.Info("caching design flood results in memory")
		return NewMemory(clockwork.NewRealClock()), nil
	case "redis":
		rc, err := NewRedis(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("caching design flood results in Redis at %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
		return rc, nil
	}
	return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
}

// Key derives a cache key from the dataset fingerprint and a request. The
// request is hashed through its JSON form, so field order and map ordering
// never change the key.
func Key(fingerprint string, request any) (string, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(b)
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Marshal encodes v as MessagePack, naming fields by their json tags.
func Marshal(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode cached result: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data written by Marshal into v.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode cached result: %w", err)
	}
	return nil
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
