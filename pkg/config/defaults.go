package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chrissnell/designflood/pkg/frequency"
)

// Default values applied by ApplyDefaults
const (
	DefaultListenAddr    = "0.0.0.0"
	DefaultPort          = 8080
	DefaultBackend       = "yaml"
	DefaultRatio         = 3.5
	DefaultExponentMode  = "derived"
	DefaultMuSource      = "storm"
	DefaultStep          = 1.0
	DefaultTolerance     = 1e-3
	DefaultMaxIterations = 10000
	DefaultTimeout       = "10s"
	DefaultCacheTTL      = "1h"
	DefaultRedisAddr     = "localhost:6379"
)

// ReloadParser parses dataset reload schedules: six fields, seconds first,
// or a descriptor such as @daily
var ReloadParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ApplyDefaults fills unset fields
func (c *ConfigData) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Dataset.Backend == "" {
		c.Dataset.Backend = DefaultBackend
	}

	d := &c.Defaults
	if d.Ratio == 0 {
		d.Ratio = DefaultRatio
	}
	if d.ExponentMode == "" {
		d.ExponentMode = DefaultExponentMode
	}
	if d.MuSource == "" {
		d.MuSource = DefaultMuSource
	}
	if d.Step == 0 {
		d.Step = DefaultStep
	}
	if d.Tolerance == 0 {
		d.Tolerance = DefaultTolerance
	}
	if d.MaxIterations == 0 {
		d.MaxIterations = DefaultMaxIterations
	}
	if len(d.Methods) == 0 {
		d.Methods = []string{"moment"}
	}
	if d.Timeout == "" {
		d.Timeout = DefaultTimeout
	}

	if c.Cache.Backend != "" && c.Cache.TTL == "" {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = DefaultRedisAddr
	}
}

// Validate checks a configuration after defaults have been applied
func (c *ConfigData) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		errs = append(errs, errors.New("server cert and key must be given together"))
	}

	switch c.Dataset.Backend {
	case "yaml", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported dataset backend %q, use 'yaml' or 'sqlite'", c.Dataset.Backend))
	}
	if c.Dataset.Path == "" {
		errs = append(errs, errors.New("dataset path is required"))
	}
	if c.Dataset.Reload != "" {
		if _, err := ReloadParser.Parse(c.Dataset.Reload); err != nil {
			errs = append(errs, fmt.Errorf("bad dataset reload schedule: %w", err))
		}
	}

	d := c.Defaults
	if !(d.Ratio > 0) {
		errs = append(errs, fmt.Errorf("ratio %g must be positive", d.Ratio))
	}
	if d.ExponentMode != "derived" && d.ExponentMode != "atlas" {
		errs = append(errs, fmt.Errorf("unknown exponent mode %q", d.ExponentMode))
	}
	if d.Concentration != "" && d.Concentration != "fit" && d.Concentration != "chart" {
		errs = append(errs, fmt.Errorf("unknown concentration method %q", d.Concentration))
	}
	if d.MuSource != "storm" && d.MuSource != "region" {
		errs = append(errs, fmt.Errorf("unknown infiltration source %q", d.MuSource))
	}
	if !(d.Step > 0) {
		errs = append(errs, fmt.Errorf("hydrograph step %g must be positive", d.Step))
	}
	if !(d.Tolerance > 0) {
		errs = append(errs, fmt.Errorf("solver tolerance %g must be positive", d.Tolerance))
	}
	if d.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("solver iteration limit %d must be positive", d.MaxIterations))
	}
	if _, err := frequency.ParseMethods(d.Methods...); err != nil {
		errs = append(errs, err)
	}
	if timeout, err := time.ParseDuration(d.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("bad timeout: %w", err))
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout %s must be positive", timeout))
	}

	switch c.Cache.Backend {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache backend %q, use 'memory' or 'redis'", c.Cache.Backend))
	}
	if c.Cache.Backend != "" {
		if ttl, err := time.ParseDuration(c.Cache.TTL); err != nil {
			errs = append(errs, fmt.Errorf("bad cache ttl: %w", err))
		} else if ttl <= 0 {
			errs = append(errs, fmt.Errorf("cache ttl %s must be positive", ttl))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// TimeoutDuration returns the per-computation timeout
func (d DefaultsData) TimeoutDuration() time.Duration {
	timeout, err := time.ParseDuration(d.Timeout)
	if err != nil || timeout <= 0 {
		timeout, _ = time.ParseDuration(DefaultTimeout)
	}
	return timeout
}

// FitMethods returns the configured estimation methods
func (d DefaultsData) FitMethods() []frequency.Method {
	methods, err := frequency.ParseMethods(d.Methods...)
	if err != nil {
		return []frequency.Method{frequency.MethodMoment}
	}
	return methods
}

// TTLDuration returns how long a cached result is kept
func (c CacheData) TTLDuration() time.Duration {
	ttl, err := time.ParseDuration(c.TTL)
	if err != nil || ttl <= 0 {
		ttl, _ = time.ParseDuration(DefaultCacheTTL)
	}
	return ttl
}
