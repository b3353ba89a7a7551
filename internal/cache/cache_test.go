package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chrissnell/designflood/pkg/config"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock)

	if _, found, err := m.Get(ctx, "a"); found || err != nil {
		t.Fatalf("empty cache: found=%v err=%v", found, err)
	}

	if err := m.Set(ctx, "a", []byte("one"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, "b", []byte("two"), 0); err != nil {
		t.Fatal(err)
	}

	v, found, err := m.Get(ctx, "a")
	if err != nil || !found || string(v) != "one" {
		t.Fatalf("Get(a) = %q, %v, %v", v, found, err)
	}

	clock.Advance(time.Minute)
	if _, found, _ := m.Get(ctx, "a"); found {
		t.Error("entry a should have expired")
	}
	if v, found, _ := m.Get(ctx, "b"); !found || string(v) != "two" {
		t.Errorf("entry without ttl lost: %q, %v", v, found)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() after Close = %d", m.Len())
	}
}

func TestMemorySetCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	buf := []byte("abc")
	m.Set(ctx, "k", buf, 0)
	buf[0] = 'x'
	v, _, _ := m.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value changed with caller buffer: %q", v)
	}
}

func TestKey(t *testing.T) {
	type req struct {
		P float64 `json:"p"`
		F float64 `json:"f"`
	}

	a, err := Key("fp1", req{P: 0.01, F: 72})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Key("fp1", req{P: 0.01, F: 72})
	c, _ := Key("fp2", req{P: 0.01, F: 72})
	d, _ := Key("fp1", req{P: 0.02, F: 72})

	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("key %q lacks prefix", a)
	}
	if a != b {
		t.Error("same inputs gave different keys")
	}
	if a == c || a == d {
		t.Error("different inputs gave the same key")
	}

	if _, err := Key("fp", func() {}); err == nil {
		t.Error("expected an error for an unencodable request")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	type result struct {
		RunID string    `json:"run_id"`
		Peak  float64   `json:"peak_m3s"`
		Flow  []float64 `json:"flow"`
	}
	in := result{RunID: "r1", Peak: 1026.549, Flow: []float64{0, 1.5, 3}}

	b, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out result
	if err := Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.RunID != in.RunID || out.Peak != in.Peak || len(out.Flow) != 3 || out.Flow[1] != 1.5 {
		t.Errorf("round trip = %+v", out)
	}

	var m map[string]any
	if err := Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["peak_m3s"]; !ok {
		t.Errorf("fields not named by json tag: %v", m)
	}

	if err := Unmarshal([]byte{0xc1}, &out); err == nil {
		t.Error("expected a decode error")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, config.CacheData{}, nil)
	if err != nil || c != nil {
		t.Fatalf("disabled cache: %v, %v", c, err)
	}

	c, err = New(ctx, config.CacheData{Backend: "memory", TTL: "1h"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("memory backend gave %T", c)
	}

	if _, err := New(ctx, config.CacheData{Backend: "memcached"}, nil); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}
