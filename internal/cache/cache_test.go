package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("Get = %q, want v1", val)
	}

	// Miss returns nil, nil.
	val, err = c.Get(ctx, "missing")
	if err != nil || val != nil {
		t.Errorf("Get(missing) = %q, %v, want nil, nil", val, err)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	val, _ = c.Get(ctx, "k1")
	if val != nil {
		t.Error("value survived Delete")
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Error("expired entry still readable")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(ctx, key, []byte(key), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Touch k0 so k1 becomes the eviction candidate.
	if _, err := c.Get(ctx, "k0"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := c.Set(ctx, "k3", []byte("k3"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if val, _ := c.Get(ctx, "k1"); val != nil {
		t.Error("least recently used entry not evicted")
	}
	if val, _ := c.Get(ctx, "k0"); val == nil {
		t.Error("recently used entry evicted")
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("Stats = %d/%d, want 3/3", size, capacity)
	}
}

func TestLRUProfileRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	agg := &domain.CustomerAggregate{
		TxCount:       12,
		AmountMean:    340.5,
		AmountStd:     50.25,
		AmountSum:     -4086,
		CategoryCount: 4,
	}
	if err := c.SetProfile(ctx, "alice", agg, time.Minute); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	got, err := c.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got == nil || *got != *agg {
		t.Errorf("GetProfile = %+v, want %+v", got, agg)
	}

	got, err = c.GetProfile(ctx, "bob")
	if err != nil || got != nil {
		t.Errorf("GetProfile(miss) = %+v, %v, want nil, nil", got, err)
	}
}

func TestNewMemoryCache(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("New(memory) returned %T, want *LRUCache", c)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported cache type")
	}
}
