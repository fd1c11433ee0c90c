package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// 'a' becomes most recently used
		_, _ = smallCache.Get(ctx, "a")

		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := smallCache.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		profile := &domain.PartyProfile{PartyID: "alice", Occupation: "student", IncomeBracket: domain.IncomeLow}
		if err := SetJSON(ctx, cache, "profile:alice", profile, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var got domain.PartyProfile
		hit, err := GetJSON(ctx, cache, "profile:alice", &got)
		if err != nil || !hit {
			t.Fatalf("GetJSON hit=%v err=%v", hit, err)
		}
		if got.Occupation != "student" || got.IncomeBracket != domain.IncomeLow {
			t.Errorf("unexpected profile: %+v", got)
		}

		hit, err = GetJSON(ctx, cache, "profile:nobody", &got)
		if err != nil || hit {
			t.Errorf("expected miss, got hit=%v err=%v", hit, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := testCache.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	l1 := NewLRUCache(10)
	l2 := NewLRUCache(10)
	c := newTwoPhase(l1, l2, time.Minute)

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, _ := l2.Get(ctx, "k"); string(val) != "v" {
		t.Error("expected value written through to L2")
	}

	// L1 miss falls back to L2 and repopulates L1
	_ = l1.Delete(ctx, "k")
	val, err := c.Get(ctx, "k")
	if err != nil || string(val) != "v" {
		t.Fatalf("Get = %q, %v", val, err)
	}
	if val, _ := l1.Get(ctx, "k"); string(val) != "v" {
		t.Error("expected L1 to be repopulated")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if val, _ := c.Get(ctx, "k"); val != nil {
		t.Error("expected miss after delete")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
