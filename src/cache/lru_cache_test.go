package cache

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkLRU_Set(b *testing.B) {
	c := NewLRU[string, []float32](1000, 0)
	vec := make([]float32, 384)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(HashKey(strconv.Itoa(i)), vec)
	}
}

func BenchmarkLRU_ConcurrentAccess(b *testing.B) {
	c := NewLRU[string, int](1000, 5*time.Minute)
	for i := 0; i < 100; i++ {
		c.Set(HashKey(strconv.Itoa(i)), i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := HashKey(strconv.Itoa(i % 100))
			if i%2 == 0 {
				c.Get(key)
			} else {
				c.Set(key, i)
			}
			i++
		}
	})
}

func TestLRU_Basic(t *testing.T) {
	c := NewLRU[string, int](3, 0)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if val, ok := c.Get("a"); !ok || val != 1 {
		t.Errorf("expected 1, got %v", val)
	}

	// "b" is now least recently used.
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if c.Len() != 3 {
		t.Errorf("expected cache length 3, got %d", c.Len())
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestLRU_TTL(t *testing.T) {
	c := NewLRU[string, string](10, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Set("key", "value")
	if val, ok := c.Get("key"); !ok || val != "value" {
		t.Error("expected value to be present")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Error("expected value to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestLRU_DisabledWhenZeroCapacity(t *testing.T) {
	c := NewLRU[string, int](0, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected zero-capacity cache to miss")
	}
}

func TestHashKeySeparatesParts(t *testing.T) {
	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Fatal("expected part boundaries to change the key")
	}
	if HashKey("x") != HashKey("x") {
		t.Fatal("expected stable keys")
	}
}
