package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*TTLCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = clock.Now
	return c, clock
}

func TestTTLCache_GetSet(t *testing.T) {
	c, _ := newTestCache(60 * time.Second)
	c.Set(Key(KindQuote, "IBM"), 42.5)

	got, ok := c.Get("global_quote:IBM")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.(float64) != 42.5 {
		t.Errorf("expected 42.5, got %v", got)
	}
}

func TestTTLCache_Miss(t *testing.T) {
	c, _ := newTestCache(60 * time.Second)
	if _, ok := c.Get("daily:NOPE"); ok {
		t.Error("expected miss for key never set")
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c, clock := newTestCache(60 * time.Second)
	c.Set("daily:IBM", "rows")

	clock.Advance(60 * time.Second)
	if _, ok := c.Get("daily:IBM"); !ok {
		t.Fatal("entry should still be present at exactly ttl")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("daily:IBM"); ok {
		t.Fatal("entry should be absent after ttl")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed lazily, len=%d", c.Len())
	}
}

func TestTTLCache_SetResetsAge(t *testing.T) {
	c, clock := newTestCache(10 * time.Second)
	c.Set("news:IBM", 1)
	clock.Advance(8 * time.Second)
	c.Set("news:IBM", 2)
	clock.Advance(8 * time.Second)

	got, ok := c.Get("news:IBM")
	if !ok || got.(int) != 2 {
		t.Fatalf("expected refreshed value 2, got %v ok=%v", got, ok)
	}
}

func TestTTLCache_WallClockExpiry(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.Set("overview:IBM", "x")
	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("overview:IBM"); ok {
		t.Error("expected entry to expire")
	}
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("daily:S%d", n%5)
			c.Set(key, n)
			c.Get(key)
		}(i)
	}
	wg.Wait()
	if c.Len() != 5 {
		t.Errorf("expected 5 keys, got %d", c.Len())
	}
}
