package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Stop()

	c.Set("U1", "Alice")

	value, ok := c.Get("U1")
	if !ok {
		t.Fatal("Expected U1 to exist")
	}
	if value != "Alice" {
		t.Errorf("Expected Alice, got %q", value)
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := New[int](time.Minute, time.Minute)
	defer c.Stop()

	value, ok := c.Get("nonexistent")
	if ok {
		t.Error("Expected key to not exist")
	}
	if value != 0 {
		t.Errorf("Expected zero value, got %v", value)
	}
}

func TestCache_SetWithTTL(t *testing.T) {
	c := New[string](time.Hour, time.Hour)
	defer c.Stop()

	c.SetWithTTL("short", "v", 20*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("Expected entry to exist immediately")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("Expected entry to be expired")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	defer c.Stop()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
	}
	c.Delete("k0")
	if _, ok := c.Get("k0"); ok {
		t.Error("Expected k0 to be deleted")
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", c.Len())
	}
}

func TestCache_CleanupPurgesExpired(t *testing.T) {
	c := New[string](10*time.Millisecond, 15*time.Millisecond)
	defer c.Stop()

	c.Set("a", "1")
	time.Sleep(60 * time.Millisecond)

	if c.Len() != 0 {
		t.Errorf("Expected cleanup to purge expired entries, got %d", c.Len())
	}
}

func TestCache_StopIdempotent(t *testing.T) {
	c := New[string](time.Minute, time.Minute)
	c.Stop()
	c.Stop()
}
