package cache

import (
	"context"
	"testing"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on empty cache", func(t *testing.T) {
		c := NewMemoryCache()
		if _, ok := c.Get(ctx, "a"); ok {
			t.Fatalf("Get() on empty cache should miss")
		}
	})

	t.Run("set then get hits", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set(ctx, "a", []byte("1"))
		v, ok := c.Get(ctx, "a")
		if !ok || string(v) != "1" {
			t.Fatalf("Get() = %q, %v, want %q, true", v, ok, "1")
		}
	})

	t.Run("invalidateAll drops every entry", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set(ctx, "a", []byte("1"))
		c.Set(ctx, "b", []byte("2"))
		c.InvalidateAll(ctx)
		if _, ok := c.Get(ctx, "a"); ok {
			t.Fatalf("Get(a) should miss after InvalidateAll")
		}
		if _, ok := c.Get(ctx, "b"); ok {
			t.Fatalf("Get(b) should miss after InvalidateAll")
		}
	})
}
