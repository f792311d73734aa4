// Package cache implements the Read Cache: a single-level mapping from
// encoded key to last-observed value, invalidated in bulk on every write.
package cache

import "context"

// Cache is the Read Cache contract. It has no eviction and no TTL; its
// scope is a single store partition and its lifetime matches the hosting
// process. Coherence rests entirely on callers invoking InvalidateAll
// before issuing a write, per the spec's cache policy glue.
type Cache interface {
	// Get returns the cached value for key, if present.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set records the last-observed value for key.
	Set(ctx context.Context, key string, value []byte)
	// InvalidateAll drops every cached entry.
	InvalidateAll(ctx context.Context)
}
