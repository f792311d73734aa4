// Package kv defines the KV Backend contract: an ordered key-value store
// with single-partition transactions, prefix listing, and a hard
// per-operation batch cap, plus the Chunked KV wrapper that splits larger
// batches into chunks and integrates the Read Cache.
package kv

import "context"

// MaxBatchSize is the hard limit on keys per batched get/put/delete call
// a Backend implementation accepts in one round trip.
const MaxBatchSize = 128

// Entry is one row returned from a prefix listing.
type Entry struct {
	Key   string
	Value []byte
}

// ListOptions controls a prefix scan. Limit <= 0 means unbounded.
// StartAfter/End bound the scan to keys strictly after/strictly before the
// given keys (used for cursor pagination); both are optional.
type ListOptions struct {
	Limit      int
	Reverse    bool
	StartAfter string
	End        string
}

// Tx is a transactional view of a Backend: every Get/Put/Delete issued
// against it commits atomically together when the enclosing Transact call
// returns nil, and not at all if it returns an error.
type Tx interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend is the ordered key-value store the rest of graph-store is built
// on. Every batched method accepts at most MaxBatchSize keys; callers that
// need more must go through ChunkedBackend.
type Backend interface {
	// GetBatch fetches up to MaxBatchSize keys. Missing keys are simply
	// absent from the result map ("missing key => undefined").
	GetBatch(ctx context.Context, keys []string) (map[string][]byte, error)
	// PutBatch writes up to MaxBatchSize entries.
	PutBatch(ctx context.Context, entries map[string][]byte) error
	// DeleteBatch removes up to MaxBatchSize keys and reports how many
	// rows actually existed.
	DeleteBatch(ctx context.Context, keys []string) (int, error)
	// ListPrefix returns every row whose key starts with prefix, in key
	// order (or reverse key order when opts.Reverse is set).
	ListPrefix(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error)
	// Transact runs fn against a transactional view of the backend. All
	// effects commit together, or none do.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Purge deletes every row in the partition.
	Purge(ctx context.Context) error
	// Snapshot returns every key/value pair in the partition, for backup.
	Snapshot(ctx context.Context) (map[string][]byte, error)
}

// ErrBatchTooLarge is returned by a Backend implementation when a caller
// bypasses ChunkedBackend and exceeds MaxBatchSize directly.
type ErrBatchTooLarge struct {
	Size int
}

func (e *ErrBatchTooLarge) Error() string {
	return "kv: batch of size exceeds per-operation limit"
}
