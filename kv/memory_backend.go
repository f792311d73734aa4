package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is an in-memory Backend implementation used by tests that
// exercise the engines without a live Postgres instance, following the
// donor pack's in-memory storage idiom (a single mutex-guarded map with
// lexicographic listing).
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) > MaxBatchSize {
		return nil, &ErrBatchTooLarge{Size: len(keys)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryBackend) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if len(entries) > MaxBatchSize {
		return &ErrBatchTooLarge{Size: len(entries)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.data[k] = v
	}
	return nil
}

func (m *MemoryBackend) DeleteBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) > MaxBatchSize {
		return 0, &ErrBatchTooLarge{Size: len(keys)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) ListPrefix(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	m.mu.Lock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			if opts.StartAfter != "" && k <= opts.StartAfter {
				continue
			}
			if opts.End != "" && k >= opts.End {
				continue
			}
			keys = append(keys, k)
		}
	}
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = m.data[k]
	}
	m.mu.Unlock()

	sort.Strings(keys)
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: values[k]})
	}
	return out, nil
}

func (m *MemoryBackend) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage writes so a returning error leaves no partial effect, matching
	// the transactional boundary the Postgres backend gets for free.
	staged := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		staged[k] = v
	}
	deleted := map[string]bool{}

	txn := &memoryTx{staged: staged, deleted: deleted}
	if err := fn(ctx, txn); err != nil {
		return err
	}

	for k := range deleted {
		delete(staged, k)
	}
	m.data = staged
	return nil
}

func (m *MemoryBackend) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *MemoryBackend) Snapshot(ctx context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

type memoryTx struct {
	staged  map[string][]byte
	deleted map[string]bool
}

func (t *memoryTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.deleted[key] {
		return nil, false, nil
	}
	v, ok := t.staged[key]
	return v, ok, nil
}

func (t *memoryTx) Put(ctx context.Context, key string, value []byte) error {
	t.staged[key] = value
	delete(t.deleted, key)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, key string) error {
	delete(t.staged, key)
	t.deleted[key] = true
	return nil
}
