// Package index implements the Index Engine: user-declared indexes on
// entity properties, maintained transactionally in lockstep with entity
// writes via the helper contracts the Entity Engine consumes.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/logging"
)

// DeclarationPrefix is the key prefix every index declaration lives under.
const DeclarationPrefix = "idx:"

// Declaration is a single declared index: { id, property }.
type Declaration struct {
	ID       string `json:"id"`
	Property string `json:"property"`
}

// Value is the Go-native representation of an entity payload: a
// JSON-DOM object (spec §9, "dynamically typed payloads").
type Value map[string]interface{}

// Engine maintains the set of declared indexes, refreshed by listing
// DeclarationPrefix under a mutex so readers never observe a partially
// loaded set (spec §4.3, §5 "shared resources").
type Engine struct {
	kv *kv.ChunkedBackend

	mu        sync.RWMutex
	snapshot  map[string]Declaration // id -> declaration
	log       *logging.Logger
}

// New builds an Engine over the given ChunkedBackend. Callers should call
// Refresh once at startup to populate the snapshot.
func New(backend *kv.ChunkedBackend) *Engine {
	return &Engine{kv: backend, snapshot: make(map[string]Declaration), log: logging.Root()}
}

func declID(property string) string { return DeclarationPrefix + property }

// Refresh reloads the declaration snapshot from the backend. Every index
// mutation triggers a refresh per the spec; callers may also call it at
// startup.
func (e *Engine) Refresh(ctx context.Context) error {
	entries, err := e.kv.ListPrefix(ctx, DeclarationPrefix, kv.ListOptions{})
	if err != nil {
		return errs.FromCause(err)
	}

	next := make(map[string]Declaration, len(entries))
	for _, entry := range entries {
		var d Declaration
		if err := json.Unmarshal(entry.Value, &d); err != nil {
			return errs.FromCause(err)
		}
		next[d.ID] = d
	}

	e.mu.Lock()
	e.snapshot = next
	e.mu.Unlock()
	return nil
}

// CreateIndex persists a new declaration and refreshes the snapshot.
func (e *Engine) CreateIndex(ctx context.Context, property string) (Declaration, error) {
	d := Declaration{ID: declID(property), Property: property}
	raw, err := json.Marshal(d)
	if err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	if err := e.kv.PutMany(ctx, map[string][]byte{d.ID: raw}); err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	if err := e.Refresh(ctx); err != nil {
		return Declaration{}, err
	}
	return d, nil
}

// UpdateIndex overwrites the declaration at id and refreshes the snapshot.
func (e *Engine) UpdateIndex(ctx context.Context, id, property string) (Declaration, error) {
	d := Declaration{ID: id, Property: property}
	raw, err := json.Marshal(d)
	if err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	if err := e.kv.PutMany(ctx, map[string][]byte{id: raw}); err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	if err := e.Refresh(ctx); err != nil {
		return Declaration{}, err
	}
	return d, nil
}

// ReadIndex returns the declaration at id, or NotFound.
func (e *Engine) ReadIndex(ctx context.Context, id string) (Declaration, error) {
	got, err := e.kv.GetMany(ctx, []string{id}, true)
	if err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	raw, ok := got[id]
	if !ok {
		return Declaration{}, errs.New(errs.NotFound, "index %q not found", id)
	}
	var d Declaration
	if err := json.Unmarshal(raw, &d); err != nil {
		return Declaration{}, errs.FromCause(err)
	}
	return d, nil
}

// RemoveIndex deletes the declaration at id and refreshes the snapshot,
// reporting whether anything was deleted.
func (e *Engine) RemoveIndex(ctx context.Context, id string) (bool, error) {
	n, err := e.kv.DeleteMany(ctx, []string{id})
	if err != nil {
		return false, errs.FromCause(err)
	}
	if err := e.Refresh(ctx); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListIndexes returns every declaration, keyed by id.
func (e *Engine) ListIndexes() map[string]Declaration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Declaration, len(e.snapshot))
	for k, v := range e.snapshot {
		out[k] = v
	}
	return out
}

// declarations returns a stable-ordered copy of the snapshot's properties,
// used by the entity-write helpers below so key fan-out order is
// deterministic (useful for tests and for dangling-key diffing).
func (e *Engine) declarations() []Declaration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Declaration, 0, len(e.snapshot))
	for _, d := range e.snapshot {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Property < out[j].Property })
	return out
}

// StorageKeyFor builds the index-entry key "<property>--<value>" for a
// scalar property value. Index values must be coerce-able to strings
// (spec §9); fmt.Sprint handles the JSON-DOM scalar types (string,
// float64, bool).
func StorageKeyFor(property string, value interface{}) string {
	return fmt.Sprintf("%s--%v", property, value)
}

// ExpandWrite returns the primary (key, value) entry plus one
// (storageKey, value) entry for every declared index whose property is
// present in value.
func (e *Engine) ExpandWrite(key string, value Value) []kv.Entry {
	raw, _ := json.Marshal(value)
	out := []kv.Entry{{Key: key, Value: raw}}
	for _, d := range e.declarations() {
		if v, ok := value[d.Property]; ok {
			out = append(out, kv.Entry{Key: StorageKeyFor(d.Property, v), Value: raw})
		}
	}
	return out
}

// IndexedKeysFor returns the set of index keys a given entity value would
// occupy under the current declarations.
func (e *Engine) IndexedKeysFor(value Value) []string {
	var out []string
	for _, d := range e.declarations() {
		if v, ok := value[d.Property]; ok {
			out = append(out, StorageKeyFor(d.Property, v))
		}
	}
	return out
}

// Dangling returns IndexedKeysFor(oldValue) minus IndexedKeysFor(newValue):
// the index rows an update must delete because the new state no longer
// justifies them.
func (e *Engine) Dangling(oldValue, newValue Value) []string {
	newKeys := make(map[string]bool)
	for _, k := range e.IndexedKeysFor(newValue) {
		newKeys[k] = true
	}
	var out []string
	for _, k := range e.IndexedKeysFor(oldValue) {
		if !newKeys[k] {
			out = append(out, k)
		}
	}
	return out
}
