// Package entity implements the Entity Engine: CRUD, batch, list, and
// range-query operations on entities, orchestrating the Index Engine on
// every mutation and the Relationship Engine on deletion.
package entity

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/index"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/logging"
	"github.com/kishek/graph-store/relationship"
)

// Value is the JSON-DOM entity payload shape, shared with the Index
// Engine so write fan-out never has to convert between representations.
type Value = index.Value

// KeyValue pairs an input key with its payload, used wherever the spec's
// map<key, payload> request bodies need a deterministic, order-preserving
// Go shape (batchCreate, batchUpdate, batchUpsert).
type KeyValue struct {
	Key   string
	Value Value
}

// RangePredicate is one `{property, min, max}` clause of a range query:
// retained only if min <= value[property] <= max.
type RangePredicate struct {
	Property string
	Min      float64
	Max      float64
}

// ListRequest is the query|list operation body.
type ListRequest struct {
	Key    *string
	Index  *string
	First  *int
	Last   *int
	Before *string
	After  *string
	Query  []RangePredicate
}

// Engine is the Entity Engine. It holds references, not ownership, to the
// Index and Relationship engines it orchestrates (spec §9 "cyclic
// references between engines").
type Engine struct {
	kv  *kv.ChunkedBackend
	idx *index.Engine
	rel *relationship.Engine
	log *logging.Logger
}

// New builds an Engine over backend, fanning writes out through idx and
// cascading deletes through rel.
func New(backend *kv.ChunkedBackend, idx *index.Engine, rel *relationship.Engine) *Engine {
	return &Engine{kv: backend, idx: idx, rel: rel, log: logging.Root()}
}

func withDefaultID(key string, value Value) Value {
	merged := make(Value, len(value)+1)
	for k, v := range value {
		merged[k] = v
	}
	if _, ok := merged["id"]; !ok {
		merged["id"] = key
	}
	return merged
}

func shallowMerge(current, patch Value) Value {
	merged := make(Value, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

func decodeValue(raw []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errs.FromCause(err)
	}
	return v, nil
}

// CreateQuery persists value at key, defaulting its id field to key, and
// fans the write out to every declared index in one transaction.
func (e *Engine) CreateQuery(ctx context.Context, key string, value Value) (Value, error) {
	merged := withDefaultID(key, value)
	entries := e.idx.ExpandWrite(key, merged)

	err := e.kv.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		for _, entry := range entries {
			if err := tx.Put(ctx, entry.Key, entry.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.FromCause(err)
	}
	return merged, nil
}

// BatchCreate expands every entry to its index rows and writes them all
// via Chunked KV, returning the caller-visible records in input order.
func (e *Engine) BatchCreate(ctx context.Context, entries []KeyValue) ([]Value, error) {
	writes := map[string][]byte{}
	merged := make([]Value, len(entries))

	for i, kvPair := range entries {
		m := withDefaultID(kvPair.Key, kvPair.Value)
		merged[i] = m
		for _, entry := range e.idx.ExpandWrite(kvPair.Key, m) {
			writes[entry.Key] = entry.Value
		}
	}

	if err := e.kv.PutMany(ctx, writes); err != nil {
		return nil, errs.FromCause(err)
	}
	return merged, nil
}

// resolveKey implements the key/index/index+"--"+key resolution rule
// shared by readQuery and batchRead (spec §4.5).
func resolveKey(key, idxName string) string {
	if idxName != "" {
		return idxName + "--" + key
	}
	return key
}

// ReadQuery resolves the storage key from key and optional idxName and
// returns the entity there, or NotFound if absent.
func (e *Engine) ReadQuery(ctx context.Context, key, idxName string) (Value, error) {
	storageKey := resolveKey(key, idxName)
	got, err := e.kv.GetMany(ctx, []string{storageKey}, true)
	if err != nil {
		return nil, errs.FromCause(err)
	}
	raw, ok := got[storageKey]
	if !ok {
		return nil, errs.New(errs.NotFound, "entity %q not found", storageKey)
	}
	return decodeValue(raw)
}

// BatchRead resolves every (key, idxName) pair and returns the results in
// input order, with a nil entry for every miss.
func (e *Engine) BatchRead(ctx context.Context, keys []string, idxName string) ([]Value, error) {
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = resolveKey(k, idxName)
	}

	got, err := e.kv.GetMany(ctx, storageKeys, true)
	if err != nil {
		return nil, errs.FromCause(err)
	}

	out := make([]Value, len(keys))
	for i, sk := range storageKeys {
		raw, ok := got[sk]
		if !ok {
			continue
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// UpdateQuery requires an existing entity at key, shallow-merges patch
// over it, re-expands to index rows, and deletes any index row the
// merged value no longer justifies — all in one transaction.
func (e *Engine) UpdateQuery(ctx context.Context, key string, patch Value) (Value, error) {
	got, err := e.kv.GetMany(ctx, []string{key}, true)
	if err != nil {
		return nil, errs.FromCause(err)
	}
	raw, ok := got[key]
	if !ok {
		return nil, errs.New(errs.NotFound, "entity %q not found", key)
	}
	current, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}

	merged := shallowMerge(current, patch)
	writes := e.idx.ExpandWrite(key, merged)
	dangling := e.idx.Dangling(current, merged)

	err = e.kv.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		for _, entry := range writes {
			if err := tx.Put(ctx, entry.Key, entry.Value); err != nil {
				return err
			}
		}
		for _, dk := range dangling {
			if err := tx.Delete(ctx, dk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.FromCause(err)
	}
	return merged, nil
}

// batchMerge is the shared engine behind batchUpdate and batchUpsert:
// bulk-read current values, merge each entry's patch over its current
// value (or over an empty value, for upserts of missing keys), and emit
// one batched write plus one batched delete of every accumulated
// dangling key.
func (e *Engine) batchMerge(ctx context.Context, entries []KeyValue, throwOnMissing bool) ([]Value, error) {
	keys := make([]string, len(entries))
	for i, kvPair := range entries {
		keys[i] = kvPair.Key
	}

	got, err := e.kv.GetMany(ctx, keys, true)
	if err != nil {
		return nil, errs.FromCause(err)
	}

	if throwOnMissing {
		for _, k := range keys {
			if _, ok := got[k]; !ok {
				return nil, errs.New(errs.NotFound, "entity %q not found", k)
			}
		}
	}

	writes := map[string][]byte{}
	var dangling []string
	merged := make([]Value, len(entries))

	for i, kvPair := range entries {
		var current Value
		if raw, ok := got[kvPair.Key]; ok {
			current, err = decodeValue(raw)
			if err != nil {
				return nil, err
			}
		}

		next := shallowMerge(current, kvPair.Value)
		if current == nil {
			next = withDefaultID(kvPair.Key, next)
		}
		merged[i] = next

		for _, entry := range e.idx.ExpandWrite(kvPair.Key, next) {
			writes[entry.Key] = entry.Value
		}
		dangling = append(dangling, e.idx.Dangling(current, next)...)
	}

	if err := e.kv.PutMany(ctx, writes); err != nil {
		return nil, errs.FromCause(err)
	}
	if len(dangling) > 0 {
		if _, err := e.kv.DeleteMany(ctx, dedupe(dangling)); err != nil {
			return nil, errs.FromCause(err)
		}
	}
	return merged, nil
}

// BatchUpdate requires every key to already exist.
func (e *Engine) BatchUpdate(ctx context.Context, entries []KeyValue) ([]Value, error) {
	return e.batchMerge(ctx, entries, true)
}

// BatchUpsert creates missing keys and updates existing ones.
func (e *Engine) BatchUpsert(ctx context.Context, entries []KeyValue) ([]Value, error) {
	return e.batchMerge(ctx, entries, false)
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// RemoveQuery reads the current entity to derive its actual index keys
// (spec §9's resolved open question — never guesses from the entity key),
// deletes the primary row plus those index rows in one call, and cascades
// a removeNode to the Relationship Engine.
func (e *Engine) RemoveQuery(ctx context.Context, key string) (bool, error) {
	deleteKeys := []string{key}

	got, err := e.kv.GetMany(ctx, []string{key}, true)
	if err != nil {
		return false, errs.FromCause(err)
	}
	if raw, ok := got[key]; ok {
		current, err := decodeValue(raw)
		if err != nil {
			return false, err
		}
		deleteKeys = append(deleteKeys, e.idx.IndexedKeysFor(current)...)
	}

	n, err := e.kv.DeleteMany(ctx, deleteKeys)
	if err != nil {
		return false, errs.FromCause(err)
	}
	if n == 0 {
		return false, errs.New(errs.DeleteFailed, "no rows deleted for key %q", key)
	}

	e.rel.RemoveNode(ctx, key)
	return true, nil
}

// BatchRemove unions every input key's primary and index delete keys,
// issues one Chunked KV delete, and cascades a batchRemoveNode.
func (e *Engine) BatchRemove(ctx context.Context, keys []string) (bool, error) {
	got, err := e.kv.GetMany(ctx, keys, true)
	if err != nil {
		return false, errs.FromCause(err)
	}

	deleteKeys := append([]string(nil), keys...)
	for _, key := range keys {
		raw, ok := got[key]
		if !ok {
			continue
		}
		current, err := decodeValue(raw)
		if err != nil {
			return false, err
		}
		deleteKeys = append(deleteKeys, e.idx.IndexedKeysFor(current)...)
	}

	if _, err := e.kv.DeleteMany(ctx, dedupe(deleteKeys)); err != nil {
		return false, errs.FromCause(err)
	}

	e.rel.BatchRemoveNode(ctx, keys)
	return true, nil
}

func rejectForbiddenPagination(first, last *int, before, after *string) error {
	if first != nil && before != nil {
		return errs.New(errs.BadRequest, "first and before are mutually exclusive")
	}
	if last != nil && after != nil {
		return errs.New(errs.BadRequest, "last and after are mutually exclusive")
	}
	if first != nil && last != nil {
		return errs.New(errs.BadRequest, "first and last are mutually exclusive")
	}
	return nil
}

func resolvePrefix(req ListRequest) string {
	prefix := ""
	if req.Key != nil {
		prefix = *req.Key
	}
	if req.Index != nil {
		prefix = *req.Index + "--"
	}
	return prefix
}

func isPaginated(req ListRequest) bool {
	return req.First != nil || req.Last != nil || req.Before != nil || req.After != nil
}

// ListQuery dispatches to paginated-list or range-query mode per spec
// §4.5, and projects the result to a mapping keyed by each entry's id.
func (e *Engine) ListQuery(ctx context.Context, req ListRequest) (map[string]Value, error) {
	if err := rejectForbiddenPagination(req.First, req.Last, req.Before, req.After); err != nil {
		return nil, err
	}
	prefix := resolvePrefix(req)

	var entries []kv.Entry
	var err error

	switch {
	case isPaginated(req):
		opts := kv.ListOptions{}
		if req.After != nil {
			opts.StartAfter = *req.After
		}
		if req.Before != nil {
			opts.End = *req.Before
		}
		if req.First != nil {
			opts.Limit = *req.First
		}
		if req.Last != nil {
			opts.Limit = *req.Last
			opts.Reverse = true
		}
		entries, err = e.kv.ListPrefix(ctx, prefix, opts)
	case len(req.Query) > 0:
		entries, err = e.cachedFullList(ctx, prefix)
	default:
		entries, err = e.cachedFullList(ctx, prefix)
	}
	if err != nil {
		return nil, errs.FromCause(err)
	}

	out := make(map[string]Value, len(entries))
	for _, entry := range entries {
		v, err := decodeValue(entry.Value)
		if err != nil {
			return nil, err
		}
		if len(req.Query) > 0 && !matchesAll(v, req.Query) {
			continue
		}
		out[idOf(entry.Key, v)] = v
	}
	return out, nil
}

func idOf(key string, v Value) string {
	if id, ok := v["id"].(string); ok {
		return id
	}
	return key
}

func matchesAll(v Value, predicates []RangePredicate) bool {
	for _, p := range predicates {
		raw, ok := v[p.Property]
		if !ok {
			return false
		}
		n, ok := raw.(float64)
		if !ok {
			return false
		}
		if n < p.Min || n > p.Max {
			return false
		}
	}
	return true
}

// cachedFullList returns every entry under prefix, using the shared Read
// Cache to remember the unfiltered, uncursored listing (spec §4.5's
// caching note) so repeated range queries over a stable prefix skip the
// KV scan. The cache key is namespaced away from entity keys themselves.
func (e *Engine) cachedFullList(ctx context.Context, prefix string) ([]kv.Entry, error) {
	cacheKey := "list$" + prefix
	c := e.kv.Cache()

	if raw, ok := c.Get(ctx, cacheKey); ok {
		var entries []kv.Entry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
	}

	entries, err := e.kv.ListPrefix(ctx, prefix, kv.ListOptions{})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	if raw, err := json.Marshal(entries); err == nil {
		c.Set(ctx, cacheKey, raw)
	}
	return entries, nil
}

// PurgeAllQuery deletes the entire KV namespace. It does not touch
// backups.
func (e *Engine) PurgeAllQuery(ctx context.Context) (bool, error) {
	if err := e.kv.Purge(ctx); err != nil {
		return false, errs.FromCause(err)
	}
	return true, nil
}
