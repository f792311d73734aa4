// Package relationship implements the Relationship Engine: symmetric
// named edges between node identifiers, maintained in both directions,
// with cursor-based pagination and cascading cleanup on node deletion.
package relationship

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/logging"
)

const (
	setPrefix     = "relationship$"
	nameMapPrefix = "relationship-name$"
	purgePrefix   = "relationship"
)

func setKey(node, name string) string    { return setPrefix + node + "$" + name }
func nameMapKey(name string) string      { return nameMapPrefix + name }
func parseSetKey(key string) (node, name string, ok bool) {
	rest := strings.TrimPrefix(key, setPrefix)
	if rest == key {
		return "", "", false
	}
	idx := strings.Index(rest, "$")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// Edge describes a single directed pair of edge names relating two nodes.
type Edge struct {
	NodeA              string
	NodeB              string
	NodeAToBName       string
	NodeBToAName       string
}

// Engine maintains bidirectional edges and their reverse-name mapping.
type Engine struct {
	kv  *kv.ChunkedBackend
	log *logging.Logger
}

// New builds an Engine over the given ChunkedBackend.
func New(backend *kv.ChunkedBackend) *Engine {
	return &Engine{kv: backend, log: logging.Root()}
}

func decodeSet(raw []byte) []string {
	if raw == nil {
		return nil
	}
	var members []string
	_ = json.Unmarshal(raw, &members)
	return members
}

func encodeSet(members []string) []byte {
	raw, _ := json.Marshal(members)
	return raw
}

func addMember(members []string, member string) []string {
	for _, m := range members {
		if m == member {
			return members
		}
	}
	return append(members, member)
}

func removeMember(members []string, member string) []string {
	out := members[:0:0]
	for _, m := range members {
		if m != member {
			out = append(out, m)
		}
	}
	return out
}

// CreateEdge opens a transaction, adds b to a's aToB set, a to b's bToA
// set, and persists both name mappings (spec §4.4 "single edge create").
func (e *Engine) CreateEdge(ctx context.Context, edge Edge) error {
	return e.kv.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		if err := addToSet(ctx, tx, setKey(edge.NodeA, edge.NodeAToBName), edge.NodeB); err != nil {
			return err
		}
		if err := addToSet(ctx, tx, setKey(edge.NodeB, edge.NodeBToAName), edge.NodeA); err != nil {
			return err
		}
		if err := tx.Put(ctx, nameMapKey(edge.NodeAToBName), []byte(`"`+edge.NodeBToAName+`"`)); err != nil {
			return err
		}
		if err := tx.Put(ctx, nameMapKey(edge.NodeBToAName), []byte(`"`+edge.NodeAToBName+`"`)); err != nil {
			return err
		}
		return nil
	})
}

func addToSet(ctx context.Context, tx kv.Tx, key, member string) error {
	raw, ok, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	var members []string
	if ok {
		members = decodeSet(raw)
	}
	members = addMember(members, member)
	return tx.Put(ctx, key, encodeSet(members))
}

// BatchCreateEdges derives the two tuple-lists (right: a's aToB sets,
// left: b's bToA sets) and applies each side sequentially via bulk
// read-merge-write over ChunkedBackend (spec §4.4 "batch create"): right
// and left never touch the same keys within one pass, but a later pass
// could touch a key an earlier pass also touched (e.g. self-loops), so
// the two sides run sequentially rather than concurrently.
func (e *Engine) BatchCreateEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	var right, left []setAddition
	for _, edge := range edges {
		right = append(right, setAddition{key: setKey(edge.NodeA, edge.NodeAToBName), member: edge.NodeB})
		left = append(left, setAddition{key: setKey(edge.NodeB, edge.NodeBToAName), member: edge.NodeA})
	}

	nameMaps := map[string][]byte{}
	for _, edge := range edges {
		nameMaps[nameMapKey(edge.NodeAToBName)] = []byte(`"` + edge.NodeBToAName + `"`)
		nameMaps[nameMapKey(edge.NodeBToAName)] = []byte(`"` + edge.NodeAToBName + `"`)
	}
	if err := e.kv.PutMany(ctx, nameMaps); err != nil {
		return errs.FromCause(err)
	}

	if err := e.applySide(ctx, right); err != nil {
		return err
	}
	if err := e.applySide(ctx, left); err != nil {
		return err
	}
	return nil
}

type setAddition = struct {
	key    string
	member string
}

func (e *Engine) applySide(ctx context.Context, additions []setAddition) error {
	if len(additions) == 0 {
		return nil
	}

	keySet := map[string]bool{}
	for _, a := range additions {
		keySet[a.key] = true
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}

	current, err := e.kv.GetMany(ctx, keys, true)
	if err != nil {
		return errs.FromCause(err)
	}

	merged := make(map[string][]string, len(keys))
	for _, k := range keys {
		merged[k] = decodeSet(current[k])
	}
	for _, a := range additions {
		merged[a.key] = addMember(merged[a.key], a.member)
	}

	entries := make(map[string][]byte, len(merged))
	for k, members := range merged {
		entries[k] = encodeSet(members)
	}
	if err := e.kv.PutMany(ctx, entries); err != nil {
		return errs.FromCause(err)
	}
	return nil
}

// HasRelationship reports whether nodeB is a member of nodeA's set under
// name, or NotFound if no set exists for that (nodeA, name).
func (e *Engine) HasRelationship(ctx context.Context, nodeA, nodeB, name string) (bool, error) {
	key := setKey(nodeA, name)
	got, err := e.kv.GetMany(ctx, []string{key}, true)
	if err != nil {
		return false, errs.FromCause(err)
	}
	raw, ok := got[key]
	if !ok {
		return false, errs.New(errs.NotFound, "no relationship set for node %q under %q", nodeA, name)
	}
	for _, m := range decodeSet(raw) {
		if m == nodeB {
			return true, nil
		}
	}
	return false, nil
}

// RemoveEdge transactionally removes both directions of an edge,
// mirroring CreateEdge. Any failure from the underlying transaction
// collapses to a false result rather than a returned error (spec §7).
func (e *Engine) RemoveEdge(ctx context.Context, edge Edge) bool {
	err := e.kv.Transact(ctx, func(ctx context.Context, tx kv.Tx) error {
		if err := removeFromSet(ctx, tx, setKey(edge.NodeA, edge.NodeAToBName), edge.NodeB); err != nil {
			return err
		}
		if err := removeFromSet(ctx, tx, setKey(edge.NodeB, edge.NodeBToAName), edge.NodeA); err != nil {
			return err
		}
		return nil
	})
	return err == nil
}

func removeFromSet(ctx context.Context, tx kv.Tx, key, member string) error {
	raw, ok, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	members := removeMember(decodeSet(raw), member)
	return tx.Put(ctx, key, encodeSet(members))
}

// RemoveNode cascades deletion of every edge incident to node, in both
// directions (spec §4.4 "remove by node").
func (e *Engine) RemoveNode(ctx context.Context, node string) bool {
	err := e.removeNodes(ctx, []string{node})
	return err == nil
}

// BatchRemoveNode cascades deletion for every node in nodes.
func (e *Engine) BatchRemoveNode(ctx context.Context, nodes []string) bool {
	err := e.removeNodes(ctx, nodes)
	return err == nil
}

func (e *Engine) removeNodes(ctx context.Context, nodes []string) error {
	var sourceKeys []string
	type mirrorUpdate struct {
		key    string
		member string
	}
	var mirrors []mirrorUpdate

	for _, node := range nodes {
		entries, err := e.kv.ListPrefix(ctx, setPrefix+node+"$", kv.ListOptions{})
		if err != nil {
			return errs.FromCause(err)
		}
		for _, entry := range entries {
			sourceKeys = append(sourceKeys, entry.Key)
			_, relName, ok := parseSetKey(entry.Key)
			if !ok {
				continue
			}
			members := decodeSet(entry.Value)

			inverse, err := e.inverseName(ctx, relName)
			if err != nil {
				return err
			}
			for _, target := range members {
				mirrors = append(mirrors, mirrorUpdate{key: setKey(target, inverse), member: node})
			}
		}
	}

	if len(sourceKeys) == 0 && len(mirrors) == 0 {
		return nil
	}

	var g errgroup.Group
	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	g.Go(func() error {
		if len(sourceKeys) == 0 {
			return nil
		}
		_, err := e.kv.DeleteMany(ctx, sourceKeys)
		record(err)
		return nil
	})
	g.Go(func() error {
		byKey := map[string][]string{}
		for _, m := range mirrors {
			byKey[m.key] = append(byKey[m.key], m.member)
		}
		if len(byKey) == 0 {
			return nil
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		current, err := e.kv.GetMany(ctx, keys, true)
		if err != nil {
			record(err)
			return nil
		}
		updated := make(map[string][]byte, len(byKey))
		for key, toRemove := range byKey {
			members := decodeSet(current[key])
			for _, m := range toRemove {
				members = removeMember(members, m)
			}
			updated[key] = encodeSet(members)
		}
		record(e.kv.PutMany(ctx, updated))
		return nil
	})
	_ = g.Wait()
	return firstErr
}

func (e *Engine) inverseName(ctx context.Context, name string) (string, error) {
	key := nameMapKey(name)
	got, err := e.kv.GetMany(ctx, []string{key}, true)
	if err != nil {
		return "", errs.FromCause(err)
	}
	raw, ok := got[key]
	if !ok {
		return "", errs.New(errs.NotFound, "no inverse name for %q", name)
	}
	var inverse string
	if err := json.Unmarshal(raw, &inverse); err != nil {
		return "", errs.FromCause(err)
	}
	return inverse, nil
}

// PurgeRelationships deletes every relationship-prefixed key (edge sets
// and name mappings alike) and reports how many rows were removed.
func (e *Engine) PurgeRelationships(ctx context.Context) (int, error) {
	entries, err := e.kv.ListPrefix(ctx, purgePrefix, kv.ListOptions{})
	if err != nil {
		return 0, errs.FromCause(err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	n, err := e.kv.DeleteMany(ctx, keys)
	if err != nil {
		return 0, errs.FromCause(err)
	}
	return n, nil
}

// ListRequest is one request within a BatchList call.
type ListRequest struct {
	Node string
	Name string
	Page Page
}

// ListRelationship returns node's neighbors under name, paginated.
func (e *Engine) ListRelationship(ctx context.Context, node, name string, page Page) (Result, error) {
	key := setKey(node, name)
	got, err := e.kv.GetMany(ctx, []string{key}, true)
	if err != nil {
		return Result{}, errs.FromCause(err)
	}
	return paginate(decodeSet(got[key]), page)
}

// BatchList applies ListRelationship per request, with a single
// ChunkedBackend read gathering every set key up front; individual
// failures degrade to an empty page for that request rather than failing
// the whole batch (spec §4.4).
func (e *Engine) BatchList(ctx context.Context, requests []ListRequest) ([]Result, error) {
	keys := make([]string, len(requests))
	for i, r := range requests {
		keys[i] = setKey(r.Node, r.Name)
	}
	got, err := e.kv.GetMany(ctx, keys, true)
	if err != nil {
		return nil, errs.FromCause(err)
	}

	out := make([]Result, len(requests))
	for i, r := range requests {
		res, err := paginate(decodeSet(got[keys[i]]), r.Page)
		if err != nil {
			out[i] = Result{}
			continue
		}
		out[i] = res
	}
	return out, nil
}
