package entity

import (
	"context"
	"testing"

	"github.com/kishek/graph-store/cache"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/index"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/relationship"
)

func newTestEngine(t *testing.T) (*Engine, *index.Engine, *relationship.Engine) {
	t.Helper()
	backend := kv.NewChunkedBackend(kv.NewMemoryBackend(), cache.NewMemoryCache())
	idx := index.New(backend)
	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("idx.Refresh() = %v", err)
	}
	rel := relationship.New(backend)
	return New(backend, idx, rel), idx, rel
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

// TestIndexRoundTrip is spec §8 scenario 1, literally.
func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, idx, _ := newTestEngine(t)

	if _, err := idx.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}

	if _, err := e.CreateQuery(ctx, "entity-a", Value{"a": float64(1), "b": float64(2), "c": float64(3)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	got, err := e.ReadQuery(ctx, "1", "a")
	if err != nil {
		t.Fatalf("ReadQuery(key=1,index=a) = %v", err)
	}
	want := Value{"id": "entity-a", "a": float64(1), "b": float64(2), "c": float64(3)}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("ReadQuery() = %v, want %v", got, want)
		}
	}
}

// TestRangeQuery is spec §8 scenario 3, literally.
func TestRangeQuery(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.BatchCreate(ctx, []KeyValue{
		{Key: "entity-a", Value: Value{"a": float64(1), "b": float64(2), "c": float64(3)}},
		{Key: "entity-b", Value: Value{"a": float64(4), "b": float64(5), "c": float64(6)}},
		{Key: "entity-c", Value: Value{"a": float64(7), "b": float64(8), "c": float64(9)}},
	})
	if err != nil {
		t.Fatalf("BatchCreate() = %v", err)
	}

	key := "entity"
	got, err := e.ListQuery(ctx, ListRequest{
		Key:   &key,
		Query: []RangePredicate{{Property: "b", Min: 5, Max: 8}},
	})
	if err != nil {
		t.Fatalf("ListQuery() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListQuery() = %v, want 2 entries", got)
	}
	if _, ok := got["entity-b"]; !ok {
		t.Fatalf("ListQuery() missing entity-b")
	}
	if _, ok := got["entity-c"]; !ok {
		t.Fatalf("ListQuery() missing entity-c")
	}
	if _, ok := got["entity-a"]; ok {
		t.Fatalf("ListQuery() should exclude entity-a (b=2 outside [5,8])")
	}
}

// TestCascadeOnDelete is spec §8 scenario 4, literally.
func TestCascadeOnDelete(t *testing.T) {
	ctx := context.Background()
	e, _, rel := newTestEngine(t)

	if _, err := e.CreateQuery(ctx, "a", Value{"a": float64(1), "b": float64(2), "c": float64(3)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	if err := rel.CreateEdge(ctx, relationship.Edge{
		NodeA: "a", NodeB: "b", NodeAToBName: "children", NodeBToAName: "parents",
	}); err != nil {
		t.Fatalf("CreateEdge() = %v", err)
	}

	ok, err := e.RemoveQuery(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("RemoveQuery() = %v, %v", ok, err)
	}

	resChildren, err := rel.ListRelationship(ctx, "a", "children", relationship.Page{})
	if err != nil {
		t.Fatalf("ListRelationship(a,children) = %v", err)
	}
	if len(resChildren.Items) != 0 {
		t.Fatalf("ListRelationship(a,children) = %v, want empty after cascade", resChildren.Items)
	}
	resParents, err := rel.ListRelationship(ctx, "b", "parents", relationship.Page{})
	if err != nil {
		t.Fatalf("ListRelationship(b,parents) = %v", err)
	}
	if len(resParents.Items) != 0 {
		t.Fatalf("ListRelationship(b,parents) = %v, want empty after cascade", resParents.Items)
	}
}

// TestBatchUpsertWithIndexUpdate is spec §8 scenario 6, literally.
func TestBatchUpsertWithIndexUpdate(t *testing.T) {
	ctx := context.Background()
	e, idx, _ := newTestEngine(t)

	if _, err := idx.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}
	if _, err := e.CreateQuery(ctx, "entity-a", Value{"a": float64(1), "b": float64(2), "c": float64(3)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	_, err := e.BatchUpsert(ctx, []KeyValue{
		{Key: "entity-a", Value: Value{"a": float64(101), "b": float64(2), "c": float64(3)}},
		{Key: "entity-b", Value: Value{"a": float64(104), "b": float64(5), "c": float64(6)}},
	})
	if err != nil {
		t.Fatalf("BatchUpsert() = %v", err)
	}

	idxName := "a"
	got, err := e.ListQuery(ctx, ListRequest{Index: &idxName})
	if err != nil {
		t.Fatalf("ListQuery(index=a) = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListQuery(index=a) = %v, want 2 entries", got)
	}

	// The stale a--1 index row must be gone.
	_, err = e.ReadQuery(ctx, "1", "a")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("ReadQuery(key=1,index=a) after upsert = %v, want NotFound (dangling row not cleaned)", err)
	}
}

func TestUpdateQueryRequiresExisting(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	_, err := e.UpdateQuery(ctx, "missing", Value{"a": float64(1)})
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("UpdateQuery(missing) = %v, want NotFound", err)
	}
}

func TestUpdateQueryShallowMergePreservesUnpatchedProperties(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	if _, err := e.CreateQuery(ctx, "entity-a", Value{"a": float64(1), "b": float64(2)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	merged, err := e.UpdateQuery(ctx, "entity-a", Value{"a": float64(9)})
	if err != nil {
		t.Fatalf("UpdateQuery() = %v", err)
	}
	if merged["b"] != float64(2) {
		t.Fatalf("UpdateQuery() dropped untouched property b: %v", merged)
	}
	if merged["a"] != float64(9) {
		t.Fatalf("UpdateQuery() did not apply patched property a: %v", merged)
	}
}

func TestUpdateQueryDeletesDanglingIndexRow(t *testing.T) {
	ctx := context.Background()
	e, idx, _ := newTestEngine(t)
	if _, err := idx.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}
	if _, err := e.CreateQuery(ctx, "entity-a", Value{"a": float64(1)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	if _, err := e.UpdateQuery(ctx, "entity-a", Value{"a": float64(2)}); err != nil {
		t.Fatalf("UpdateQuery() = %v", err)
	}

	_, err := e.ReadQuery(ctx, "1", "a")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("ReadQuery(key=1,index=a) after update = %v, want NotFound", err)
	}
	got, err := e.ReadQuery(ctx, "2", "a")
	if err != nil {
		t.Fatalf("ReadQuery(key=2,index=a) = %v", err)
	}
	if got["a"] != float64(2) {
		t.Fatalf("ReadQuery(key=2,index=a) = %v", got)
	}
}

func TestBatchReadPreservesOrderAndMisses(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	if _, err := e.CreateQuery(ctx, "a", Value{"v": float64(1)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	if _, err := e.CreateQuery(ctx, "c", Value{"v": float64(3)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	keys := []string{"a", "b", "c"}
	got, err := e.BatchRead(ctx, keys, "")
	if err != nil {
		t.Fatalf("BatchRead() = %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("BatchRead() returned %d results, want %d", len(got), len(keys))
	}
	if got[0]["v"] != float64(1) {
		t.Fatalf("BatchRead()[0] = %v", got[0])
	}
	if got[1] != nil {
		t.Fatalf("BatchRead()[1] = %v, want nil for missing key", got[1])
	}
	if got[2]["v"] != float64(3) {
		t.Fatalf("BatchRead()[2] = %v", got[2])
	}
}

func TestBatchUpdateRequiresAllKeysExist(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	if _, err := e.CreateQuery(ctx, "a", Value{"v": float64(1)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	_, err := e.BatchUpdate(ctx, []KeyValue{
		{Key: "a", Value: Value{"v": float64(2)}},
		{Key: "missing", Value: Value{"v": float64(3)}},
	})
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("BatchUpdate() with a missing key = %v, want NotFound", err)
	}
}

func TestRemoveQueryDeleteFailedOnMissingKey(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	_, err := e.RemoveQuery(ctx, "missing")
	if !errs.Is(err, errs.DeleteFailed) {
		t.Fatalf("RemoveQuery(missing) = %v, want DeleteFailed", err)
	}
}

func TestBatchRemoveUnionsIndexKeys(t *testing.T) {
	ctx := context.Background()
	e, idx, _ := newTestEngine(t)
	if _, err := idx.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}
	if _, err := e.BatchCreate(ctx, []KeyValue{
		{Key: "x", Value: Value{"a": float64(1)}},
		{Key: "y", Value: Value{"a": float64(2)}},
	}); err != nil {
		t.Fatalf("BatchCreate() = %v", err)
	}

	ok, err := e.BatchRemove(ctx, []string{"x", "y"})
	if err != nil || !ok {
		t.Fatalf("BatchRemove() = %v, %v", ok, err)
	}

	for _, v := range []string{"1", "2"} {
		_, err := e.ReadQuery(ctx, v, "a")
		if !errs.Is(err, errs.NotFound) {
			t.Fatalf("ReadQuery(key=%s,index=a) after BatchRemove = %v, want NotFound", v, err)
		}
	}
}

func TestListQueryForbiddenPaginationCombinations(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	key := "entity"

	cases := []ListRequest{
		{Key: &key, First: intPtr(1), Before: strPtr("x")},
		{Key: &key, Last: intPtr(1), After: strPtr("x")},
		{Key: &key, First: intPtr(1), Last: intPtr(1)},
	}
	for _, req := range cases {
		_, err := e.ListQuery(ctx, req)
		if !errs.Is(err, errs.BadRequest) {
			t.Fatalf("ListQuery(%+v) = %v, want BadRequest", req, err)
		}
	}
}

func TestPurgeAllQueryEmptiesStore(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	if _, err := e.CreateQuery(ctx, "a", Value{"v": float64(1)}); err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}

	ok, err := e.PurgeAllQuery(ctx)
	if err != nil || !ok {
		t.Fatalf("PurgeAllQuery() = %v, %v", ok, err)
	}

	got, err := e.ListQuery(ctx, ListRequest{})
	if err != nil {
		t.Fatalf("ListQuery() after purge = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListQuery() after purge = %v, want empty", got)
	}
}

func TestCreateQueryDefaultsIDToKey(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	got, err := e.CreateQuery(ctx, "my-key", Value{"v": float64(1)})
	if err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	if got["id"] != "my-key" {
		t.Fatalf("CreateQuery() id = %v, want %q", got["id"], "my-key")
	}
}

func TestCreateQueryHonorsExplicitID(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)

	got, err := e.CreateQuery(ctx, "my-key", Value{"id": "explicit-id", "v": float64(1)})
	if err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	if got["id"] != "explicit-id" {
		t.Fatalf("CreateQuery() id = %v, want %q", got["id"], "explicit-id")
	}
}
