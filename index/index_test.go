package index

import (
	"context"
	"testing"

	"github.com/kishek/graph-store/cache"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/kv"
)

func newEngineForTest(t *testing.T) *Engine {
	t.Helper()
	backend := kv.NewChunkedBackend(kv.NewMemoryBackend(), cache.NewMemoryCache())
	e := New(backend)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	return e
}

func TestCreateReadUpdateRemoveIndex(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)

	d, err := e.CreateIndex(ctx, "a")
	if err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}
	if d.ID != "idx:a" || d.Property != "a" {
		t.Fatalf("CreateIndex() = %+v", d)
	}

	got, err := e.ReadIndex(ctx, "idx:a")
	if err != nil || got != d {
		t.Fatalf("ReadIndex() = %+v, %v", got, err)
	}

	updated, err := e.UpdateIndex(ctx, "idx:a", "a2")
	if err != nil {
		t.Fatalf("UpdateIndex() = %v", err)
	}
	if updated.Property != "a2" {
		t.Fatalf("UpdateIndex() = %+v", updated)
	}

	all := e.ListIndexes()
	if len(all) != 1 || all["idx:a"].Property != "a2" {
		t.Fatalf("ListIndexes() = %+v", all)
	}

	removed, err := e.RemoveIndex(ctx, "idx:a")
	if err != nil || !removed {
		t.Fatalf("RemoveIndex() = %v, %v", removed, err)
	}
	if len(e.ListIndexes()) != 0 {
		t.Fatalf("ListIndexes() after remove = %+v", e.ListIndexes())
	}
}

func TestReadIndexNotFound(t *testing.T) {
	e := newEngineForTest(t)
	_, err := e.ReadIndex(context.Background(), "idx:missing")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("ReadIndex(missing) = %v, want NotFound", err)
	}
}

func TestRemoveIndexReportsWhetherAnythingDeleted(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)

	removed, err := e.RemoveIndex(ctx, "idx:never-created")
	if err != nil {
		t.Fatalf("RemoveIndex() = %v", err)
	}
	if removed {
		t.Fatalf("RemoveIndex(nonexistent) = true, want false")
	}
}

func TestExpandWriteAddsIndexEntriesForDeclaredProperties(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)
	if _, err := e.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}

	entries := e.ExpandWrite("entity-a", Value{"id": "entity-a", "a": float64(1), "b": float64(2)})
	if len(entries) != 2 {
		t.Fatalf("ExpandWrite() returned %d entries, want 2", len(entries))
	}
	if entries[0].Key != "entity-a" {
		t.Fatalf("ExpandWrite()[0].Key = %q, want primary key", entries[0].Key)
	}
	if entries[1].Key != "a--1" {
		t.Fatalf("ExpandWrite()[1].Key = %q, want %q", entries[1].Key, "a--1")
	}
}

func TestExpandWriteSkipsUndeclaredOrAbsentProperties(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)
	if _, err := e.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}

	entries := e.ExpandWrite("entity-b", Value{"id": "entity-b", "b": float64(2)})
	if len(entries) != 1 {
		t.Fatalf("ExpandWrite() returned %d entries, want 1 (no index row for undeclared prop)", len(entries))
	}
}

func TestDanglingComputesRemovedIndexRows(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)
	if _, err := e.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex() = %v", err)
	}

	old := Value{"id": "entity-a", "a": float64(1)}
	next := Value{"id": "entity-a", "a": float64(2)}

	dangling := e.Dangling(old, next)
	if len(dangling) != 1 || dangling[0] != "a--1" {
		t.Fatalf("Dangling() = %v, want [a--1]", dangling)
	}

	same := e.Dangling(old, old)
	if len(same) != 0 {
		t.Fatalf("Dangling(old, old) = %v, want empty", same)
	}
}

func TestIndexedKeysForMultipleDeclarations(t *testing.T) {
	ctx := context.Background()
	e := newEngineForTest(t)
	if _, err := e.CreateIndex(ctx, "a"); err != nil {
		t.Fatalf("CreateIndex(a) = %v", err)
	}
	if _, err := e.CreateIndex(ctx, "b"); err != nil {
		t.Fatalf("CreateIndex(b) = %v", err)
	}

	keys := e.IndexedKeysFor(Value{"a": float64(1), "b": float64(2), "c": float64(3)})
	if len(keys) != 2 {
		t.Fatalf("IndexedKeysFor() = %v, want 2 keys", keys)
	}
}
