package graphstore

import (
	"context"
	"testing"

	"github.com/kishek/graph-store/config"
)

func TestNewForTestWiresAllCollaborators(t *testing.T) {
	ctx := context.Background()
	store, err := NewForTest(ctx, "tenant-1", t.TempDir())
	if err != nil {
		t.Fatalf("NewForTest() = %v", err)
	}
	defer store.Close()

	if store.KV == nil || store.Index == nil || store.Relationship == nil || store.Entity == nil || store.Backup == nil {
		t.Fatalf("NewForTest() left a nil collaborator: %+v", store)
	}
	if store.PartitionID != "tenant-1" {
		t.Fatalf("PartitionID = %q, want %q", store.PartitionID, "tenant-1")
	}
}

func TestNewForTestEngineIsUsable(t *testing.T) {
	ctx := context.Background()
	store, err := NewForTest(ctx, "tenant-1", t.TempDir())
	if err != nil {
		t.Fatalf("NewForTest() = %v", err)
	}
	defer store.Close()

	got, err := store.Entity.CreateQuery(ctx, "entity-a", map[string]interface{}{"v": float64(1)})
	if err != nil {
		t.Fatalf("CreateQuery() = %v", err)
	}
	if got["id"] != "entity-a" {
		t.Fatalf("CreateQuery() id = %v", got["id"])
	}
}

func TestRegistryCloseAllOnEmptyRegistryIsNoop(t *testing.T) {
	cfg := &config.Config{PartitionID: "unused"}
	reg := NewRegistry(cfg)
	reg.CloseAll()
}
