// Package graphstore wires the KV Backend, Read Cache, Index Engine,
// Relationship Engine, Entity Engine, and Backup/Restore collaborator
// into a single per-partition Store, and a Registry that opens and closes
// stores by partition id.
package graphstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/kishek/graph-store/backup"
	"github.com/kishek/graph-store/blobstore"
	"github.com/kishek/graph-store/cache"
	"github.com/kishek/graph-store/config"
	"github.com/kishek/graph-store/entity"
	"github.com/kishek/graph-store/index"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/logging"
	"github.com/kishek/graph-store/relationship"
)

// Store is every collaborator for one partition, constructed leaves-first
// per spec §9: Index and Relationship are independent and built first;
// the Entity Engine holds references to both.
type Store struct {
	PartitionID  string
	KV           *kv.ChunkedBackend
	Index        *index.Engine
	Relationship *relationship.Engine
	Entity       *entity.Engine
	Backup       *backup.Engine

	backend interface {
		Close()
	}
}

// Open constructs a Store for a single partition from cfg, connecting to
// Postgres, the configured cache backend, and a filesystem blob store.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	log := logging.Root().With("graphstore")

	pg, err := kv.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PartitionID)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open kv backend: %w", err)
	}

	var c cache.Cache
	switch cfg.CacheBackend {
	case "redis":
		client, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("graphstore: connect redis: %w", err)
		}
		c = cache.NewRedisCache(client, cfg.PartitionID)
	default:
		c = cache.NewMemoryCache()
	}

	store, err := newWithBackend(ctx, cfg.PartitionID, pg, c, cfg.BackupDir)
	if err != nil {
		pg.Close()
		return nil, err
	}

	log.WithField("partition", cfg.PartitionID).Info("opened graph-store partition")
	return store, nil
}

func newWithBackend(ctx context.Context, partitionID string, backend kv.Backend, c cache.Cache, backupDir string) (*Store, error) {
	chunked := kv.NewChunkedBackend(backend, c)

	idx := index.New(chunked)
	if err := idx.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("graphstore: load index declarations: %w", err)
	}

	rel := relationship.New(chunked)
	ent := entity.New(chunked, idx, rel)

	blobs, err := blobstore.NewFileStore(backupDir)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open blob store: %w", err)
	}
	bak := backup.New(chunked, blobs, partitionID)

	closer, _ := backend.(interface{ Close() })

	return &Store{
		PartitionID:  partitionID,
		KV:           chunked,
		Index:        idx,
		Relationship: rel,
		Entity:       ent,
		Backup:       bak,
		backend:      closer,
	}, nil
}

// NewForTest wires a Store over an in-memory KV backend and cache, rooted
// at backupDir for blob storage. It skips the Postgres/Redis dial path in
// Open so engine-level tests and dispatch tests can exercise a full Store
// without live infrastructure.
func NewForTest(ctx context.Context, partitionID, backupDir string) (*Store, error) {
	return newWithBackend(ctx, partitionID, kv.NewMemoryBackend(), cache.NewMemoryCache(), backupDir)
}

// Close releases the underlying KV connection, if the backend owns one.
func (s *Store) Close() {
	if s.backend != nil {
		s.backend.Close()
	}
}

// Registry opens and closes Stores by partition id, caching one open
// Store per partition id for the lifetime of the process — the "partition
// registry" concept each store partition is addressed through.
type Registry struct {
	mu      sync.Mutex
	stores  map[string]*Store
	baseCfg *config.Config
}

// NewRegistry builds a Registry that opens partitions using baseCfg as a
// template, overriding only PartitionID per call to Open.
func NewRegistry(baseCfg *config.Config) *Registry {
	return &Registry{stores: make(map[string]*Store), baseCfg: baseCfg}
}

// Open returns the Store for partitionID, opening it on first use.
func (r *Registry) Open(ctx context.Context, partitionID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[partitionID]; ok {
		return s, nil
	}

	cfg := *r.baseCfg
	cfg.PartitionID = partitionID
	store, err := Open(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	r.stores[partitionID] = store
	return store, nil
}

// Close releases the open Store for partitionID, if any, and forgets it.
func (r *Registry) Close(partitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[partitionID]; ok {
		s.Close()
		delete(r.stores, partitionID)
	}
}

// CloseAll releases every open partition, for graceful shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.stores {
		s.Close()
		delete(r.stores, id)
	}
}
