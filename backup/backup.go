// Package backup implements the Backup/Restore collaborator: it
// serializes the full KV image to a blob and rehydrates it, taking a
// safety backup before any restore purges the partition.
package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kishek/graph-store/blobstore"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/kv"
	"github.com/kishek/graph-store/logging"
)

// Engine is the Backup/Restore collaborator, scoped to one partition.
type Engine struct {
	kv          *kv.ChunkedBackend
	store       blobstore.Store
	partitionID string
	log         *logging.Logger
}

// New builds an Engine over backend, writing blobs through store under
// partitionID.
func New(backend *kv.ChunkedBackend, store blobstore.Store, partitionID string) *Engine {
	return &Engine{kv: backend, store: store, partitionID: partitionID, log: logging.Root()}
}

func (e *Engine) blobName(epochMillis int64, reason string) string {
	if reason == "" {
		return fmt.Sprintf("%s/graph-store-%d.json", e.partitionID, epochMillis)
	}
	return fmt.Sprintf("%s/graph-store-%d-%s.json", e.partitionID, epochMillis, reason)
}

// Backup lists every KV entry, serializes the mapping to JSON, and writes
// it under a single blob. Returns the blob name.
func (e *Engine) Backup(ctx context.Context, epochMillis int64, reason string) (string, error) {
	snapshot, err := e.kv.Snapshot(ctx)
	if err != nil {
		return "", errs.FromCause(err)
	}

	raw, err := encodeSnapshot(snapshot)
	if err != nil {
		return "", err
	}

	name := e.blobName(epochMillis, reason)
	if err := e.store.Put(ctx, name, raw); err != nil {
		return "", errs.FromCause(err)
	}
	return name, nil
}

// Restore fetches the named blob, takes a safety backup tagged
// "before-restore", purges the partition, and re-inserts the parsed
// mapping via Chunked KV. Returns the number of rows restored.
func (e *Engine) Restore(ctx context.Context, backupID string, safetyEpochMillis int64) (int, error) {
	raw, err := e.store.Get(ctx, backupID)
	if err != nil {
		if err == blobstore.ErrNotFound {
			return 0, errs.New(errs.NotFound, "backup %q not found", backupID)
		}
		return 0, errs.FromCause(err)
	}

	snapshot, err := decodeSnapshot(raw)
	if err != nil {
		return 0, err
	}

	if _, err := e.Backup(ctx, safetyEpochMillis, "before-restore"); err != nil {
		return 0, err
	}

	if err := e.kv.Purge(ctx); err != nil {
		return 0, errs.FromCause(err)
	}
	if err := e.kv.PutMany(ctx, snapshot); err != nil {
		return 0, errs.FromCause(err)
	}
	return len(snapshot), nil
}

func encodeSnapshot(snapshot map[string][]byte) ([]byte, error) {
	asStrings := make(map[string]json.RawMessage, len(snapshot))
	for k, v := range snapshot {
		asStrings[k] = v
	}
	raw, err := json.Marshal(asStrings)
	if err != nil {
		return nil, errs.FromCause(err)
	}
	return raw, nil
}

func decodeSnapshot(raw []byte) (map[string][]byte, error) {
	var asStrings map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asStrings); err != nil {
		return nil, errs.FromCause(err)
	}
	out := make(map[string][]byte, len(asStrings))
	for k, v := range asStrings {
		out[k] = []byte(v)
	}
	return out, nil
}
