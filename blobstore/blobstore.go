// Package blobstore defines the interface the Backup/Restore collaborator
// consumes, and a filesystem-backed implementation of it. The blob store
// proper is an external collaborator per the spec; this package describes
// only the interface the core consumes plus the one concrete
// implementation needed to exercise and test it end to end.
package blobstore

import "context"

// ErrNotFound is returned by Get when the named blob does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "blobstore: blob not found" }

// Store is a collection of named, opaque binary blobs, following the
// Get/Put/List shape of the creachadair/ffs blob.KVCore interface,
// narrowed to the subset Backup/Restore needs (no content-addressing, no
// substores).
type Store interface {
	// Put writes data under name, overwriting any existing blob.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads the blob named name. Returns ErrNotFound if absent.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns every blob name with the given prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
