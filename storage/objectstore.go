package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts the remote object storage a run is persisted in.
// Keys are slash-separated paths relative to the store root. Put must be
// atomic per object: a concurrent or interrupted writer never leaves a
// partially-visible object.
type ObjectStore interface {
	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads an object; ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys of all objects under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// ListDirs returns the immediate sub-prefix names under prefix,
	// sorted lexicographically.
	ListDirs(ctx context.Context, prefix string) ([]string, error)

	// Copy duplicates an object within the store.
	Copy(ctx context.Context, src, dst string) error
}
