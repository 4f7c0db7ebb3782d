package archive

import "context"

// Storage is a flat key/blob store for result snapshots. Paths use "/"
// separators regardless of backend.
type Storage interface {
	// Write stores data at the given path, replacing any previous blob.
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path. A missing path yields an
	// error matching ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
