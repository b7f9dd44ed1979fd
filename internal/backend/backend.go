package backend

import (
	"context"
	"io"

	"remotefs/internal/core/types"
)

// FindOptions refine a recursive listing.
type FindOptions struct {
	// MaxDepth limits how many levels below the search path are
	// returned. Zero or negative means unlimited.
	MaxDepth int
	// WithDirs includes directory entries in the results.
	WithDirs bool
}

// Backend is the capability surface of a storage system. Every method is
// synchronous and may block on remote I/O; cancellation is up to the
// caller's context.
type Backend interface {
	// Exists reports whether a file or directory exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Find recursively lists everything below root.
	Find(ctx context.Context, root string, opts FindOptions) ([]types.FileInfo, error)

	// Info stats a single path.
	Info(ctx context.Context, path string) (types.FileInfo, error)

	// List returns the direct children of path with detail.
	List(ctx context.Context, path string) ([]types.FileInfo, error)

	// Open returns a reader over the file's content.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Names extracts the paths from a detail listing.
func Names(infos []types.FileInfo) []string {
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name)
	}
	return names
}
