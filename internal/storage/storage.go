package storage

import (
	"context"
	"time"
)

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobStore reads and writes raw document bytes by path. Paths are returned
// by Write and opaque to callers; deleting a missing path is a no-op.
type BlobStore interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	Size(ctx context.Context, path string) (int64, error)
	List(ctx context.Context) ([]BlobInfo, error)
	// PathFor maps a blob name (as returned by List) back to its path.
	PathFor(name string) string
}
