package resultcache

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by BlobStore.Get for a missing object.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore abstracts object storage for the blob backend. Names are
// slash-separated and List returns every name starting with prefix.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
