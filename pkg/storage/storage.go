package storage

import (
	"context"
	"errors"
	"io"
)

// Storage errors. Callers distinguish a missing blob from an unreachable
// backend to decide between permanent failure and retry.
var (
	ErrNotFound    = errors.New("blob not found")
	ErrUnavailable = errors.New("storage backend unavailable")
)

// BlobStore is a uniform byte-blob store. Keys are opaque locators owned by
// the caller; putting the same key twice overwrites the same document's bytes
// and never touches unrelated keys, so retried puts are safe.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
