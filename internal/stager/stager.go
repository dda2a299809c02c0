// Package stager persists raw validated payloads. Keys are unique per batch
// and never reused; blobs are write-once, read-many.
package stager

import (
	"context"
	"errors"
)

// Metadata is attached to a stored blob as user tags.
type Metadata map[string]string

// ObjectStore is the narrow contract the pipeline consumes. The backing
// service's durability and availability semantics are its own.
type ObjectStore interface {
	Put(ctx context.Context, key string, payload []byte, meta Metadata) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ErrNotFound reports a Get for a key that has no object.
var ErrNotFound = errors.New("object_not_found")
