// Package blob defines the object storage contract the platform depends on.
// The real deployment fronts a remote object store; the in-process
// implementation in this package backs development and tests.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing object key.
var ErrNotFound = errors.New("blob: not found")

// Store is an opaque content-addressable object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// PresignUpload and PresignDownload return time-limited URLs granting
	// direct access to the object without further authentication. Expiry is
	// checked at use time.
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// object is one stored blob.
type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	storedAt    time.Time
}
