// Package blob provides the object stores behind the key registry and the data partitions.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"swarmgate/internal/config"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("blob: object not found")
	// ErrPreconditionFailed is returned when a conditional put loses a race.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// Object is a stored object together with its version tag.
type Object struct {
	Data []byte
	ETag string
}

// PutOptions make a write conditional on the current object version.
type PutOptions struct {
	ContentType string
	// IfMatch only writes when the stored object still has this etag.
	IfMatch string
	// IfNoneMatch only writes when no object exists under the key.
	IfNoneMatch bool
}

// Store is the interface for pluggable object storage backends.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) (etag string, err error)
}

// See filesystem.go, memory.go and s3.go for driver implementations.

// Open returns a Store for the configured driver.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case "", "filesystem":
		dir := cfg.Directory
		if dir == "" {
			dir = "data"
		}
		return NewFilesystemStore(dir)
	case "s3":
		return NewS3Store(ctx, cfg.Bucket, cfg.Region, cfg.Endpoint)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", cfg.Driver)
	}
}

func contentTag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// checkPrecondition applies PutOptions against the current etag ("" when absent).
func checkPrecondition(current string, exists bool, opts PutOptions) error {
	if opts.IfNoneMatch && exists {
		return ErrPreconditionFailed
	}
	if opts.IfMatch != "" && (!exists || current != opts.IfMatch) {
		return ErrPreconditionFailed
	}
	return nil
}
