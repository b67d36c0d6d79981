// Package storage writes audit objects to S3-compatible stores.
package storage

import (
	"context"
	"io"
	"time"
)

// PutObjectOptions control how an object is written.
type PutObjectOptions struct {
	// Size is the exact number of bytes, or -1 when unknown.
	Size        int64
	ContentType string
	Metadata    map[string]string
	// RetainUntil places a governance-mode retention on the object when non-zero.
	// The bucket must have object locking enabled.
	RetainUntil time.Time
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	LastModified time.Time
}

// Storage is the write side of the object store the audit journal uses.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
}
