// Package objstore defines the bucket-scoped object storage capability used by
// the session archive store, together with its drivers: Google Cloud Storage,
// S3-compatible services, Azure Blob Storage, NATS JetStream object stores,
// Redis, SQLite, PostgreSQL, the local filesystem and memory.
package objstore

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned (wrapped) when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Client is a handle to an object storage service. The client's lifecycle is
// owned by whoever created it; the session store never closes it.
type Client interface {
	// Bucket returns a handle scoped to the named bucket. No network
	// access happens until an operation is invoked on the handle.
	Bucket(name string, opts BucketOptions) Bucket

	// Close releases resources held by the client.
	Close() error
}

// Bucket is the set of object operations the session store relies on.
type Bucket interface {
	// Exists reports whether an object with the given key exists.
	// An absent object is (false, nil), never an error.
	Exists(ctx context.Context, key string) (bool, error)

	// NewReader opens the object for streaming reads.
	// The caller is responsible for closing the returned ReadCloser.
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Upload streams r into the object until r reports io.EOF. The object
	// becomes visible only when Upload returns nil; on any read or write
	// error the upload is aborted.
	Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error

	// Delete removes the object. Deleting an absent object either succeeds
	// or returns an error wrapping ErrObjectNotFound, depending on the
	// service.
	Delete(ctx context.Context, key string) error
}

// BucketOptions carries optional per-bucket settings. The zero value is the
// empty configuration. Drivers ignore settings they have no equivalent for.
type BucketOptions struct {
	// UserProject is billed for requests against requester-pays buckets (GCS).
	UserProject string `yaml:"userProject" json:"userProject,omitempty"`
	// KMSKeyName encrypts new objects with a customer-managed key (GCS).
	KMSKeyName string `yaml:"kmsKeyName" json:"kmsKeyName,omitempty"`
}

// IsZero reports whether no option is set.
func (o BucketOptions) IsZero() bool {
	return o == BucketOptions{}
}

// ObjectAttrs describes attributes written alongside an uploaded object.
type ObjectAttrs struct {
	ContentType string
}

// notFound wraps ErrObjectNotFound with the key that was missing.
func notFound(bucket, key string) error {
	return &objectError{bucket: bucket, key: key, err: ErrObjectNotFound}
}

type objectError struct {
	bucket string
	key    string
	err    error
}

func (e *objectError) Error() string {
	return "object " + e.bucket + "/" + e.key + ": " + e.err.Error()
}

func (e *objectError) Unwrap() error { return e.err }
