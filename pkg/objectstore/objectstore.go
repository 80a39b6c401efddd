// Package objectstore defines the gateway every pipeline stage uses to read
// and write document artifacts. Implementations live in the s3 and aferofs
// subpackages; stages depend only on the Gateway interface.
package objectstore

import (
	"context"
	"time"
)

// TagPendingDelete marks a routed source object for the retention sweep.
// The value is the RFC3339 time the tag was written; the sweep cutoff is
// measured from it.
const TagPendingDelete = "pending-delete"

// ObjectInfo is the result of a head call.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Gateway is the object-store contract. Get on a missing object returns
// kind.ErrNotFound. Copy verifies length and ETag equivalence against the
// source via a head call and returns kind.ErrCopyVerification on mismatch.
// Implementations retry transient errors with bounded exponential backoff.
type Gateway interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Head(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	Tag(ctx context.Context, bucket, key string, tags map[string]string) error
	GetTags(ctx context.Context, bucket, key string) (map[string]string, error)
}
