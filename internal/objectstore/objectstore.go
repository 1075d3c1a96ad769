// Package objectstore abstracts the bucket that holds raw uploads and
// encoded outputs.
package objectstore

import (
	"context"
	"time"
)

// ObjectStore is the object-storage collaborator. Keys are slash-separated
// paths relative to the bucket root.
type ObjectStore interface {
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Upload writes body to key with the given content type.
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	// SignedURL returns a pre-signed GET URL for key valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Copy duplicates srcKey to dstKey inside the bucket.
	Copy(ctx context.Context, srcKey, dstKey string) error
}
