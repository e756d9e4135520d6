// Package blob manages images and attachments in an S3-compatible
// object storage bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Image is a hosted image object with its public URL and the creation
// time derived from the key naming convention.
type Image struct {
	Key       string     `json:"key"`
	URL       string     `json:"url"`
	CreatedAt *time.Time `json:"createdAt"`
}

// Listing is one page of hosted images, newest first.
type Listing struct {
	Images  []Image `json:"images"`
	HasMore bool    `json:"hasMore"`
}

// Store is the object storage collaborator: list, put, delete, signed
// upload URLs, and byte fetches for attachment sends.
type Store interface {
	List(ctx context.Context, page, pageSize int) (*Listing, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	SignUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}

// FetchError indicates a blob download failed. When it happens while
// resolving an auto-reply attachment, the send aborts before any mail
// is dispatched.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching blob %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
