package harvest

import (
	"context"
	"io"
	"time"
)

// Fetcher issues a single GET and returns the body plus metadata. A
// non-nil error means no response was obtained at all.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageExtractor turns one page body into records and the next page address.
type PageExtractor interface {
	Extract(body []byte) (PageResult, error)
}

// BlobStore writes finished artifacts somewhere durable and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PageWalker follows one target's listing from its seed to the last page.
type PageWalker interface {
	Walk(ctx context.Context, seedURL string) WalkResult
}

// Clock supplies timestamps for events and durations.
type Clock interface {
	Now() time.Time
}
