package channel

import (
	"context"
	"io"
	"time"
)

// SnapshotStore is the idempotent persistence layer over the document store.
// Each upsert is independently atomic; no multi-record transaction is offered.
type SnapshotStore interface {
	UpsertByRank(ctx context.Context, rank int, fields Snapshot) error
	UpsertByURL(ctx context.Context, url string, fields Snapshot) error
	Get(ctx context.Context, collection Collection, key string) (Snapshot, error)
	FindSorted(ctx context.Context, collection Collection, q Query) ([]Snapshot, error)
	CountAll(ctx context.Context, collection Collection) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Browser is a single-tab headless browser session driven step by step.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	Links(ctx context.Context, selector string) ([]Link, error)
	CellTexts(ctx context.Context, rowSelector, cellSelector string) ([][]string, error)
	ScrollToBottom(ctx context.Context, anchorSelector string) error
	ClickAndCapture(ctx context.Context, selector string, index int) (string, error)
	Back(ctx context.Context) error
	Text(ctx context.Context, selector string) (string, error)
	Close()
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Pauser blocks for a delay or until the context ends.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
