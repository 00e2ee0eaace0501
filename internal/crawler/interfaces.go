package crawler

import (
	"context"
	"io"
	"time"

	"golang.org/x/net/html"
)

// EntityStore persists entities by natural key and their association sets.
// Implementations serialize get-or-create internally so that concurrent
// callers resolving the same key always end up with one row.
type EntityStore interface {
	// Resolve returns the row for key, creating it with attrs when absent.
	// An existing row is returned unmodified; created reports which case ran.
	Resolve(ctx context.Context, key Key, attrs Attrs) (Row, bool, error)
	// Lookup reads a row by natural key, returning ErrNotFound when absent.
	Lookup(ctx context.Context, key Key) (Row, error)
	// Update overwrites the non-key attributes of an existing row.
	Update(ctx context.Context, row Row) error
	// MergeEdge inserts one edge and commits it; an existing edge is a no-op.
	MergeEdge(ctx context.Context, set EdgeSet, parentID, childID int64) error
	// MergeEdges inserts a batch of edges under one parent in a single commit.
	MergeEdges(ctx context.Context, set EdgeSet, parentID int64, childIDs []int64) error
	// Children lists the child ids linked under parentID, ascending.
	Children(ctx context.Context, set EdgeSet, parentID int64) ([]int64, error)
	// Count returns the number of rows of a kind.
	Count(ctx context.Context, kind Kind) (int, error)
	// AddFlat stores a flat under its community and returns it with its id.
	AddFlat(ctx context.Context, flat Flat) (Flat, error)
	// Flats lists the flats owned by a community.
	Flats(ctx context.Context, communityID int64) ([]Flat, error)
	Close() error
}

// PageFetcher retrieves one URL and returns the parsed document root.
// Failures are reported as *FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*html.Node, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer delays a fetch for politeness.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces walk run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
