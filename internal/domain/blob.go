package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one object returned by a prefix listing.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter stores objects. Paths are slash-separated keys within one
// bucket.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads objects back. Get on a missing path returns an error
// wrapping ErrNotFound; Exists reports it as false.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// TimelineArchive keeps one immutable copy of a position's timeline per
// day.
type TimelineArchive interface {
	Export(ctx context.Context, tl Timeline) (path string, err error)
	Archived(ctx context.Context, positionID string, day time.Time) (Timeline, error)
}
