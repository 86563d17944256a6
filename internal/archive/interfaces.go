package archive

import (
	"context"
	"time"
)

// SnapshotResolver finds the best available capture of a URL within a
// date window. Implementations must be deterministic for a given set of
// captures and window.
type SnapshotResolver interface {
	Resolve(ctx context.Context, rawURL string, window DateRange) (SnapshotRef, error)
}

// Fetcher retrieves one archived URL. Retries and backoff happen inside;
// the returned result carries the final classification and the number of
// attempts made.
type Fetcher interface {
	Fetch(ctx context.Context, archivedURL string) (FetchResult, error)
}

// LinkExtractor pulls links and asset references out of fetched content.
type LinkExtractor interface {
	ExtractHTML(body []byte, contentType string, baseURL string) (PageRefs, error)
	ExtractCSS(body []byte, baseURL string) []string
}

// PathMapper assigns a deterministic, collision-free local path (relative
// to the run root, slash-separated) to every URL seen during a run.
type PathMapper interface {
	Map(rawURL string, priority Priority) string
}

// Rewriter adjusts stored content so it browses correctly offline.
type Rewriter interface {
	RewriteHTML(body []byte, pageURL string, pagePath string) ([]byte, error)
	RewriteCSS(body []byte, cssURL string, cssPath string) []byte
}

// ContentStore persists bytes under a run-relative path and returns the
// absolute location. Writes must be atomic: no partially written file is
// ever observable at the final path.
type ContentStore interface {
	Put(relPath string, data []byte) (string, error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
