// Package archive defines core types shared across the mirroring engine.
package archive

import "time"

// Priority orders frontier entries. Lower values pop first.
type Priority int

// Frontier priorities. Navigation links are crawled before body links,
// which are crawled before asset references.
const (
	PriorityNav Priority = iota
	PriorityPage
	PriorityAsset
)

// String returns the priority label used in logs and reports.
func (p Priority) String() string {
	switch p {
	case PriorityNav:
		return "nav"
	case PriorityPage:
		return "page"
	case PriorityAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// IsAsset reports whether the entry refers to a non-page resource.
func (p Priority) IsAsset() bool {
	return p == PriorityAsset
}

// FrontierEntry is a unit of crawl work. Entries are immutable after
// creation; re-discovery of the same URL never updates an existing entry.
type FrontierEntry struct {
	URL            string
	Depth          int
	Priority       Priority
	DiscoveredFrom string
}

// DateRange restricts snapshot selection to [From, To], both in YYYYMMDD
// form. The zero value means "all captures".
type DateRange struct {
	From string
	To   string
}

// IsZero reports whether no restriction was requested.
func (r DateRange) IsZero() bool {
	return r.From == "" && r.To == ""
}

// SnapshotRef identifies one archived capture of a URL.
type SnapshotRef struct {
	OriginalURL string
	Timestamp   string
	ArchivedURL string
}

// FetchStatus classifies the outcome of a fetch after all retries.
type FetchStatus string

// Fetch outcome classes.
const (
	FetchOK        FetchStatus = "ok"
	FetchNotFound  FetchStatus = "not_found"
	FetchTransient FetchStatus = "transient_error"
	FetchFatal     FetchStatus = "fatal_error"
)

// FetchResult is the final outcome of retrieving one archived URL.
// Transient failures are retried inside the Fetcher; callers only ever
// see the final classification.
type FetchResult struct {
	URL         string
	Status      FetchStatus
	StatusCode  int
	Body        []byte
	ContentType string
	Attempts    int
}

// Link is a discovered hyperlink with its crawl priority.
type Link struct {
	URL      string
	Priority Priority
}

// PageRefs is everything the extractor found in one document.
// Links are ordered nav-first, then document order within each class.
// External holds in-document URLs whose host is out of crawl scope;
// they are recorded but never followed.
type PageRefs struct {
	Links    []Link
	Assets   []string
	External []string
}

// RunState is the scheduler lifecycle state.
type RunState string

// Scheduler states.
const (
	StateInit    RunState = "init"
	StateRunning RunState = "running"
	StateDone    RunState = "done"
	StateAborted RunState = "aborted"
)

// FailureKind distinguishes skipped URLs from failed ones in the report.
type FailureKind string

// Failure kinds recorded in the run summary.
const (
	FailureSkipped FailureKind = "skipped"
	FailureFailed  FailureKind = "failed"
)

// Failure records one URL the run could not mirror, with the reason.
type Failure struct {
	URL    string      `json:"url"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Summary aggregates the outcome of a run.
type Summary struct {
	PagesFetched  int       `json:"pages_fetched"`
	AssetsFetched int       `json:"assets_fetched"`
	PagesFailed   int       `json:"pages_failed"`
	PagesSkipped  int       `json:"pages_skipped"`
	Failures      []Failure `json:"failures,omitempty"`
}

// Run captures the identity and bounds of a single invocation. Nothing
// in it survives the process; there is no resume support.
type Run struct {
	ID        string
	RootURL   string
	OutputDir string
	MaxDepth  int
	Window    DateRange
	StartedAt time.Time
}
