package archive

import "errors"

// Error taxonomy for the engine. Per-URL errors (not archived, not found,
// transient exhaustion, malformed content) are recorded and never abort a
// run; only ErrFatalIO does.
var (
	// ErrNotArchived means the index holds no capture of the URL inside
	// the requested window. The page is skipped.
	ErrNotArchived = errors.New("no capture in range")

	// ErrNotFound means the archive answered 404/410 for the capture.
	// Not retryable.
	ErrNotFound = errors.New("capture not found")

	// ErrTransient marks a retryable network or 5xx failure. Once the
	// retry budget is exhausted the fetch is classified fatal but the
	// cause still unwraps to ErrTransient.
	ErrTransient = errors.New("transient fetch error")

	// ErrMalformedContent means a body could not be decoded or parsed.
	// Content is stored raw; link extraction is skipped.
	ErrMalformedContent = errors.New("malformed content")

	// ErrFatalIO means the output tree cannot be written. The run aborts,
	// keeping whatever was already mirrored.
	ErrFatalIO = errors.New("fatal output error")
)
