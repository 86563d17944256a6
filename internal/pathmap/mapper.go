// Package pathmap assigns local file paths to remote URLs.
package pathmap

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/waymirror/waymirror/internal/archive"
)

const indexFilename = "index.html"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".ico": {}, ".bmp": {}, ".avif": {},
}

// Mapper maps URLs to slash-separated paths relative to the run root.
// The same URL always maps to the same path; two distinct URLs never
// share one. Assignments are remembered for the duration of the run,
// which is what makes the collision rule stable under concurrency.
type Mapper struct {
	mu    sync.Mutex
	byURL map[string]string
	taken map[string]string
}

// New constructs an empty Mapper for one run.
func New() *Mapper {
	return &Mapper{
		byURL: make(map[string]string),
		taken: make(map[string]string),
	}
}

// Map returns the run-relative path for rawURL. Pages land under
// <host>/<path>; assets are partitioned under assets/{css,js,images,files}.
// When a freshly computed path is already owned by a different URL, a
// short URL-hash suffix disambiguates.
func (m *Mapper) Map(rawURL string, priority archive.Priority) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.byURL[rawURL]; ok {
		return p
	}

	candidate := computePath(rawURL, priority)
	if owner, ok := m.taken[candidate]; ok && owner != rawURL {
		candidate = suffixed(candidate, rawURL)
	}

	m.byURL[rawURL] = candidate
	m.taken[candidate] = rawURL
	return candidate
}

func computePath(rawURL string, priority archive.Priority) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return path.Join("unresolved", hashURL(rawURL))
	}

	host := unsafeChars.ReplaceAllString(strings.ToLower(u.Hostname()), "_")
	dir, file := splitURLPath(u.EscapedPath())

	if file == "" {
		file = indexFilename
	} else if priority != archive.PriorityAsset && path.Ext(file) == "" {
		// Extension-less page paths become HTML documents.
		file += ".html"
	}

	// Queries distinguish resources; fold them into the filename.
	if u.RawQuery != "" {
		ext := path.Ext(file)
		stem := strings.TrimSuffix(file, ext)
		file = stem + "_" + unsafeChars.ReplaceAllString(u.RawQuery, "_") + ext
	}
	file = sanitizeSegment(file)

	if priority == archive.PriorityAsset {
		return path.Join("assets", assetPartition(file), host, dir, file)
	}
	return path.Join(host, dir, file)
}

// splitURLPath separates the directory portion from the final segment.
// A trailing slash (or empty path) means the default index document.
func splitURLPath(escaped string) (dir, file string) {
	trimmed := strings.Trim(escaped, "/")
	if trimmed == "" {
		return "", ""
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		segments[i] = sanitizeSegment(seg)
	}
	if strings.HasSuffix(escaped, "/") {
		return path.Join(segments...), ""
	}
	return path.Join(segments[:len(segments)-1]...), segments[len(segments)-1]
}

func sanitizeSegment(seg string) string {
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	seg = unsafeChars.ReplaceAllString(seg, "_")
	if seg == "" || seg == "." || seg == ".." {
		return "_"
	}
	return seg
}

// assetPartition buckets an asset filename into the output subtree.
func assetPartition(file string) string {
	ext := strings.ToLower(path.Ext(file))
	switch {
	case ext == ".css":
		return "css"
	case ext == ".js" || ext == ".mjs":
		return "js"
	default:
		if _, ok := imageExtensions[ext]; ok {
			return "images"
		}
		return "files"
	}
}

func suffixed(p, rawURL string) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + "_" + hashURL(rawURL)[:8] + ext
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
