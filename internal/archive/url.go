package archive

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var archivePrefix = regexp.MustCompile(`^(?:https?://)?web\.archive\.org/web/\d+(?:[a-z_]+)?/(.+)$`)

// NormalizeURL standardizes a URL so the visited set and path mapper see
// one canonical spelling. It lowercases scheme and host, defaults the
// scheme to http, strips default ports and fragments, sorts query
// parameters, and ensures a non-empty path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("http://" + strings.TrimSpace(rawURL))
		if err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// CleanArchiveURL strips a web.archive.org wrapper from a URL, returning
// the original target. URLs without the wrapper pass through unchanged.
// Links inside archived pages frequently point back into the archive;
// scoping and deduplication must happen on the original URL.
func CleanArchiveURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:") {
		return raw
	}
	if m := archivePrefix.FindStringSubmatch(raw); m != nil {
		cleaned := m[1]
		if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
			cleaned = "http://" + cleaned
		}
		return cleaned
	}
	return raw
}

// Scope decides whether a discovered URL belongs to the crawl. The root
// host and any explicitly allowed hosts are in scope; everything else is
// recorded but not followed. Comparison ignores a leading "www.".
type Scope struct {
	rootHost string
	allowed  map[string]struct{}
}

// NewScope builds a Scope for the given root URL plus extra allowed hosts.
func NewScope(rootURL string, allowHosts []string) (*Scope, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("root url %q has no host", rootURL)
	}
	s := &Scope{
		rootHost: canonicalHost(u.Hostname()),
		allowed:  make(map[string]struct{}, len(allowHosts)),
	}
	for _, h := range allowHosts {
		if h = canonicalHost(h); h != "" {
			s.allowed[h] = struct{}{}
		}
	}
	return s, nil
}

// Contains reports whether the URL's host is in crawl scope.
func (s *Scope) Contains(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := canonicalHost(u.Hostname())
	if host == "" {
		return false
	}
	if host == s.rootHost {
		return true
	}
	_, ok := s.allowed[host]
	return ok
}

// RootHost returns the canonical root host of the crawl.
func (s *Scope) RootHost() string {
	return s.rootHost
}

func canonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
