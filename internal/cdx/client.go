// Package cdx resolves URLs against the Wayback Machine CDX index.
package cdx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
)

const timestampLayout = "20060102150405"

// Config carries the index and content endpoints plus the query timeout.
type Config struct {
	CDXEndpoint string
	WebEndpoint string
	Timeout     time.Duration
	UserAgent   string
}

// Capture is one row of the CDX response.
type Capture struct {
	Timestamp string
	Original  string
	Digest    string
}

// Client queries the CDX index and caches resolutions for the run.
// Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	cache      sync.Map // normalized URL -> archive.SnapshotRef
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Snapshots lists every successful capture of rawURL inside the window,
// oldest first. Rows are filtered to status 200 and collapsed on digest
// server-side so identical bodies appear once.
func (c *Client) Snapshots(ctx context.Context, rawURL string, window archive.DateRange) ([]Capture, error) {
	target := archive.CleanArchiveURL(rawURL)

	params := url.Values{}
	params.Set("url", target)
	params.Set("output", "json")
	params.Set("fl", "timestamp,original,statuscode,digest")
	params.Set("filter", "statuscode:200")
	params.Set("collapse", "digest")
	if window.From != "" {
		params.Set("from", window.From)
	}
	if window.To != "" {
		params.Set("to", window.To)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CDXEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build cdx request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query cdx index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cdx index returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cdx response: %w", err)
	}
	return parseCaptures(body)
}

// Resolve picks the best capture of rawURL inside the window. With a
// window the capture closest to its midpoint wins, earlier timestamp on
// ties; without one the most recent capture wins. The choice is
// deterministic for a fixed capture set. Resolutions are cached per
// normalized URL for the lifetime of the client.
func (c *Client) Resolve(ctx context.Context, rawURL string, window archive.DateRange) (archive.SnapshotRef, error) {
	key, err := archive.NormalizeURL(archive.CleanArchiveURL(rawURL))
	if err != nil {
		return archive.SnapshotRef{}, fmt.Errorf("normalize %q: %w", rawURL, err)
	}

	if cached, ok := c.cache.Load(key); ok {
		return cached.(archive.SnapshotRef), nil
	}

	captures, err := c.Snapshots(ctx, key, window)
	if err != nil {
		return archive.SnapshotRef{}, err
	}
	if len(captures) == 0 {
		return archive.SnapshotRef{}, fmt.Errorf("%w: %s", archive.ErrNotArchived, key)
	}

	best, err := selectCapture(captures, window)
	if err != nil {
		return archive.SnapshotRef{}, err
	}

	ref := archive.SnapshotRef{
		OriginalURL: key,
		Timestamp:   best.Timestamp,
		ArchivedURL: c.ArchivedURL(best.Timestamp, best.Original),
	}
	c.cache.Store(key, ref)
	c.logger.Debug("snapshot resolved",
		zap.String("url", key),
		zap.String("timestamp", ref.Timestamp),
	)
	return ref, nil
}

// ArchivedURL builds the content endpoint URL for one capture. The id_
// modifier asks the archive for the original bytes without the replay
// toolbar injected.
func (c *Client) ArchivedURL(timestamp, original string) string {
	return fmt.Sprintf("%s/%sid_/%s", strings.TrimSuffix(c.cfg.WebEndpoint, "/"), timestamp, original)
}

func parseCaptures(body []byte) ([]Capture, error) {
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode cdx response: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	// First row is the field header.
	captures := make([]Capture, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 4 {
			continue
		}
		if _, err := time.Parse(timestampLayout, row[0]); err != nil {
			continue
		}
		captures = append(captures, Capture{
			Timestamp: row[0],
			Original:  row[1],
			Digest:    row[3],
		})
	}
	return captures, nil
}

func selectCapture(captures []Capture, window archive.DateRange) (Capture, error) {
	if window.IsZero() {
		best := captures[0]
		for _, snap := range captures[1:] {
			if snap.Timestamp > best.Timestamp {
				best = snap
			}
		}
		return best, nil
	}

	mid, err := windowMidpoint(window)
	if err != nil {
		return Capture{}, err
	}

	best := captures[0]
	bestDist := captureDistance(best, mid)
	for _, snap := range captures[1:] {
		dist := captureDistance(snap, mid)
		if dist < bestDist || (dist == bestDist && snap.Timestamp < best.Timestamp) {
			best, bestDist = snap, dist
		}
	}
	return best, nil
}

func windowMidpoint(window archive.DateRange) (time.Time, error) {
	from, to := window.From, window.To
	if from == "" {
		from = to
	}
	if to == "" {
		to = from
	}
	start, err := time.Parse(timestampLayout, from+"000000")
	if err != nil {
		return time.Time{}, fmt.Errorf("parse window start %q: %w", window.From, err)
	}
	end, err := time.Parse(timestampLayout, to+"235959")
	if err != nil {
		return time.Time{}, fmt.Errorf("parse window end %q: %w", window.To, err)
	}
	return start.Add(end.Sub(start) / 2), nil
}

func captureDistance(snap Capture, mid time.Time) time.Duration {
	ts, err := time.Parse(timestampLayout, snap.Timestamp)
	if err != nil {
		return time.Duration(1<<63 - 1)
	}
	d := ts.Sub(mid)
	if d < 0 {
		d = -d
	}
	return d
}
