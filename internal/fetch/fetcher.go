// Package fetch retrieves archived content over HTTP with retries,
// exponential backoff, and a politeness rate limit.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/metrics"
)

// Config controls fetch behavior. MaxRetries is the total attempt budget
// per URL, first try included.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	RatePerSecond float64
	UserAgent     string
}

// HTTPFetcher implements archive.Fetcher over net/http.
type HTTPFetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	backoff *backoffPolicy
	logger  *zap.Logger
}

// New constructs an HTTPFetcher. All fetches share one transport and one
// rate limiter; the archive frontend is a single host, so a global limit
// is the right granularity.
func New(cfg Config, logger *zap.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}
	return &HTTPFetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		backoff: newBackoffPolicy(cfg.BackoffBase, cfg.BackoffMax),
		logger:  logger,
	}
}

// Fetch retrieves archivedURL, retrying transient failures up to the
// configured budget. The returned result always carries the final
// classification; the error (when non-nil) unwraps to the matching
// sentinel in the archive package.
func (f *HTTPFetcher) Fetch(ctx context.Context, archivedURL string) (archive.FetchResult, error) {
	result := archive.FetchResult{URL: archivedURL}
	start := time.Now()
	defer func() {
		metrics.ObserveFetch(string(result.Status), result.Attempts, time.Since(start))
	}()

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			result.Status = archive.FetchTransient
			return result, fmt.Errorf("%w: %v", archive.ErrTransient, err)
		}
		result.Attempts = attempt

		res, err := f.attempt(ctx, archivedURL)
		res.Attempts = attempt
		switch {
		case err == nil:
			res.Status = archive.FetchOK
			return res, nil
		case !retryable(err):
			result = res
			return result, err
		default:
			lastErr = err
			f.logger.Debug("fetch attempt failed",
				zap.String("url", archivedURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt < f.cfg.MaxRetries {
				if werr := f.backoff.Wait(ctx, attempt); werr != nil {
					result.Status = archive.FetchTransient
					return result, fmt.Errorf("%w: %v", archive.ErrTransient, werr)
				}
			}
		}
	}

	// Retry budget exhausted: the failure becomes final.
	result.Status = archive.FetchFatal
	return result, fmt.Errorf("retries exhausted after %d attempts: %w", result.Attempts, lastErr)
}

// attempt performs one HTTP round trip and classifies the outcome.
func (f *HTTPFetcher) attempt(ctx context.Context, archivedURL string) (archive.FetchResult, error) {
	result := archive.FetchResult{URL: archivedURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archivedURL, nil)
	if err != nil {
		result.Status = archive.FetchFatal
		return result, fmt.Errorf("%w: build request: %v", archive.ErrMalformedContent, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		result.Status = archive.FetchTransient
		return result, classifyNetErr(err)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = contentType(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			result.Status = archive.FetchTransient
			return result, fmt.Errorf("%w: read body: %v", archive.ErrTransient, err)
		}
		result.Body = body
		return result, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.Status = archive.FetchNotFound
		return result, fmt.Errorf("%w: status %d", archive.ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		result.Status = archive.FetchTransient
		return result, fmt.Errorf("%w: status %d", archive.ErrTransient, resp.StatusCode)
	default:
		result.Status = archive.FetchFatal
		return result, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// retryable reports whether the fetch loop should try again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, archive.ErrTransient)
}

func classifyNetErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", archive.ErrTransient, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", archive.ErrTransient, err)
}

func contentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}
