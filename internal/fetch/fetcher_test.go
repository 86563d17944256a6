package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
)

func fastConfig(maxRetries int) Config {
	return Config{
		Timeout:       2 * time.Second,
		MaxRetries:    maxRetries,
		BackoffBase:   time.Millisecond,
		BackoffMax:    5 * time.Millisecond,
		RatePerSecond: 10000,
	}
}

func TestFetchSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(fastConfig(5), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, archive.FetchOK, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, "text/html", res.ContentType)
	require.Equal(t, []byte("<html>ok</html>"), res.Body)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fastConfig(5), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, archive.ErrNotFound)
	require.Equal(t, archive.FetchNotFound, res.Status)
	require.Equal(t, int64(1), calls.Load())
}

func TestFetchGoneIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	f := New(fastConfig(3), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, archive.ErrNotFound)
	require.Equal(t, archive.FetchNotFound, res.Status)
}

func TestFetchExhaustedRetriesBecomesFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(fastConfig(3), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, archive.ErrTransient)
	require.Equal(t, archive.FetchFatal, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, int64(3), calls.Load())
}

func TestFetchUnexpectedClientErrorIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(fastConfig(5), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, archive.FetchFatal, res.Status)
	require.Equal(t, int64(1), calls.Load(), "4xx other than 404/410 must not be retried")
}

func TestFetchRateLimitedIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(fastConfig(3), zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, archive.FetchOK, res.Status)
	require.Equal(t, 2, res.Attempts)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(fastConfig(5), zap.NewNop())
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
