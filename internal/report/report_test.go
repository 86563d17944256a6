package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
)

type captureStore struct {
	path string
	data []byte
	err  error
}

func (s *captureStore) Put(relPath string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.path = relPath
	s.data = data
	return "/out/" + relPath, nil
}

func testRun() archive.Run {
	return archive.Run{
		ID:        "0190e3a2-0000-7000-8000-000000000000",
		RootURL:   "http://example.com/",
		MaxDepth:  2,
		Window:    archive.DateRange{From: "20200101", To: "20201231"},
		StartedAt: time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	finished := time.Date(2020, 6, 1, 12, 5, 0, 0, time.UTC)
	summary := archive.Summary{PagesFetched: 4, AssetsFetched: 9, PagesSkipped: 1}

	m := Build(testRun(), archive.StateDone, summary, finished)

	require.Equal(t, "http://example.com/", m.RootURL)
	require.Equal(t, "20200101", m.From)
	require.Equal(t, string(archive.StateDone), m.State)
	require.Equal(t, finished, m.FinishedAt)
	require.Equal(t, summary, m.Summary)
}

func TestWriteStoresManifestJSON(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	m := Build(testRun(), archive.StateDone, archive.Summary{PagesFetched: 2}, time.Now().UTC())

	require.NoError(t, Write(store, m, zap.NewNop()))
	require.Equal(t, "manifest.json", store.path)

	var got Manifest
	require.NoError(t, json.Unmarshal(store.data, &got))
	require.Equal(t, m.RunID, got.RunID)
	require.Equal(t, 2, got.Summary.PagesFetched)
}

func TestWritePropagatesStoreError(t *testing.T) {
	t.Parallel()

	store := &captureStore{err: errors.New("disk full")}
	m := Build(testRun(), archive.StateAborted, archive.Summary{}, time.Now().UTC())

	err := Write(store, m, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}
