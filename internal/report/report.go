// Package report produces the per-run manifest written next to the
// mirrored content.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
)

// Manifest is the machine-readable record of one run, stored as
// manifest.json in the run directory.
type Manifest struct {
	RunID      string          `json:"run_id"`
	RootURL    string          `json:"root_url"`
	MaxDepth   int             `json:"max_depth"`
	From       string          `json:"from,omitempty"`
	To         string          `json:"to,omitempty"`
	State      string          `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Summary    archive.Summary `json:"summary"`
}

// Build assembles a Manifest from the run and its outcome.
func Build(run archive.Run, state archive.RunState, summary archive.Summary, finishedAt time.Time) Manifest {
	return Manifest{
		RunID:      run.ID,
		RootURL:    run.RootURL,
		MaxDepth:   run.MaxDepth,
		From:       run.Window.From,
		To:         run.Window.To,
		State:      string(state),
		StartedAt:  run.StartedAt,
		FinishedAt: finishedAt,
		Summary:    summary,
	}
}

// Write stores the manifest through the content store and logs the run
// totals. The manifest is written even for aborted runs so partial
// output stays accounted for.
func Write(store archive.ContentStore, m Manifest, logger *zap.Logger) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	location, err := store.Put("manifest.json", data)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.Info("run complete",
		zap.String("run_id", m.RunID),
		zap.String("state", m.State),
		zap.Int("pages_fetched", m.Summary.PagesFetched),
		zap.Int("assets_fetched", m.Summary.AssetsFetched),
		zap.Int("pages_failed", m.Summary.PagesFailed),
		zap.Int("pages_skipped", m.Summary.PagesSkipped),
		zap.String("manifest", location),
	)
	return nil
}
