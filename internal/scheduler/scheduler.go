// Package scheduler drives the crawl: it owns the frontier, the visited
// set, and the worker pool, and coordinates the resolver, fetcher,
// extractor, path mapper, rewriter, and content store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/metrics"
)

// Config bounds one crawl run. Values arrive as an explicit object so
// the engine stays testable without ambient process state.
type Config struct {
	RootURL  string
	MaxDepth int
	Workers  int
	Window   archive.DateRange
}

// Scheduler executes one crawl run: INIT -> RUNNING -> DONE or ABORTED.
// Per-URL failures are recorded and never stop the run; only an
// unwritable output tree aborts it, preserving partial output.
type Scheduler struct {
	cfg       Config
	resolver  archive.SnapshotResolver
	fetcher   archive.Fetcher
	extractor archive.LinkExtractor
	mapper    archive.PathMapper
	rewriter  archive.Rewriter
	store     archive.ContentStore
	logger    *zap.Logger

	frontier *frontier
	visited  *visitSet

	// pending counts entries pushed but not yet fully processed; the
	// run is complete when it reaches zero.
	pending atomic.Int64

	state struct {
		sync.Mutex
		current archive.RunState
	}

	summary struct {
		sync.Mutex
		s archive.Summary
	}

	abortOnce sync.Once
	fatalErr  error
	cancelRun context.CancelFunc
}

// New constructs a Scheduler. All collaborators are required.
func New(
	cfg Config,
	resolver archive.SnapshotResolver,
	fetcher archive.Fetcher,
	extractor archive.LinkExtractor,
	mapper archive.PathMapper,
	rewriter archive.Rewriter,
	store archive.ContentStore,
	logger *zap.Logger,
) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0")
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must be >= 0")
	}
	root, err := archive.NormalizeURL(cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("root url: %w", err)
	}
	cfg.RootURL = root

	s := &Scheduler{
		cfg:       cfg,
		resolver:  resolver,
		fetcher:   fetcher,
		extractor: extractor,
		mapper:    mapper,
		rewriter:  rewriter,
		store:     store,
		logger:    logger,
		frontier:  newFrontier(),
		visited:   newVisitSet(),
	}
	s.state.current = archive.StateInit
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() archive.RunState {
	s.state.Lock()
	defer s.state.Unlock()
	return s.state.current
}

// Snapshot returns a copy of the running counters.
func (s *Scheduler) Snapshot() archive.Summary {
	s.summary.Lock()
	defer s.summary.Unlock()
	out := s.summary.s
	out.Failures = append([]archive.Failure(nil), s.summary.s.Failures...)
	return out
}

// Run executes the crawl to completion and returns the final summary.
// The returned error is non-nil only when the run aborted.
func (s *Scheduler) Run(ctx context.Context) (archive.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelRun = cancel

	s.setState(archive.StateRunning)
	s.push(archive.FrontierEntry{
		URL:      s.cfg.RootURL,
		Depth:    0,
		Priority: archive.PriorityNav,
	})

	// Cancellation stops new pops; in-flight work finishes naturally.
	go func() {
		<-runCtx.Done()
		s.frontier.Close()
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.workerLoop(runCtx, id)
		}(i)
	}
	wg.Wait()

	summary := s.Snapshot()
	switch {
	case s.fatalErr != nil:
		s.setState(archive.StateAborted)
		return summary, s.fatalErr
	case ctx.Err() != nil:
		s.setState(archive.StateAborted)
		return summary, fmt.Errorf("run canceled: %w", ctx.Err())
	default:
		s.setState(archive.StateDone)
		return summary, nil
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, id int) {
	logger := s.logger.With(zap.Int("worker", id))
	for {
		entry, ok := s.frontier.Pop()
		if !ok {
			return
		}
		metrics.IncActiveWorkers()
		s.process(ctx, logger, entry)
		metrics.DecActiveWorkers()
		if s.pending.Add(-1) == 0 {
			s.frontier.Close()
		}
	}
}

// push schedules an entry and accounts for it in the pending counter.
func (s *Scheduler) push(e archive.FrontierEntry) {
	s.pending.Add(1)
	s.frontier.Push(e)
}

func (s *Scheduler) process(ctx context.Context, logger *zap.Logger, entry archive.FrontierEntry) {
	if ctx.Err() != nil {
		return
	}
	if !s.visited.MarkIfNew(entry.URL) {
		return
	}

	isAsset := entry.Priority.IsAsset()
	if !isAsset && entry.Depth > s.cfg.MaxDepth {
		// Belt over the push-side guard; assets are exempt.
		return
	}

	ref, err := s.resolver.Resolve(ctx, entry.URL, s.cfg.Window)
	if err != nil {
		if errors.Is(err, archive.ErrNotArchived) {
			s.recordSkip(entry, isAsset, "not archived in range")
			logger.Info("no capture in range", zap.String("url", entry.URL))
			return
		}
		s.recordFailure(entry, isAsset, fmt.Sprintf("resolve: %v", err))
		logger.Warn("snapshot resolution failed", zap.String("url", entry.URL), zap.Error(err))
		return
	}

	res, err := s.fetcher.Fetch(ctx, ref.ArchivedURL)
	if err != nil || res.Status != archive.FetchOK {
		s.recordFailure(entry, isAsset, fetchReason(res, err))
		logger.Warn("fetch failed",
			zap.String("url", entry.URL),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Error(err),
		)
		return
	}

	localPath := s.mapper.Map(entry.URL, entry.Priority)
	content := res.Body

	switch {
	case !isAsset && isHTML(res.ContentType):
		content = s.processPage(ctx, logger, entry, res, localPath)
	case isAsset && isCSS(res.ContentType, localPath):
		content = s.processStylesheet(entry, res, localPath)
	}

	if _, err := s.store.Put(localPath, content); err != nil {
		s.recordFailure(entry, isAsset, fmt.Sprintf("write: %v", err))
		s.abort(fmt.Errorf("%w: %v", archive.ErrFatalIO, err))
		return
	}

	s.recordSuccess(entry, isAsset)
	logger.Debug("stored",
		zap.String("url", entry.URL),
		zap.String("path", localPath),
		zap.String("kind", entry.Priority.String()),
	)
}

// processPage extracts, schedules, and rewrites a fetched HTML page.
// On malformed content the raw body is kept and extraction is skipped.
func (s *Scheduler) processPage(
	ctx context.Context,
	logger *zap.Logger,
	entry archive.FrontierEntry,
	res archive.FetchResult,
	localPath string,
) []byte {
	refs, err := s.extractor.ExtractHTML(res.Body, res.ContentType, entry.URL)
	if err != nil {
		logger.Warn("extraction skipped", zap.String("url", entry.URL), zap.Error(err))
		return res.Body
	}

	if ctx.Err() == nil {
		// Assets never consume depth budget; page links stop at the bound.
		for _, asset := range refs.Assets {
			s.push(archive.FrontierEntry{
				URL:            asset,
				Depth:          entry.Depth,
				Priority:       archive.PriorityAsset,
				DiscoveredFrom: entry.URL,
			})
		}
		if entry.Depth+1 <= s.cfg.MaxDepth {
			for _, link := range refs.Links {
				s.push(archive.FrontierEntry{
					URL:            link.URL,
					Depth:          entry.Depth + 1,
					Priority:       link.Priority,
					DiscoveredFrom: entry.URL,
				})
			}
		}
	}

	rewritten, err := s.rewriter.RewriteHTML(res.Body, entry.URL, localPath)
	if err != nil {
		logger.Warn("rewrite skipped", zap.String("url", entry.URL), zap.Error(err))
		return res.Body
	}
	return rewritten
}

// processStylesheet schedules a CSS file's url(...) references and
// rewrites them to local paths. CSS assets yield more assets but never
// page links.
func (s *Scheduler) processStylesheet(
	entry archive.FrontierEntry,
	res archive.FetchResult,
	localPath string,
) []byte {
	for _, asset := range s.extractor.ExtractCSS(res.Body, entry.URL) {
		s.push(archive.FrontierEntry{
			URL:            asset,
			Depth:          entry.Depth,
			Priority:       archive.PriorityAsset,
			DiscoveredFrom: entry.URL,
		})
	}
	return s.rewriter.RewriteCSS(res.Body, entry.URL, localPath)
}

func (s *Scheduler) setState(state archive.RunState) {
	s.state.Lock()
	s.state.current = state
	s.state.Unlock()
}

// abort records the first fatal error and stops new frontier pops.
func (s *Scheduler) abort(err error) {
	s.abortOnce.Do(func() {
		s.fatalErr = err
		s.logger.Error("run aborted", zap.Error(err))
		if s.cancelRun != nil {
			s.cancelRun()
		}
	})
}

func (s *Scheduler) recordSuccess(entry archive.FrontierEntry, isAsset bool) {
	s.summary.Lock()
	defer s.summary.Unlock()
	if isAsset {
		s.summary.s.AssetsFetched++
		metrics.ObserveAsset("fetched")
		return
	}
	s.summary.s.PagesFetched++
	metrics.ObservePage("fetched")
}

func (s *Scheduler) recordSkip(entry archive.FrontierEntry, isAsset bool, reason string) {
	s.summary.Lock()
	defer s.summary.Unlock()
	s.summary.s.PagesSkipped++
	s.summary.s.Failures = append(s.summary.s.Failures, archive.Failure{
		URL:    entry.URL,
		Kind:   archive.FailureSkipped,
		Reason: reason,
	})
	if isAsset {
		metrics.ObserveAsset("skipped")
	} else {
		metrics.ObservePage("skipped")
	}
}

func (s *Scheduler) recordFailure(entry archive.FrontierEntry, isAsset bool, reason string) {
	s.summary.Lock()
	defer s.summary.Unlock()
	s.summary.s.PagesFailed++
	s.summary.s.Failures = append(s.summary.s.Failures, archive.Failure{
		URL:    entry.URL,
		Kind:   archive.FailureFailed,
		Reason: reason,
	})
	if isAsset {
		metrics.ObserveAsset("failed")
	} else {
		metrics.ObservePage("failed")
	}
}

func fetchReason(res archive.FetchResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("fetch status %s", res.Status)
}

func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func isCSS(contentType, localPath string) bool {
	return strings.Contains(contentType, "text/css") ||
		strings.HasSuffix(localPath, ".css")
}
