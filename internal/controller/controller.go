// Package controller drives one paginated browse session from entry to
// completion: search submission, resume seek, per-page classification and
// transfer, progress persistence, and page advance with cascading fallbacks.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/allowlist"
	"github.com/cna-research/geoharvest/internal/classify"
	"github.com/cna-research/geoharvest/internal/sink"
	"github.com/cna-research/geoharvest/internal/status"
)

// Session is the stateful browse interface the controller drives. Exactly
// one goroutine calls it; every method mutates shared server/browser state.
type Session interface {
	Enter(ctx context.Context) error
	SubmitSearch(ctx context.Context) error
	GoPage(ctx context.Context, page int) error
	Content(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	ClickNext(ctx context.Context) error
	Reload(ctx context.Context) error
	Restart(ctx context.Context) error
	Close(ctx context.Context) error
}

// Transferer moves one artifact URL into the destination store.
type Transferer interface {
	Transfer(ctx context.Context, url string) (sink.Outcome, error)
}

// PageFetcher fetches an external detail page's markup.
type PageFetcher interface {
	Page(ctx context.Context, url string) (string, error)
}

// ProgressStore persists the resume cursor.
type ProgressStore interface {
	Load() int
	Save(page int, at time.Time) error
}

// MissingLog records detail pages that yielded no artifact.
type MissingLog interface {
	Record(name string) error
}

// Config controls loop behavior.
type Config struct {
	// BaseURL and DisplayPath identify the listing for next-href resolution.
	BaseURL     string
	DisplayPath string
	// ContentAttempts bounds stabilized-content reads per page.
	ContentAttempts int
	// ContentRetryDelay is the pause between content attempts.
	ContentRetryDelay time.Duration
	// PausePollInterval is how often the pause flag is re-checked while set.
	PausePollInterval time.Duration
	// ResumeOverride, when >= 1, replaces the persisted cursor for this run.
	ResumeOverride int
}

func (c Config) withDefaults() Config {
	if c.DisplayPath == "" {
		c.DisplayPath = "display.asp"
	}
	if c.ContentAttempts <= 0 {
		c.ContentAttempts = 2
	}
	if c.ContentRetryDelay <= 0 {
		c.ContentRetryDelay = 2 * time.Second
	}
	if c.PausePollInterval <= 0 {
		c.PausePollInterval = time.Second
	}
	return c
}

// Controller executes one crawl run.
type Controller struct {
	cfg        Config
	session    Session
	classifier *classify.Classifier
	transfers  Transferer
	pages      PageFetcher
	cursor     ProgressStore
	missing    MissingLog
	emitter    status.Emitter
	pause      *Pause
	logger     *zap.Logger
	now        func() time.Time
	runID      uuid.UUID
}

// New constructs a Controller. The pause flag may be nil; the emitter may be
// a nil hub (events are then discarded).
func New(
	cfg Config,
	session Session,
	classifier *classify.Classifier,
	transfers Transferer,
	pages PageFetcher,
	cursor ProgressStore,
	missing MissingLog,
	emitter status.Emitter,
	pause *Pause,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:        cfg.withDefaults(),
		session:    session,
		classifier: classifier,
		transfers:  transfers,
		pages:      pages,
		cursor:     cursor,
		missing:    missing,
		emitter:    emitter,
		pause:      pause,
		logger:     logger,
		now:        time.Now,
		runID:      uuid.New(),
	}
}

// RunID identifies this run in status events and the ledger.
func (c *Controller) RunID() uuid.UUID {
	return c.runID
}

// Run executes the crawl to completion or abort. Already-persisted progress
// stays valid on every return path. Errors local to one artifact or one
// detail page never propagate here; only failures that prevent determining
// the next page do.
func (c *Controller) Run(ctx context.Context) error {
	c.emit(status.Event{Stage: status.StageRunStart})
	c.logger.Info("starting crawl run", zap.String("run_id", c.runID.String()))

	if err := c.session.Enter(ctx); err != nil {
		return c.abort(fmt.Errorf("load entry page: %w", err))
	}
	if err := c.session.SubmitSearch(ctx); err != nil {
		return c.abort(fmt.Errorf("submit search: %w", err))
	}

	resume := c.resumePage()
	if resume > 1 {
		c.logger.Info("resuming", zap.Int("page", resume))
		if err := c.session.GoPage(ctx, resume); err != nil {
			// Resume seek is best effort: the crawl continues from wherever
			// the session landed and the idempotent sink absorbs any
			// re-processing.
			c.warn(resume, "page jump unavailable for resume", err)
		}
	}

	markup, err := c.pageContent(ctx, resume)
	if err != nil {
		return c.abort(err)
	}
	total := classify.LastPage(markup)
	c.logger.Info("total pages discovered", zap.Int("total", total))

	for page := resume; page <= total; page++ {
		if err := c.waitWhilePaused(ctx); err != nil {
			return c.abort(err)
		}

		c.logger.Info("processing page", zap.Int("page", page), zap.Int("total", total))
		markup, err = c.pageContent(ctx, page)
		if err != nil {
			return c.abort(err)
		}
		c.processPage(ctx, markup)

		if saveErr := c.cursor.Save(page, c.now()); saveErr != nil {
			c.warn(page, "persist progress", saveErr)
		}
		c.emit(status.Event{Stage: status.StagePage, Page: page, TotalPages: total})

		if page == total {
			break
		}
		if err := c.advance(ctx, page, markup); err != nil {
			return c.abort(err)
		}
	}

	c.emit(status.Event{Stage: status.StageRunDone, Page: total, TotalPages: total})
	c.logger.Info("crawl run complete", zap.Int("pages", total))
	return c.session.Close(ctx)
}

func (c *Controller) resumePage() int {
	if c.cfg.ResumeOverride >= 1 {
		return c.cfg.ResumeOverride
	}
	return c.cursor.Load()
}

// pageContent reads stabilized page content with a bounded retry. Persistent
// failure degrades to empty content; only context cancellation aborts.
func (c *Controller) pageContent(ctx context.Context, page int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ContentAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		markup, err := c.session.Content(ctx)
		if err == nil {
			return markup, nil
		}
		lastErr = err
		if attempt < c.cfg.ContentAttempts {
			c.warn(page, "content read failed, retrying", err)
			if sleepErr := sleep(ctx, c.cfg.ContentRetryDelay); sleepErr != nil {
				return "", sleepErr
			}
		}
	}
	c.warn(page, "content unavailable, continuing with empty page", lastErr)
	return "", nil
}

// processPage classifies one page's anchors and handles every candidate
// synchronously. Depth is bounded by construction: listing page, then at
// most one hop into each detail page.
func (c *Controller) processPage(ctx context.Context, markup string) {
	for _, cand := range c.classifier.Classify(markup, c.cfg.BaseURL) {
		switch cand.Kind {
		case classify.DirectArtifact:
			c.transfer(ctx, cand.URL)
		case classify.ExternalDetail:
			c.processDetail(ctx, cand.URL)
		}
	}
}

func (c *Controller) processDetail(ctx context.Context, url string) {
	c.logger.Info("following detail page", zap.String("url", url))
	markup, err := c.pages.Page(ctx, url)
	if err != nil {
		c.warn(0, "detail page fetch failed", err)
		return
	}
	artifacts := c.classifier.DetailArtifacts(markup, url)
	if len(artifacts) == 0 {
		name := allowlist.FinalSegment(url)
		c.logger.Info("no artifacts on detail page", zap.String("name", name))
		if recErr := c.missing.Record(name); recErr != nil {
			c.warn(0, "record missing entry", recErr)
		}
		c.emit(status.Event{Stage: status.StageMissing, Artifact: name})
		return
	}
	for _, artifact := range artifacts {
		c.transfer(ctx, artifact)
	}
}

func (c *Controller) transfer(ctx context.Context, url string) {
	outcome, err := c.transfers.Transfer(ctx, url)
	if err != nil {
		c.logger.Warn("artifact transfer failed", zap.String("url", url), zap.Error(err))
	}
	c.emit(status.Event{
		Stage:    status.StageArtifact,
		Artifact: allowlist.FinalSegment(url),
		Outcome:  outcome.String(),
	})
}

func (c *Controller) waitWhilePaused(ctx context.Context) error {
	for c.pause.IsSet() {
		c.logger.Info("paused, waiting to resume")
		if err := sleep(ctx, c.cfg.PausePollInterval); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Controller) abort(err error) error {
	c.emit(status.Event{Stage: status.StageRunAborted, Note: err.Error()})
	c.logger.Error("crawl run aborted", zap.Error(err))
	if closeErr := c.session.Close(context.Background()); closeErr != nil {
		c.logger.Warn("session close failed", zap.Error(closeErr))
	}
	return err
}

func (c *Controller) warn(page int, msg string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if page > 0 {
		fields = append(fields, zap.Int("page", page))
	}
	c.logger.Warn(msg, fields...)
	note := msg
	if err != nil {
		note = fmt.Sprintf("%s: %v", msg, err)
	}
	c.emit(status.Event{Stage: status.StageWarning, Page: page, Note: note})
}

func (c *Controller) emit(evt status.Event) {
	if c.emitter == nil {
		return
	}
	evt.RunID = c.runID
	evt.TS = c.now().UTC()
	c.emitter.Emit(evt)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
