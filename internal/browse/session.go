// Package browse drives the catalog's form-and-script listing interface
// through headless Chrome. The listing is stateful server-side: the search
// form, selected page, and session cookies all live behind one browser
// session, so every operation here mutates shared session state and must be
// called from a single goroutine.
package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the browser session.
type Config struct {
	// BaseURL is the catalog root, e.g. "https://gis.example.gov/minesen/geofiles/".
	BaseURL string
	// EntryPath is the search form page, resolved against BaseURL.
	EntryPath string
	// DisplayPath is the listing page the catalog's goPage script targets.
	DisplayPath string
	// FormSelector locates the search form on the entry page.
	FormSelector string
	// TitleField optionally names a form input to fill with SearchTitle
	// before submission.
	TitleField  string
	SearchTitle string
	UserAgent   string
	// NavTimeout bounds each interactive page operation.
	NavTimeout time.Duration
	// SettleDelay is the pause after navigations; the legacy listing keeps
	// mutating the DOM briefly after load.
	SettleDelay time.Duration
	Headless    bool
}

func (c Config) withDefaults() Config {
	if c.EntryPath == "" {
		c.EntryPath = "default.asp"
	}
	if c.DisplayPath == "" {
		c.DisplayPath = "display.asp"
	}
	if c.FormSelector == "" {
		c.FormSelector = `form[name="searchForm"]`
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	return c
}

// Session is a live browser session against the catalog.
type Session struct {
	cfg    Config
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New launches the browser and warms up a tab. Close must be called to tear
// the browser down.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	if err := s.openBrowser(); err != nil {
		allocCancel()
		return nil, err
	}
	return s, nil
}

func (s *Session) openBrowser() error {
	browserCtx, browserCancel := chromedp.NewContext(s.allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	return nil
}

// Close tears down the browser and allocator.
func (s *Session) Close(context.Context) error {
	if s == nil {
		return nil
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	s.allocCancel()
	return nil
}

// Enter loads the entry page and waits for the search form to be present and
// stable.
func (s *Session) Enter(ctx context.Context) error {
	entry := s.cfg.BaseURL + s.cfg.EntryPath
	return s.run(ctx, "enter",
		s.networkSetup(),
		chromedp.Navigate(entry),
		chromedp.WaitVisible(s.cfg.FormSelector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// SubmitSearch fills the optional title filter and triggers the page's own
// form submission script.
func (s *Session) SubmitSearch(ctx context.Context) error {
	actions := []chromedp.Action{}
	if s.cfg.TitleField != "" && s.cfg.SearchTitle != "" {
		sel := fmt.Sprintf("%s input[name=%q]", s.cfg.FormSelector, s.cfg.TitleField)
		actions = append(actions,
			chromedp.SetValue(sel, s.cfg.SearchTitle, chromedp.ByQuery),
		)
	}
	actions = append(actions,
		chromedp.Evaluate(`document.forms["searchForm"].submit()`, nil),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	return s.run(ctx, "submit search", actions...)
}

// GoPage invokes the listing's own page-jump script for the target page.
// This is the primary navigation mechanism; it fails when the script hook is
// absent from the current document.
func (s *Session) GoPage(ctx context.Context, page int) error {
	expr := fmt.Sprintf("goPage(%d, %q)", page, s.cfg.DisplayPath)
	return s.run(ctx, "goPage",
		chromedp.Evaluate(expr, nil),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// Content waits for the document to stabilize and returns the rendered DOM.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, "content",
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// Navigate loads an absolute URL directly, used when falling back to the
// next-control's href.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// ClickNext simulates activating the "next" control instead of navigating to
// its href.
func (s *Session) ClickNext(ctx context.Context) error {
	return s.run(ctx, "click next",
		chromedp.Click(`a:has(img[src*="next.gif"])`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// Reload refreshes the current listing page.
func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, "reload",
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// Restart tears the whole browse session down and rebuilds it: new browser
// tab, re-enter the catalog, resubmit the search. The caller re-seeks to the
// target page afterwards.
func (s *Session) Restart(ctx context.Context) error {
	s.logger.Warn("restarting browser session")
	s.browserCancel()

	// The allocator outlives the browser context; rebuild from it.
	if err := s.openBrowser(); err != nil {
		return fmt.Errorf("reopen browser: %w", err)
	}
	if err := s.Enter(ctx); err != nil {
		return fmt.Errorf("re-enter catalog: %w", err)
	}
	if err := s.SubmitSearch(ctx); err != nil {
		return fmt.Errorf("resubmit search: %w", err)
	}
	return nil
}

func (s *Session) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// run executes actions against the session tab with the interactive timeout,
// forwarding cancellation from the caller's context.
func (s *Session) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavTimeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
