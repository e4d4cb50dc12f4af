package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/allowlist"
	"github.com/cna-research/geoharvest/internal/classify"
	"github.com/cna-research/geoharvest/internal/sink"
	"github.com/cna-research/geoharvest/internal/status"
)

const (
	testBase   = "https://catalog.example.gov/minesen/geofiles/"
	testPrefix = "https://reports.example.gov/mines-docs"
)

// fakeSession simulates the catalog's stateful listing. Content renders the
// page the session is currently on.
type fakeSession struct {
	total   int
	current int

	detailLinks map[int]string // page -> external detail URL to embed

	goPageErr    map[int]error // per-target page-jump failures
	goPageAllErr error
	navigateErr  error
	clickErr     error
	reloadErr    error
	restartErr   error
	contentErr   error

	goPageCalls   []int
	navigateCalls []string
	clickCalls    int
	reloadCalls   int
	restartCalls  int
	closed        bool
}

func newFakeSession(total int) *fakeSession {
	return &fakeSession{total: total, current: 1, goPageErr: map[int]error{}}
}

func (f *fakeSession) Enter(context.Context) error        { return nil }
func (f *fakeSession) SubmitSearch(context.Context) error { return nil }

func (f *fakeSession) GoPage(_ context.Context, page int) error {
	f.goPageCalls = append(f.goPageCalls, page)
	if f.goPageAllErr != nil {
		return f.goPageAllErr
	}
	if err := f.goPageErr[page]; err != nil {
		return err
	}
	f.current = page
	return nil
}

func (f *fakeSession) Content(context.Context) (string, error) {
	if f.contentErr != nil {
		return "", f.contentErr
	}
	return f.markup(f.current), nil
}

func (f *fakeSession) Navigate(_ context.Context, target string) error {
	f.navigateCalls = append(f.navigateCalls, target)
	if f.navigateErr != nil {
		return f.navigateErr
	}
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	page, err := strconv.Atoi(u.Query().Get("pageCt"))
	if err != nil {
		return fmt.Errorf("bad pageCt: %w", err)
	}
	f.current = page
	return nil
}

func (f *fakeSession) ClickNext(context.Context) error {
	f.clickCalls++
	if f.clickErr != nil {
		return f.clickErr
	}
	f.current++
	return nil
}

func (f *fakeSession) Reload(context.Context) error {
	f.reloadCalls++
	return f.reloadErr
}

func (f *fakeSession) Restart(context.Context) error {
	f.restartCalls++
	if f.restartErr != nil {
		return f.restartErr
	}
	f.current = 1
	return nil
}

func (f *fakeSession) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeSession) markup(page int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<a href="javascript:goPage(%d,'display.asp')"><img src="img/last.gif"></a>`, f.total)
	if page < f.total {
		fmt.Fprintf(&b, `<a href="display.asp?pageCt=%d"><img src="img/next.gif"></a>`, page+1)
	}
	fmt.Fprintf(&b, `<a href="files/page-%d.pdf">doc</a>`, page)
	if detail, ok := f.detailLinks[page]; ok {
		fmt.Fprintf(&b, `<a href="%s">detail</a>`, detail)
	}
	return b.String()
}

type fakeTransferer struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeTransferer) Transfer(_ context.Context, u string) (sink.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, u)
	if f.err != nil {
		return sink.Failed, f.err
	}
	return sink.Transferred, nil
}

type fakePages struct {
	markup map[string]string
	err    error
}

func (f *fakePages) Page(_ context.Context, u string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.markup[u], nil
}

type fakeCursor struct {
	mu     sync.Mutex
	loaded int
	saved  []int
}

func (f *fakeCursor) Load() int {
	if f.loaded < 1 {
		return 1
	}
	return f.loaded
}

func (f *fakeCursor) Save(page int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, page)
	return nil
}

func (f *fakeCursor) savedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.saved...)
}

type fakeMissing struct {
	names []string
}

func (f *fakeMissing) Record(name string) error {
	f.names = append(f.names, name)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []status.Event
}

func (c *captureEmitter) Emit(evt status.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) byStage(stage status.Stage) []status.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []status.Event
	for _, evt := range c.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type harness struct {
	session  *fakeSession
	transfer *fakeTransferer
	pages    *fakePages
	cursor   *fakeCursor
	missing  *fakeMissing
	emitter  *captureEmitter
	ctrl     *Controller
}

func newHarness(t *testing.T, session *fakeSession, ids ...string) *harness {
	t.Helper()
	h := &harness{
		session:  session,
		transfer: &fakeTransferer{},
		pages:    &fakePages{markup: map[string]string{}},
		cursor:   &fakeCursor{},
		missing:  &fakeMissing{},
		emitter:  &captureEmitter{},
	}
	classifier := classify.New([]string{".pdf", ".zip"}, testPrefix, allowlist.Build(ids))
	h.ctrl = New(
		Config{
			BaseURL:           testBase,
			ContentRetryDelay: time.Millisecond,
			PausePollInterval: 5 * time.Millisecond,
		},
		session, classifier, h.transfer, h.pages, h.cursor, h.missing, h.emitter, nil,
		zap.NewNop(),
	)
	return h
}

func TestRunProcessesEveryPageInOrder(t *testing.T) {
	h := newHarness(t, newFakeSession(13))

	require.NoError(t, h.ctrl.Run(context.Background()))

	want := make([]int, 0, 13)
	for i := 1; i <= 13; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, h.cursor.savedPages(), "save called exactly once per page, strictly increasing")
	assert.Len(t, h.transfer.urls, 13)
	assert.True(t, h.session.closed)
	require.Len(t, h.emitter.byStage(status.StageRunDone), 1)
	assert.Empty(t, h.emitter.byStage(status.StageRunAborted))
}

func TestRunSinglePageListing(t *testing.T) {
	h := newHarness(t, newFakeSession(1))

	require.NoError(t, h.ctrl.Run(context.Background()))
	assert.Equal(t, []int{1}, h.cursor.savedPages())
	assert.Empty(t, h.session.goPageCalls, "no navigation needed for a single page")
}

func TestPrimaryFailureFallsBackToNextLink(t *testing.T) {
	session := newFakeSession(4)
	session.goPageErr[3] = errors.New("goPage is not defined")
	h := newHarness(t, session)

	require.NoError(t, h.ctrl.Run(context.Background()))

	assert.Equal(t, []int{1, 2, 3, 4}, h.cursor.savedPages())
	require.Len(t, session.navigateCalls, 1)
	assert.Contains(t, session.navigateCalls[0], "pageCt=3")

	// Exactly one fallback event for the failed primary attempt, none for
	// the succeeding next-link navigation.
	fallbacks := h.emitter.byStage(status.StageNavFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "page_jump", fallbacks[0].Strategy)
	assert.Equal(t, 3, fallbacks[0].Page)
}

func TestAllFallbacksExhaustedAborts(t *testing.T) {
	session := newFakeSession(3)
	session.goPageAllErr = errors.New("goPage is not defined")
	session.navigateErr = errors.New("nav refused")
	session.clickErr = errors.New("click refused")
	h := newHarness(t, session)

	err := h.ctrl.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all strategies exhausted")

	// Page 1 was processed and saved; page 2 was never reached.
	assert.Equal(t, []int{1}, h.cursor.savedPages())
	assert.True(t, h.session.closed)

	// One fallback event per failed strategy.
	fallbacks := h.emitter.byStage(status.StageNavFallback)
	require.Len(t, fallbacks, 5)
	assert.Equal(t, "page_jump", fallbacks[0].Strategy)
	assert.Equal(t, "next_link_nav", fallbacks[1].Strategy)
	assert.Equal(t, "next_link_click", fallbacks[2].Strategy)
	assert.Equal(t, "reload_page_jump", fallbacks[3].Strategy)
	assert.Equal(t, "session_restart", fallbacks[4].Strategy)
	assert.Equal(t, 1, session.reloadCalls)
	assert.Equal(t, 1, session.restartCalls)

	require.Len(t, h.emitter.byStage(status.StageRunAborted), 1)
	assert.Empty(t, h.emitter.byStage(status.StageRunDone))
}

func TestResumeSeeksToPersistedPage(t *testing.T) {
	session := newFakeSession(8)
	h := newHarness(t, session)
	h.cursor.loaded = 5
	// The resume seek lands the session on page 5 before the loop begins.

	require.NoError(t, h.ctrl.Run(context.Background()))

	assert.Equal(t, []int{5, 6, 7, 8}, h.cursor.savedPages())
	require.NotEmpty(t, session.goPageCalls)
	assert.Equal(t, 5, session.goPageCalls[0])
}

func TestResumeSeekFailureContinuesFromLanding(t *testing.T) {
	session := newFakeSession(8)
	session.goPageErr[5] = errors.New("goPage is not defined")
	h := newHarness(t, session)
	h.cursor.loaded = 5

	require.NoError(t, h.ctrl.Run(context.Background()))

	// The loop still counts from the resume page; re-processed content is
	// absorbed by the sink's idempotence.
	assert.Equal(t, []int{5, 6, 7, 8}, h.cursor.savedPages())
	require.Len(t, h.emitter.byStage(status.StageWarning), 1)
	assert.Empty(t, h.emitter.byStage(status.StageRunAborted))
}

func TestResumeOverrideBeatsPersistedCursor(t *testing.T) {
	session := newFakeSession(6)
	h := newHarness(t, session)
	h.cursor.loaded = 2
	h.ctrl.cfg.ResumeOverride = 4

	require.NoError(t, h.ctrl.Run(context.Background()))
	assert.Equal(t, []int{4, 5, 6}, h.cursor.savedPages())
}

func TestDetailPageWithArtifacts(t *testing.T) {
	session := newFakeSession(1)
	detailURL := testPrefix + "/GF-100/"
	session.detailLinks = map[int]string{1: detailURL}
	h := newHarness(t, session, "GF-100")
	h.pages.markup[detailURL] = `<a href="a.pdf">a</a><a href="b.txt">b</a>`

	require.NoError(t, h.ctrl.Run(context.Background()))

	assert.Contains(t, h.transfer.urls, detailURL+"a.pdf")
	assert.Empty(t, h.missing.names)
	assert.Empty(t, h.emitter.byStage(status.StageMissing))
}

func TestDetailPageWithoutArtifactsLogsMissing(t *testing.T) {
	session := newFakeSession(1)
	detailURL := testPrefix + "/GF-200/"
	session.detailLinks = map[int]string{1: detailURL}
	h := newHarness(t, session, "GF-200")
	h.pages.markup[detailURL] = `<a href="b.txt">b</a>`

	require.NoError(t, h.ctrl.Run(context.Background()))

	assert.Equal(t, []string{"GF-200"}, h.missing.names)
	require.Len(t, h.emitter.byStage(status.StageMissing), 1)
}

func TestDetailFetchErrorDegrades(t *testing.T) {
	session := newFakeSession(1)
	detailURL := testPrefix + "/GF-300/"
	session.detailLinks = map[int]string{1: detailURL}
	h := newHarness(t, session, "GF-300")
	h.pages.err = errors.New("connection reset")

	require.NoError(t, h.ctrl.Run(context.Background()))

	// Fetch failure is logged, not fatal, and records no missing entry
	// because classification never ran.
	assert.Empty(t, h.missing.names)
	assert.NotEmpty(t, h.emitter.byStage(status.StageWarning))
	assert.Empty(t, h.emitter.byStage(status.StageRunAborted))
}

func TestContentFailureDegradesToEmptyPage(t *testing.T) {
	session := newFakeSession(5)
	session.contentErr = errors.New("timeout waiting for body")
	h := newHarness(t, session)

	require.NoError(t, h.ctrl.Run(context.Background()))

	// Empty content means total = 1: one degraded page, no candidates.
	assert.Equal(t, []int{1}, h.cursor.savedPages())
	assert.Empty(t, h.transfer.urls)
}

func TestPauseFlagHoldsLoop(t *testing.T) {
	session := newFakeSession(2)
	h := newHarness(t, session)
	pause := NewPause()
	h.ctrl.pause = pause
	pause.Set()

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(context.Background()) }()

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, h.cursor.savedPages(), "no page may complete while paused")

	pause.Clear()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after unpausing")
	}
	assert.Equal(t, []int{1, 2}, h.cursor.savedPages())
}

func TestCanceledContextAborts(t *testing.T) {
	session := newFakeSession(3)
	h := newHarness(t, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ctrl.Run(ctx)
	require.Error(t, err)
	require.Len(t, h.emitter.byStage(status.StageRunAborted), 1)
}
