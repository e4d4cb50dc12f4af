package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/cna-research/geoharvest/internal/status"
)

// Snapshot is a point-in-time view of the run, served by the status API.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	Phase       string    `json:"phase"`
	Page        int       `json:"page"`
	TotalPages  int       `json:"total_pages"`
	Transferred int64     `json:"artifacts_transferred"`
	Existing    int64     `json:"artifacts_already_present"`
	Skipped     int64     `json:"artifacts_skipped"`
	Failed      int64     `json:"artifacts_failed"`
	Missing     int64     `json:"detail_pages_without_artifacts"`
	Fallbacks   int64     `json:"navigation_fallbacks"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tracker folds the event stream into a Snapshot.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Phase: "idle"}}
}

// Consume updates the snapshot from one event.
func (t *Tracker) Consume(_ context.Context, evt status.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RunID = evt.RunID.String()
	t.snap.UpdatedAt = evt.TS
	switch evt.Stage {
	case status.StageRunStart:
		t.snap.Phase = "running"
	case status.StageRunDone:
		t.snap.Phase = "done"
	case status.StageRunAborted:
		t.snap.Phase = "aborted"
	case status.StagePage:
		t.snap.Page = evt.Page
		t.snap.TotalPages = evt.TotalPages
	case status.StageArtifact:
		switch evt.Outcome {
		case "transferred":
			t.snap.Transferred++
		case "already_exists":
			t.snap.Existing++
		case "skipped":
			t.snap.Skipped++
		case "failed":
			t.snap.Failed++
		}
	case status.StageMissing:
		t.snap.Missing++
	case status.StageNavFallback:
		t.snap.Fallbacks++
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
