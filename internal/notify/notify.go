// Package notify publishes a run summary when a harvest finishes. The
// notifier is a status sink: it folds artifact outcomes as they stream past
// and emits one message on RUN_DONE or RUN_ABORTED.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cna-research/geoharvest/internal/status"
)

// Publisher sends one payload to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Summary is the completion payload.
type Summary struct {
	RunID         uuid.UUID `json:"run_id"`
	Result        string    `json:"result"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Pages         int       `json:"pages"`
	Transferred   int       `json:"transferred"`
	AlreadyExists int       `json:"already_exists"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Missing       int       `json:"missing"`
	Note          string    `json:"note,omitempty"`
}

// Notifier accumulates per-run counters and publishes the summary once.
type Notifier struct {
	publisher Publisher
	topic     string

	mu      sync.Mutex
	summary Summary
	sent    bool
}

// New returns a Notifier publishing to topic. The publisher must not be nil.
func New(publisher Publisher, topic string) (*Notifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &Notifier{publisher: publisher, topic: topic}, nil
}

// Consume folds one status event into the pending summary, publishing it
// when the run completes. Publish failure surfaces as the consume error; the
// hub logs it without disturbing the crawl.
func (n *Notifier) Consume(ctx context.Context, evt status.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch evt.Stage {
	case status.StageRunStart:
		n.summary = Summary{RunID: evt.RunID, StartedAt: evt.TS}
		n.sent = false
	case status.StagePage:
		n.summary.Pages = evt.Page
	case status.StageMissing:
		n.summary.Missing++
	case status.StageArtifact:
		switch evt.Outcome {
		case "transferred":
			n.summary.Transferred++
		case "already_exists":
			n.summary.AlreadyExists++
		case "skipped":
			n.summary.Skipped++
		case "failed":
			n.summary.Failed++
		}
	case status.StageRunDone:
		return n.publish(ctx, evt, "done")
	case status.StageRunAborted:
		return n.publish(ctx, evt, "aborted")
	}
	return nil
}

// Close is a no-op; the summary goes out with the completion event.
func (n *Notifier) Close(context.Context) error {
	return nil
}

func (n *Notifier) publish(ctx context.Context, evt status.Event, result string) error {
	if n.sent {
		return nil
	}
	n.summary.RunID = evt.RunID
	n.summary.Result = result
	n.summary.FinishedAt = evt.TS
	n.summary.Note = evt.Note
	if _, err := n.publisher.Publish(ctx, n.topic, n.summary); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	n.sent = true
	return nil
}
