// Package status fans crawl progress out to registered sinks without ever
// blocking the controller. Delivery is fire-and-forget: a slow or broken
// sink costs dropped events, never crawl time.
package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the kind of milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunAborted  Stage = "RUN_ABORTED"
	StagePage        Stage = "PAGE"
	StageArtifact    Stage = "ARTIFACT"
	StageMissing     Stage = "MISSING"
	StageNavFallback Stage = "NAV_FALLBACK"
	StageWarning     Stage = "WARNING"
)

// Event captures a single piece of crawl progress.
type Event struct {
	// RunID identifies the crawl run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Page and TotalPages scope the event within the pagination loop.
	Page       int
	TotalPages int
	// Artifact is the destination name for artifact events.
	Artifact string
	// Outcome is the transfer outcome label for artifact events.
	Outcome string
	// Strategy names the navigation strategy for fallback events.
	Strategy string
	// Note carries human-readable context (warning and error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunAborted, StagePage,
		StageMissing, StageNavFallback, StageWarning:
	case StageArtifact:
		if e.Outcome == "" {
			return errors.New("artifact event requires an outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
