// Package ledger persists run and artifact outcomes to Postgres for
// post-run review. It is an optional status sink: a harvest without a
// configured DSN simply runs without one.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cna-research/geoharvest/internal/status"
)

// Config controls the Postgres connection pool behind the ledger.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger writes one row per run and one row per artifact outcome. It
// consumes status events, so it plugs into the hub beside the log and
// metrics sinks.
type Ledger struct {
	pool execCloser
}

// New connects a pool and returns a ready ledger.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// NewWithPool constructs a ledger from an existing pool (primarily for
// testing).
func NewWithPool(pool execCloser) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Ledger{pool: pool}, nil
}

// Consume maps one status event onto the ledger tables. Stages without a
// durable footprint (pages, warnings, navigation fallbacks) are ignored.
func (l *Ledger) Consume(ctx context.Context, evt status.Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("ledger is not configured")
	}
	switch evt.Stage {
	case status.StageRunStart:
		return l.runStarted(ctx, evt)
	case status.StageRunDone:
		return l.runFinished(ctx, evt, "done", "")
	case status.StageRunAborted:
		return l.runFinished(ctx, evt, "aborted", evt.Note)
	case status.StageArtifact:
		return l.artifact(ctx, evt)
	default:
		return nil
	}
}

// Close releases the underlying pool resources.
func (l *Ledger) Close(context.Context) error {
	if l == nil || l.pool == nil {
		return nil
	}
	l.pool.Close()
	return nil
}

func (l *Ledger) runStarted(ctx context.Context, evt status.Event) error {
	query := `
		INSERT INTO harvest_runs (id, started_at, result)
		VALUES ($1, $2, 'running')
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := l.pool.Exec(ctx, query, evt.RunID, evt.TS); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

func (l *Ledger) runFinished(ctx context.Context, evt status.Event, result, note string) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, result = $2, pages = $3, note = $4
		WHERE id = $5;
	`
	if _, err := l.pool.Exec(ctx, query, evt.TS, result, evt.TotalPages, note, evt.RunID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (l *Ledger) artifact(ctx context.Context, evt status.Event) error {
	query := `
		INSERT INTO harvest_artifacts (run_id, recorded_at, artifact, outcome)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := l.pool.Exec(ctx, query, evt.RunID, evt.TS, evt.Artifact, evt.Outcome); err != nil {
		return fmt.Errorf("insert artifact outcome: %w", err)
	}
	return nil
}
