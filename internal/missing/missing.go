// Package missing records detail pages that yielded no downloadable artifact
// so they can be reviewed manually after a run.
package missing

import (
	"fmt"
	"os"
	"sync"
)

// Log is an append-only, one-name-per-line file, truncated once per run.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open truncates (or creates) the log file and returns the Log.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- operator-configured log path.
	if err != nil {
		return nil, fmt.Errorf("truncate missing log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close missing log: %w", err)
	}
	return &Log{path: path}, nil
}

// Record appends one base name to the log.
func (l *Log) Record(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("open missing log: %w", err)
	}
	if _, err := fmt.Fprintln(f, name); err != nil {
		f.Close()
		return fmt.Errorf("append missing entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close missing log: %w", err)
	}
	return nil
}
