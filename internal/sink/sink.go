// Package sink performs idempotent, existence-checked transfer of artifact
// byte streams into a destination store.
package sink

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/allowlist"
)

// Destination is the artifact store boundary. Exists must distinguish a
// definitive "not found" (false, nil) from a transient probe failure
// (false, err). Write must not be called for a name that already exists.
type Destination interface {
	Exists(ctx context.Context, name string) (bool, error)
	Write(ctx context.Context, name string, data io.Reader) error
}

// Opener starts an artifact download and returns its raw byte stream.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Outcome is the result of one Transfer call.
type Outcome int

// Transfer outcomes.
const (
	Skipped Outcome = iota
	AlreadyExists
	Transferred
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case AlreadyExists:
		return "already_exists"
	case Transferred:
		return "transferred"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config controls name filtering and destination layout.
type Config struct {
	// Prefix is prepended to every destination key: <prefix>/<filename>.
	Prefix string
	// SkipKeywords filters artifacts whose file name contains any keyword,
	// case-insensitively, before any network access.
	SkipKeywords []string
}

// Sink transfers eligible artifact URLs into a Destination exactly once.
// Re-running over the same URLs is safe: existing objects are never
// re-transferred or overwritten.
type Sink struct {
	cfg    Config
	dest   Destination
	opener Opener
	allow  *allowlist.Allowlist
	logger *zap.Logger
}

// New builds a Sink.
func New(cfg Config, dest Destination, opener Opener, allow *allowlist.Allowlist, logger *zap.Logger) *Sink {
	return &Sink{
		cfg:    cfg,
		dest:   dest,
		opener: opener,
		allow:  allow,
		logger: logger,
	}
}

// Transfer runs the full decision sequence for one artifact URL: skip-keyword
// filter, allowlist filter, existence probe, then streamed write. The error
// is non-nil only for the Failed outcome.
func (s *Sink) Transfer(ctx context.Context, url string) (Outcome, error) {
	name := allowlist.FinalSegment(url)

	if s.matchesSkipKeyword(name) {
		s.logger.Info("filtered out by keyword", zap.String("name", name))
		return Skipped, nil
	}
	if !s.allow.Allowed(url) {
		s.logger.Info("filtered out, not in identifier set", zap.String("name", name))
		return Skipped, nil
	}

	key := s.key(name)
	exists, err := s.dest.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("existence probe failed", zap.String("key", key), zap.Error(err))
		return Failed, fmt.Errorf("probe %s: %w", key, err)
	}
	if exists {
		s.logger.Info("already present, skipping", zap.String("key", key))
		return AlreadyExists, nil
	}

	s.logger.Info("transferring", zap.String("name", name), zap.String("url", url))
	body, err := s.opener.Open(ctx, url)
	if err != nil {
		return Failed, fmt.Errorf("download %s: %w", url, err)
	}
	defer body.Close()

	if err := s.dest.Write(ctx, key, body); err != nil {
		return Failed, fmt.Errorf("write %s: %w", key, err)
	}
	s.logger.Info("transferred", zap.String("key", key))
	return Transferred, nil
}

func (s *Sink) matchesSkipKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range s.cfg.SkipKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (s *Sink) key(name string) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
