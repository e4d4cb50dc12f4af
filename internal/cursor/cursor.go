// Package cursor persists the crawl's resume point: the last fully processed
// listing page.
package cursor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store reads and writes the resume file. The on-disk record is
// "<page>, time: <03:04 PM>, date: <2006-01-02>"; only the leading integer
// is authoritative on read, the rest is for operators eyeballing the file.
type Store struct {
	path string
}

// New creates a Store for the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted page, defaulting to 1 when the file is missing,
// unreadable, or corrupt. Load never fails the run.
func (s *Store) Load() int {
	// #nosec G304 -- operator-configured resume file path.
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 1
	}
	head, _, _ := strings.Cut(string(data), ",")
	page, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Save overwrites the resume record. The write goes through a temp file and
// rename so an interrupted save leaves either the old record or the new one,
// never a torn value.
func (s *Store) Save(page int, at time.Time) error {
	if page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", page)
	}
	record := fmt.Sprintf("%d, time: %s, date: %s", page, at.Format("03:04 PM"), at.Format("2006-01-02"))

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".resume-*")
	if err != nil {
		return fmt.Errorf("create temp resume file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(record); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write resume record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp resume file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace resume file: %w", err)
	}
	return nil
}
