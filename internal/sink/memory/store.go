// Package memory implements an in-memory artifact destination for tests and
// dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Store keeps written objects in a map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// ExistsErr, when set, is returned by every Exists call to simulate a
	// transient probe failure.
	ExistsErr error
	// WriteErr, when set, is returned by every Write call.
	WriteErr error
}

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Exists reports whether name was previously written.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok, nil
}

// Write stores the stream under name. Overwriting is rejected to surface
// idempotence violations in tests.
func (s *Store) Write(_ context.Context, name string, data io.Reader) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; ok {
		return fmt.Errorf("object %s already exists", name)
	}
	s.objects[name] = buf
	return nil
}

// Get returns a stored object's bytes.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.objects[name]
	return buf, ok
}

// Len reports how many objects were written.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
