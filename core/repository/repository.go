// Package repository persists JSON documents by key and serialises writers
// of the same key.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/flexplan/core/logger"
)

// ErrCorrupt wraps decode failures of a stored document.
var ErrCorrupt = errors.New("corrupt document")

// Repository is a key value store of JSON documents.
type Repository interface {
	// Get decodes the document stored under key into out. It reports false
	// when the key does not exist and wraps decode failures in ErrCorrupt.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Save replaces the document stored under key.
	Save(ctx context.Context, key string, doc any) error
}

// Store wraps a Repository so that every read-modify-write of a key runs
// under a per key lock.
type Store struct {
	repo  Repository
	log   logger.Logger
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore returns a Store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, locks: map[string]*keyLock{}}
}

// WithLogger sets the logger warning about corrupt documents.
func (s *Store) WithLogger(log logger.Logger) *Store {
	s.log = log
	return s
}

// Get reads the document stored under key.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	return s.repo.Get(ctx, key, out)
}

// Save replaces the document under key while holding its lock.
func (s *Store) Save(ctx context.Context, key string, doc any) error {
	unlock := s.lock(key)
	defer unlock()
	return s.repo.Save(ctx, key, doc)
}

func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Update loads the document under key, applies fn and saves the result.
// Concurrent updates of the same key are applied one after the other.
// Returning an error from fn leaves the stored document untouched. A corrupt
// document is treated as missing so the next write replaces it.
func Update[T any](ctx context.Context, s *Store, key string, fn func(cur T, found bool) (T, error)) (T, error) {
	unlock := s.lock(key)
	defer unlock()

	var cur T
	found, err := s.repo.Get(ctx, key, &cur)
	if errors.Is(err, ErrCorrupt) {
		if s.log != nil {
			s.log.Warnf("replacing corrupt document %s: %v", key, err)
		}
		var zero T
		cur, found, err = zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	next, err := fn(cur, found)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := s.repo.Save(ctx, key, next); err != nil {
		var zero T
		return zero, fmt.Errorf("save %s: %w", key, err)
	}
	return next, nil
}
