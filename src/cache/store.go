package cache

import (
	"sync"

	"github.com/rs/zerolog"
)

// Store is the in-process query cache the router invalidates. Each
// key carries a generation counter that bumps on invalidation so
// observers can detect staleness without polling values.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]any
	generations map[string]uint64
	listeners   []func(key string)
	logger      zerolog.Logger
}

// NewStore creates an empty cache store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		entries:     make(map[string]any),
		generations: make(map[string]uint64),
		logger:      logger.With().Str("component", "realtime-cache").Logger(),
	}
}

// Set stores a value under a logical key.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Get returns the cached value for key, if present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Invalidate discards the entry for key, bumps its generation, and
// notifies listeners. Invalidating an absent key is not an error; the
// generation still advances so refetches are triggered either way.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.generations[key]++
	fns := make([]func(string), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Msg("invalidated")
	for _, fn := range fns {
		fn(key)
	}
}

// Generation returns the invalidation counter for key.
func (s *Store) Generation(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[key]
}

// OnInvalidate registers a callback invoked after each invalidation.
func (s *Store) OnInvalidate(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
