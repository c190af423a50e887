// Package memory provides an in-memory FlowStore for single-replica
// deployments and tests. Entries live in TTL maps guarded by RW mutexes; an
// internal goroutine evicts expired entries periodically.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth-facade/instrumentation"
	"github.com/giantswarm/mcp-oauth-facade/storage"
)

// Compile-time interface check
var _ storage.FlowStore = (*Store)(nil)

// Store is an in-memory implementation of storage.FlowStore.
type Store struct {
	pending *cache[*storage.PendingAuthorization]
	codes   *cache[*storage.IssuedCode]

	logger *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store with a 1 minute cleanup interval.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. Short intervals tighten expiry accuracy at the cost of more
// frequent full-map sweeps.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &Store{
		pending:         newCache[*storage.PendingAuthorization](),
		codes:           newCache[*storage.IssuedCode](),
		logger:          slog.Default(),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// SetLogger sets the logger for store operations
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation registers store size gauges with the given instrumentation
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return int64(s.pending.len()) },
		func() int64 { return int64(s.codes.len()) },
	)
	if err != nil {
		s.logger.Warn("failed to register storage size callbacks", "error", err)
	}
}

// SavePendingAuthorization stores a pending authorization keyed by state
func (s *Store) SavePendingAuthorization(_ context.Context, pending *storage.PendingAuthorization) error {
	s.pending.put(pending.State, pending, pending.ExpiresAt)
	return nil
}

// ConsumePendingAuthorization retrieves and deletes the pending authorization
// for state. Unknown, expired, and already-consumed states are
// indistinguishable to the caller.
func (s *Store) ConsumePendingAuthorization(_ context.Context, state string) (*storage.PendingAuthorization, error) {
	pending, ok := s.pending.consume(state)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return pending, nil
}

// SaveIssuedCode stores an upstream-issued code keyed by its value
func (s *Store) SaveIssuedCode(_ context.Context, code *storage.IssuedCode) error {
	s.codes.put(code.Code, code, code.ExpiresAt)
	return nil
}

// ConsumeIssuedCode retrieves and deletes the issued code. The removal happens
// under the cache's write lock, so concurrent redemptions of the same code
// yield exactly one success.
func (s *Store) ConsumeIssuedCode(_ context.Context, code string) (*storage.IssuedCode, error) {
	issued, ok := s.codes.consume(code)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return issued, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCleanup:
			return
		case now := <-ticker.C:
			removed := s.pending.purgeExpired(now) + s.codes.purgeExpired(now)
			if removed > 0 {
				s.logger.Debug("cleaned up expired flow state", "removed", removed)
			}
		}
	}
}
