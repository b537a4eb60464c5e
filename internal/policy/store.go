package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sqlguard/internal/domain"
)

// Store loads policies from the repository and publishes them as
// immutable snapshots. Current never blocks on a reload in progress and
// a failed reload keeps the last good snapshot, so enforcement always
// has a consistent policy set to work from.
type Store struct {
	repo   domain.PolicyRepository
	logger *slog.Logger

	mu      sync.RWMutex
	snap    *Snapshot
	version int64
}

// NewStore creates a store with an empty initial snapshot. Call Reload
// before serving traffic.
func NewStore(repo domain.PolicyRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With("component", "policy_store"),
		snap:   newSnapshot(0, nil),
	}
}

// Current returns the latest published snapshot.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reload fetches all enabled policies and publishes a new snapshot.
// On error the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	policies, err := s.repo.List(ctx, true)
	if err != nil {
		s.logger.Error("policy reload failed, keeping previous snapshot",
			"error", err)
		return nil, fmt.Errorf("reload policies: %w", err)
	}

	s.mu.Lock()
	s.version++
	snap := newSnapshot(s.version, policies)
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("policy snapshot published",
		"version", snap.Version,
		"policies", snap.Len())
	return snap, nil
}

// Run refreshes the snapshot on a fixed interval until the context is
// cancelled. Covers edits made by other instances that never pass
// through this process's admin surface.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reload(ctx); err != nil {
				s.logger.Warn("periodic policy refresh failed", "error", err)
			}
		}
	}
}
