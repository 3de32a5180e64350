package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bakkerme/persona-bot/internal/platform"
)

// Store is the in-memory authority for watermarks, mirrored to a Backend after
// every advance. A failed write leaves the in-memory value in place.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	current Watermarks
}

// Open loads persisted watermarks. A missing or unreadable record yields empty state.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{backend: backend, logger: logger, current: Watermarks{TrackedSinceIDs: map[string]string{}}}

	loaded, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info("no persisted state, starting fresh")
	case err != nil:
		logger.Warn("persisted state unreadable, starting fresh", slog.String("error", err.Error()))
	default:
		s.current = loaded.Clone()
		logger.Info("loaded persisted state",
			slog.String("mentions_since_id", loaded.MentionsSinceID),
			slog.Int("tracked_accounts", len(loaded.TrackedSinceIDs)),
		)
	}
	return s
}

func (s *Store) Snapshot() Watermarks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Store) MentionsSinceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.MentionsSinceID
}

func (s *Store) TrackedSinceID(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current.TrackedSinceIDs[userID]
	return id, ok && id != ""
}

// AdvanceMentions moves the mentions watermark to id when id is newer and persists it.
// The returned error reports a failed write only; the advance itself always sticks.
func (s *Store) AdvanceMentions(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || !platform.NewerThan(id, s.current.MentionsSinceID) {
		return false, nil
	}
	s.current.MentionsSinceID = id
	return true, s.persistLocked(ctx)
}

func (s *Store) AdvanceTracked(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == "" || id == "" || !platform.NewerThan(id, s.current.TrackedSinceIDs[userID]) {
		return false, nil
	}
	s.current.TrackedSinceIDs[userID] = id
	return true, s.persistLocked(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.backend.Save(ctx, s.current.Clone()); err != nil {
		s.logger.Error("failed to persist state", slog.String("error", err.Error()))
		return err
	}
	return nil
}
