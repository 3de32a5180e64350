package ledger

import (
	"context"
	"sync"
	"time"
)

type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (m *MemoryLedger) Replied(_ context.Context, postID string) (bool, error) {
	if postID == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.entries[postID]
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && at.Before(m.now().Add(-m.ttl)) {
		delete(m.entries, postID)
		return false, nil
	}
	return true, nil
}

func (m *MemoryLedger) Record(_ context.Context, postID, _ string) error {
	if postID == "" {
		return nil
	}
	m.mu.Lock()
	m.entries[postID] = m.now()
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) Close() error { return nil }
