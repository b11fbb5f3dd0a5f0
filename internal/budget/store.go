package budget

import (
	"context"
	"sync"
	"time"
)

// UsageRecord is one agent call's token consumption.
type UsageRecord struct {
	UserID    string
	SessionID string
	AgentName string
	Operation string
	Tokens    int
	Timestamp time.Time
}

// UsageStore is the single point of truth for token counters. Totals are
// monotonically non-decreasing inside their window; the daily window resets
// at the UTC day boundary.
type UsageStore interface {
	Insert(ctx context.Context, rec UsageRecord) error
	SessionTotal(ctx context.Context, sessionID string) (int, error)
	DailyTotal(ctx context.Context, userID string, dayStart time.Time) (int, error)
}

// MemStore keeps usage records in memory. Used in tests and when no database
// path is configured.
type MemStore struct {
	mu      sync.Mutex
	records []UsageRecord
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Insert(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemStore) SessionTotal(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, r := range s.records {
		if r.SessionID == sessionID {
			total += r.Tokens
		}
	}
	return total, nil
}

func (s *MemStore) DailyTotal(_ context.Context, userID string, dayStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, r := range s.records {
		if r.UserID == userID && !r.Timestamp.Before(dayStart) {
			total += r.Tokens
		}
	}
	return total, nil
}
