package team

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gibbonas/MemAgent/internal/observability"
)

// Store holds live sessions in memory. Sessions idle past the TTL are
// evicted by the cleanup loop; when the store is full the least recently
// active session is dropped to make room.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	ttl        time.Duration
	maxEntries int
}

func NewStore(ttl time.Duration, maxEntries int) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// GetOrCreate returns the session for id, creating it when absent. The
// caller supplies the user the session belongs to; a session never changes
// owners.
func (st *Store) GetOrCreate(id, userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.touch()
		return s
	}
	if len(st.sessions) >= st.maxEntries {
		st.evictOldestLocked()
	}
	s := newSession(id, userID)
	st.sessions[id] = s
	return s
}

// Get returns the session for id, or nil.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[id]
}

// Delete removes a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range st.sessions {
		if t := s.lastTouched(); oldestID == "" || t.Before(oldest) {
			oldestID = id
			oldest = t
		}
	}
	if oldestID != "" {
		delete(st.sessions, oldestID)
	}
}

// sweep drops sessions idle past the TTL and returns how many were removed.
func (st *Store) sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if now.Sub(s.lastTouched()) > st.ttl {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs the eviction sweep until ctx is cancelled.
func (st *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := st.sweep(now); n > 0 {
					observability.Logger().Info("expired sessions evicted",
						slog.Int("count", n), slog.Int("remaining", st.Len()))
				}
			}
		}
	}()
}
