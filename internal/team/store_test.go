package team

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetOrCreate(t *testing.T) {
	st := NewStore(time.Hour, 10)

	a := st.GetOrCreate("s1", "u1")
	b := st.GetOrCreate("s1", "u1")
	assert.Same(t, a, b, "same id must return the same session")
	assert.Equal(t, 1, st.Len())

	st.GetOrCreate("s2", "u1")
	assert.Equal(t, 2, st.Len())
}

func TestStoreSweepEvictsIdleSessions(t *testing.T) {
	st := NewStore(10*time.Minute, 10)

	stale := st.GetOrCreate("stale", "u1")
	stale.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	st.GetOrCreate("fresh", "u1")

	removed := st.sweep(time.Now())
	assert.Equal(t, 1, removed)
	assert.Nil(t, st.Get("stale"))
	require.NotNil(t, st.Get("fresh"))
}

func TestStoreEvictsLeastRecentlyActiveWhenFull(t *testing.T) {
	st := NewStore(time.Hour, 3)

	for i := 0; i < 3; i++ {
		s := st.GetOrCreate(fmt.Sprintf("s%d", i), "u1")
		s.lastActivity.Store(time.Now().Add(time.Duration(i) * time.Minute).UnixNano())
	}
	st.GetOrCreate("s3", "u1")

	assert.Equal(t, 3, st.Len())
	assert.Nil(t, st.Get("s0"), "oldest session is evicted to make room")
	assert.NotNil(t, st.Get("s3"))
}

func TestSessionHistoryIsBounded(t *testing.T) {
	s := newSession("s1", "u1")
	for i := 0; i < maxHistoryTurns*2; i++ {
		s.addMessage("user", fmt.Sprintf("turn %d", i))
	}
	assert.Len(t, s.Messages, maxHistoryTurns)
	assert.Equal(t, fmt.Sprintf("turn %d", maxHistoryTurns*2-1), s.Messages[len(s.Messages)-1].Content)
}

func TestConversationContextUsesRecentTurns(t *testing.T) {
	s := newSession("s1", "u1")
	for i := 0; i < 10; i++ {
		s.addMessage("user", fmt.Sprintf("turn %d", i))
	}
	ctxStr := s.conversationContext()
	assert.Contains(t, ctxStr, "USER: turn 9")
	assert.NotContains(t, ctxStr, "turn 0")
}
