package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibbonas/MemAgent/internal/config"
)

func testConfig() config.BudgetConfig {
	return config.BudgetConfig{
		MaxTokensPerSession:   1000,
		MaxTokensPerUserDaily: 3000,
		WarnThreshold:         0.8,
	}
}

func TestCheckRefusesBeforeSpend(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	_, err := tr.Record(ctx, "u1", "s1", "memory_collector", "collection", 900)
	require.NoError(t, err)

	// 900 spent, 200 projected: the check must refuse before the call.
	_, err = tr.Check(ctx, "u1", "s1", 200)
	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "session", be.Scope)
	assert.Equal(t, 1100, be.Total)
	assert.Equal(t, 1000, be.Limit)

	// A smaller estimate still fits.
	st, err := tr.Check(ctx, "u1", "s1", 100)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
}

func TestCheckDailyCeilingSpansSessions(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	for i, sid := range []string{"s1", "s2", "s3"} {
		_, err := tr.Record(ctx, "u1", sid, "memory_collector", "collection", 950)
		require.NoError(t, err, "session %d", i)
	}

	// 2850 across sessions; 200 more would cross the 3000 daily ceiling.
	_, err := tr.Check(ctx, "u1", "s4", 200)
	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "daily", be.Scope)

	// A different user is unaffected.
	st, err := tr.Check(ctx, "u2", "s5", 200)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
}

func TestDailyWindowRollsOverAtUTCMidnight(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	now := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	_, err := tr.Record(ctx, "u1", "s1", "image_generator", "generation", 2900)
	require.NoError(t, err)
	_, err = tr.Check(ctx, "u1", "s2", 500)
	require.Error(t, err)

	// Ten minutes later it is a new UTC day; the daily counter is fresh.
	now = now.Add(10 * time.Minute)
	st, err := tr.Check(ctx, "u1", "s2", 500)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Zero(t, st.DailyTotal)
}

func TestWarnNearCeiling(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	totals, err := tr.Record(ctx, "u1", "s1", "memory_collector", "collection", 850)
	require.NoError(t, err)
	assert.True(t, totals.Warn, "850/1000 is past the 0.8 warn threshold")

	tr2 := NewTracker(NewMemStore(), testConfig())
	totals, err = tr2.Record(ctx, "u1", "s1", "memory_collector", "collection", 100)
	require.NoError(t, err)
	assert.False(t, totals.Warn)
}

func TestRecordNeverRefuses(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	// Way past every ceiling; the tokens are already spent, so recording
	// must still succeed.
	totals, err := tr.Record(ctx, "u1", "s1", "image_generator", "generation", 9000)
	require.NoError(t, err)
	assert.Equal(t, 9000, totals.SessionTotal)

	_, err = tr.Check(ctx, "u1", "s1", 1)
	var be *BudgetExceededError
	assert.True(t, errors.As(err, &be))
}

func TestRecordClampsNegativeTokens(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemStore(), testConfig())

	totals, err := tr.Record(ctx, "u1", "s1", "memory_collector", "collection", -50)
	require.NoError(t, err)
	assert.Zero(t, totals.SessionTotal)
}
