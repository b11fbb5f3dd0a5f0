package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/observability"
)

// agentCeilings are per-call sanity ceilings by agent name. A single call
// reporting more than its ceiling is recorded but flagged as an anomaly.
var agentCeilings = map[string]int{
	"memory_collector": 2000,
	"content_screener": 500,
	"image_generator":  5000,
	"orchestrator":     1000,
}

// BudgetExceededError is terminal for the current action only: the session
// stays usable once the window rolls over.
type BudgetExceededError struct {
	Scope string // "session" or "daily"
	Total int
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s token limit exceeded: %d/%d", e.Scope, e.Total, e.Limit)
}

// Status is the outcome of a budget check.
type Status struct {
	Allowed      bool
	Warn         bool
	SessionTotal int
	DailyTotal   int
}

// Totals is the outcome of recording usage.
type Totals struct {
	SessionTotal int
	DailyTotal   int
	Warn         bool
}

// Tracker enforces the per-session and per-user-daily token ceilings. The
// store is the single point of truth for counters, shared across all of a
// user's sessions.
type Tracker struct {
	store UsageStore
	cfg   config.BudgetConfig
	now   func() time.Time
}

func NewTracker(store UsageStore, cfg config.BudgetConfig) *Tracker {
	return &Tracker{store: store, cfg: cfg, now: time.Now}
}

// Check must run before any paid external call. It projects the estimated
// tokens onto current totals and refuses the operation if either ceiling
// would be crossed; consuming first and discovering the overrun after is not
// allowed.
func (t *Tracker) Check(ctx context.Context, userID, sessionID string, estimatedTokens int) (Status, error) {
	sessionTotal, err := t.store.SessionTotal(ctx, sessionID)
	if err != nil {
		return Status{}, err
	}
	dailyTotal, err := t.store.DailyTotal(ctx, userID, t.dayStart())
	if err != nil {
		return Status{}, err
	}

	st := Status{SessionTotal: sessionTotal, DailyTotal: dailyTotal}
	if sessionTotal+estimatedTokens > t.cfg.MaxTokensPerSession {
		return st, &BudgetExceededError{Scope: "session", Total: sessionTotal + estimatedTokens, Limit: t.cfg.MaxTokensPerSession}
	}
	if dailyTotal+estimatedTokens > t.cfg.MaxTokensPerUserDaily {
		return st, &BudgetExceededError{Scope: "daily", Total: dailyTotal + estimatedTokens, Limit: t.cfg.MaxTokensPerUserDaily}
	}

	st.Allowed = true
	st.Warn = t.nearCeiling(sessionTotal+estimatedTokens, dailyTotal+estimatedTokens)
	if st.Warn {
		observability.LoggerFromContext(ctx).Warn("approaching token ceiling",
			"session_total", sessionTotal, "daily_total", dailyTotal)
	}
	return st, nil
}

// Record stores one agent call's consumption and returns the running totals.
// Recording never refuses: the tokens are already spent. Ceiling enforcement
// belongs in Check, before the spend.
func (t *Tracker) Record(ctx context.Context, userID, sessionID, agentName, operation string, tokens int) (Totals, error) {
	if tokens < 0 {
		tokens = 0
	}
	if ceiling, ok := agentCeilings[agentName]; ok && tokens > ceiling {
		observability.LoggerFromContext(ctx).Warn("agent call above its per-call ceiling",
			"agent", agentName, "tokens", tokens, "ceiling", ceiling)
	}
	rec := UsageRecord{
		UserID:    userID,
		SessionID: sessionID,
		AgentName: agentName,
		Operation: operation,
		Tokens:    tokens,
		Timestamp: t.now().UTC(),
	}
	if err := t.store.Insert(ctx, rec); err != nil {
		return Totals{}, err
	}

	sessionTotal, err := t.store.SessionTotal(ctx, sessionID)
	if err != nil {
		return Totals{}, err
	}
	dailyTotal, err := t.store.DailyTotal(ctx, userID, t.dayStart())
	if err != nil {
		return Totals{}, err
	}

	out := Totals{
		SessionTotal: sessionTotal,
		DailyTotal:   dailyTotal,
		Warn:         t.nearCeiling(sessionTotal, dailyTotal),
	}
	observability.LoggerFromContext(ctx).Info("token usage recorded",
		"agent", agentName, "tokens", tokens,
		"session_total", sessionTotal, "daily_total", dailyTotal)
	return out, nil
}

func (t *Tracker) nearCeiling(sessionTotal, dailyTotal int) bool {
	return float64(sessionTotal) >= t.cfg.WarnThreshold*float64(t.cfg.MaxTokensPerSession) ||
		float64(dailyTotal) >= t.cfg.WarnThreshold*float64(t.cfg.MaxTokensPerUserDaily)
}

func (t *Tracker) dayStart() time.Time {
	now := t.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
