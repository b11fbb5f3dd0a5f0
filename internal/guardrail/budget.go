package guardrail

import (
	"context"

	"github.com/gibbonas/MemAgent/internal/budget"
)

// TokenBudget gates the paid checkpoints on the budget tracker. The check
// runs before the external call is made, never after.
type TokenBudget struct {
	tracker *budget.Tracker
}

func NewTokenBudget(tracker *budget.Tracker) *TokenBudget {
	return &TokenBudget{tracker: tracker}
}

func (g *TokenBudget) Name() string { return "token_budget" }

func (g *TokenBudget) Check(ctx context.Context, cp Checkpoint, req Request) error {
	if cp != PreScreening && cp != PreGeneration {
		return nil
	}
	_, err := g.tracker.Check(ctx, req.UserID, req.SessionID, req.EstimatedTokens)
	return err
}
