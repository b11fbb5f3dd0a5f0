// Package guardrail provides pluggable checks that gate pipeline stages at
// fixed checkpoints. Adding a new guardrail means appending it to the chain;
// stage handlers never change.
package guardrail

import (
	"context"

	"github.com/gibbonas/MemAgent/internal/observability"
)

// Checkpoint names a fixed gate in the pipeline.
type Checkpoint string

const (
	PreSearch     Checkpoint = "pre_search"
	PreScreening  Checkpoint = "pre_screening"
	PreGeneration Checkpoint = "pre_generation"
)

// Request carries what a guardrail needs to judge an operation.
type Request struct {
	UserID          string
	SessionID       string
	Content         string
	PeopleTags      []string
	EstimatedTokens int
}

// Guardrail is one pluggable check. A nil return lets the operation proceed.
type Guardrail interface {
	Name() string
	Check(ctx context.Context, cp Checkpoint, req Request) error
}

// Chain runs guardrails in order; the first refusal wins.
type Chain struct {
	rails []Guardrail
}

func NewChain(rails ...Guardrail) *Chain {
	return &Chain{rails: rails}
}

func (c *Chain) Run(ctx context.Context, cp Checkpoint, req Request) error {
	if c == nil {
		return nil
	}
	for _, g := range c.rails {
		if err := g.Check(ctx, cp, req); err != nil {
			observability.LoggerFromContext(ctx).Warn("guardrail refused operation",
				"guardrail", g.Name(), "checkpoint", string(cp), "error", err)
			return err
		}
	}
	return nil
}
