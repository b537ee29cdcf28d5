// Package generation defines the contract with the external collaborator
// that actually evolves a skill (an AI text/code-generation call). The core
// only schedules attempts and consumes outcomes.
package generation

import (
	"context"

	"sprout/internal/skilltree"
)

// Outcome is the collaborator's verdict on one evolution attempt.
type Outcome struct {
	Success    bool   `json:"success"`
	LevelDelta int    `json:"level_delta"`
	Error      string `json:"error,omitempty"`
}

// Attempt describes the skill the collaborator should evolve, plus the
// scheduling context it may use to steer generation.
type Attempt struct {
	Tree    skilltree.TreeID `json:"tree"`
	SkillID string           `json:"skill_id"`
	Name    string           `json:"name"`
	Tier    skilltree.Tier   `json:"tier"`
	Level   int              `json:"level"`
	Context Context          `json:"context"`
}

// Context is the evolution state handed to the collaborator with each
// attempt: where the agent is in its lifecycle and how recent attempts on
// this skill went.
type Context struct {
	Stage          string   `json:"stage"`
	Index          float64  `json:"index"`
	Cycle          int      `json:"cycle"`
	RecentOutcomes []string `json:"recent_outcomes,omitempty"`
}

// Generator is implemented by the external generation collaborator. The
// call may block up to the coordinator's configured timeout; the coordinator
// treats expiry and errors alike as failure outcomes.
type Generator interface {
	AttemptEvolution(ctx context.Context, attempt Attempt) (Outcome, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, attempt Attempt) (Outcome, error)

func (f GeneratorFunc) AttemptEvolution(ctx context.Context, attempt Attempt) (Outcome, error) {
	return f(ctx, attempt)
}
