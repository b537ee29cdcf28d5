// Package discovery defines the contract with the external collaborator
// that proposes new skill definitions at milestones, plus the parsing layer
// that turns its loosely-formed JSON into validated definitions.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"sprout/internal/skilltree"
)

// TreeSnapshot is the read-only view handed to the collaborator: enough to
// reason about gaps without exposing mutable graph state.
type TreeSnapshot struct {
	Tree   skilltree.TreeID `json:"tree"`
	Skills []SkillSummary   `json:"skills"`
	Stage  string           `json:"stage"`
	Index  float64          `json:"index"`
}

// SkillSummary is the per-skill slice of the snapshot.
type SkillSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Tier     skilltree.Tier `json:"tier"`
	Level    int            `json:"level"`
	MaxLevel int            `json:"max_level"`
	Unlocked bool           `json:"unlocked"`
}

// Discoverer is implemented by the external discovery collaborator. It is
// invoked only when a milestone condition is met.
type Discoverer interface {
	DiscoverSkills(ctx context.Context, snapshot TreeSnapshot) ([]skilltree.Definition, error)
}

// DiscovererFunc adapts a function to the Discoverer interface.
type DiscovererFunc func(ctx context.Context, snapshot TreeSnapshot) ([]skilltree.Definition, error)

func (f DiscovererFunc) DiscoverSkills(ctx context.Context, snapshot TreeSnapshot) ([]skilltree.Definition, error) {
	return f(ctx, snapshot)
}

// ParseProposals decodes a raw collaborator payload into definitions.
// Collaborator output is AI-generated and frequently malformed (trailing
// commas, unquoted keys, fenced blocks), so a repair pass runs before
// strict decoding. Schema validation happens later, against the target
// graph.
func ParseProposals(raw string) ([]skilltree.Definition, error) {
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair proposals payload: %w", err)
	}

	var defs []skilltree.Definition
	if err := json.Unmarshal([]byte(repaired), &defs); err != nil {
		// Some collaborators wrap the list in an object.
		var wrapped struct {
			Skills []skilltree.Definition `json:"skills"`
		}
		if err2 := json.Unmarshal([]byte(repaired), &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode proposals: %w", err)
		}
		defs = wrapped.Skills
	}
	return defs, nil
}

// Snapshot builds a TreeSnapshot from a graph and the current scheduling
// state.
func Snapshot(g *skilltree.Graph, stage string, index float64) TreeSnapshot {
	snap := TreeSnapshot{Tree: g.ID(), Stage: stage, Index: index}
	for _, skill := range g.Skills() {
		snap.Skills = append(snap.Skills, SkillSummary{
			ID:       skill.ID,
			Name:     skill.Name,
			Tier:     skill.Tier,
			Level:    skill.Level,
			MaxLevel: skill.MaxLevel,
			Unlocked: skill.Unlocked,
		})
	}
	return snap
}
