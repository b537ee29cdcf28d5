// Package evolution implements the scheduling core: the composite evolution
// index, the stage classifier, the per-skill failure escalation policy, the
// selector and the cycle coordinator.
package evolution

import (
	"sprout/internal/skilltree"
)

// IndexWeights configures the composite index. The four weights are
// expected to sum to 1.
type IndexWeights struct {
	Breadth float64 `mapstructure:"breadth" yaml:"breadth"`
	Depth   float64 `mapstructure:"depth" yaml:"depth"`
	Tier    float64 `mapstructure:"tier" yaml:"tier"`
	Mastery float64 `mapstructure:"mastery" yaml:"mastery"`
	// HighTier is the tier bound for the tier sub-metric: unlocked skills at
	// or above it count as high-tier coverage.
	HighTier skilltree.Tier `mapstructure:"high_tier" yaml:"high_tier"`
}

// DefaultIndexWeights returns the configured defaults.
func DefaultIndexWeights() IndexWeights {
	return IndexWeights{
		Breadth:  0.25,
		Depth:    0.35,
		Tier:     0.20,
		Mastery:  0.20,
		HighTier: skilltree.TierAdvanced,
	}
}

// Index is the 0-100 composite progress score with its per-dimension
// breakdown, recomputed from scratch every cycle.
type Index struct {
	Value   float64 `json:"value"`
	Breadth float64 `json:"breadth"`
	Depth   float64 `json:"depth"`
	Tier    float64 `json:"tier"`
	Mastery float64 `json:"mastery"`

	TotalSkills    int `json:"total_skills"`
	UnlockedSkills int `json:"unlocked_skills"`
	LevelSum       int `json:"level_sum"`
	MaxLevelSum    int `json:"max_level_sum"`
	MasteredSkills int `json:"mastered_skills"`
}

// CalculateIndex computes the composite index over both trees combined.
// Pure: no caching, no side effects. Empty trees score zero.
func CalculateIndex(weights IndexWeights, trees ...*skilltree.Graph) Index {
	var idx Index
	var unlockedHigh int

	for _, tree := range trees {
		if tree == nil {
			continue
		}
		for _, skill := range tree.Skills() {
			idx.TotalSkills++
			idx.LevelSum += skill.Level
			idx.MaxLevelSum += skill.MaxLevel
			if skill.Unlocked {
				idx.UnlockedSkills++
				if skill.Tier.AtLeast(weights.HighTier) {
					unlockedHigh++
				}
			}
			if skill.Maxed() {
				idx.MasteredSkills++
			}
		}
	}

	if idx.TotalSkills == 0 {
		return idx
	}

	total := float64(idx.TotalSkills)
	idx.Breadth = float64(idx.UnlockedSkills) / total
	if idx.MaxLevelSum > 0 {
		idx.Depth = float64(idx.LevelSum) / float64(idx.MaxLevelSum)
	}
	idx.Tier = float64(unlockedHigh) / total
	idx.Mastery = float64(idx.MasteredSkills) / total

	idx.Value = 100 * (weights.Breadth*idx.Breadth +
		weights.Depth*idx.Depth +
		weights.Tier*idx.Tier +
		weights.Mastery*idx.Mastery)
	return idx
}
