// Package skilltree holds the two skill graphs (general and domain) that
// back the evolution scheduler: skill nodes, prerequisite edges, DAG
// validation and unlock bookkeeping.
package skilltree

import (
	"fmt"
)

// TreeID identifies one of the two skill graphs.
type TreeID string

const (
	TreeGeneral TreeID = "general"
	TreeDomain  TreeID = "domain"
)

// Tier is the ordered difficulty band of a skill.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierExpert       Tier = "expert"
	TierMaster       Tier = "master"
)

// tierOrder maps tiers to their rank, basic lowest.
var tierOrder = map[Tier]int{
	TierBasic:        0,
	TierIntermediate: 1,
	TierAdvanced:     2,
	TierExpert:       3,
	TierMaster:       4,
}

// defaultMaxLevels is the per-tier level cap applied when a definition does
// not override max_level.
var defaultMaxLevels = map[Tier]int{
	TierBasic:        20,
	TierIntermediate: 30,
	TierAdvanced:     50,
	TierExpert:       50,
	TierMaster:       50,
}

// TierWeight returns the weight used when aggregating tier coverage. Unknown
// tiers count as basic.
func TierWeight(t Tier) int {
	if order, ok := tierOrder[t]; ok {
		return order + 1
	}
	return 1
}

// Order returns the tier's rank (basic=0 .. master=4) and whether the tier
// is known.
func (t Tier) Order() (int, bool) {
	order, ok := tierOrder[t]
	return order, ok
}

// AtLeast reports whether t is at or above other. Unknown tiers rank lowest.
func (t Tier) AtLeast(other Tier) bool {
	a, _ := t.Order()
	b, _ := other.Order()
	return a >= b
}

// DefaultMaxLevel returns the level cap for a tier.
func DefaultMaxLevel(t Tier) int {
	if max, ok := defaultMaxLevels[t]; ok {
		return max
	}
	return defaultMaxLevels[TierBasic]
}

// Category classifies general-tree skills.
type Category string

const (
	CategoryAnalytical     Category = "analytical"
	CategoryCreative       Category = "creative"
	CategoryTechnical      Category = "technical"
	CategoryCollaborative  Category = "collaborative"
	CategoryProblemSolving Category = "problem_solving"
	CategoryCodeGeneration Category = "code_generation"
	CategoryDebugging      Category = "debugging"
	CategoryTesting        Category = "testing"
	CategoryRefactoring    Category = "refactoring"
	CategoryDocumentation  Category = "documentation"
	CategoryArchitecture   Category = "architecture"
	CategoryPerformance    Category = "performance"
)

var knownCategories = map[Category]struct{}{
	CategoryAnalytical:     {},
	CategoryCreative:       {},
	CategoryTechnical:      {},
	CategoryCollaborative:  {},
	CategoryProblemSolving: {},
	CategoryCodeGeneration: {},
	CategoryDebugging:      {},
	CategoryTesting:        {},
	CategoryRefactoring:    {},
	CategoryDocumentation:  {},
	CategoryArchitecture:   {},
	CategoryPerformance:    {},
}

// Origin records whether a skill was hand-authored or proposed by the
// discovery collaborator.
type Origin string

const (
	OriginAuthored   Origin = "authored"
	OriginDiscovered Origin = "discovered"
)

const (
	// ModifierFloor is the lowest a skill's priority modifier may drop.
	ModifierFloor = -0.8
)

// Skill is a single node in a skill graph.
type Skill struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category      Category `json:"category,omitempty" yaml:"category,omitempty"`
	Tier          Tier     `json:"tier" yaml:"tier"`
	Level         int      `json:"level" yaml:"level"`
	MaxLevel      int      `json:"max_level" yaml:"max_level"`
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	Unlocked      bool     `json:"unlocked" yaml:"unlocked"`
	Origin        Origin   `json:"origin,omitempty" yaml:"origin,omitempty"`

	// PriorityModifier is a bounded selection penalty in [ModifierFloor, 0],
	// driven by the failure tracker.
	PriorityModifier float64 `json:"priority_modifier" yaml:"priority_modifier"`
	// ConsecutiveFailures counts evolution failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures" yaml:"consecutive_failures"`
	// CooldownRemaining is the number of cycles the skill stays ineligible.
	CooldownRemaining int `json:"cooldown_remaining" yaml:"cooldown_remaining"`

	// BasePriority overrides the derived base priority when non-nil
	// (manual override surface).
	BasePriority *float64 `json:"base_priority,omitempty" yaml:"base_priority,omitempty"`
}

// Maxed reports whether the skill has reached its level cap.
func (s *Skill) Maxed() bool {
	return s.Level >= s.MaxLevel
}

// Evolvable reports whether the skill can be picked this cycle: unlocked,
// below its cap and not cooling down.
func (s *Skill) Evolvable() bool {
	return s.Unlocked && !s.Maxed() && s.CooldownRemaining == 0
}

// GainLevels raises the level by delta, clamped to [0, MaxLevel], and
// returns the applied amount. Locked skills never gain levels.
func (s *Skill) GainLevels(delta int) int {
	if !s.Unlocked || delta == 0 {
		return 0
	}
	level := s.Level + delta
	if level > s.MaxLevel {
		level = s.MaxLevel
	}
	if level < 0 {
		level = 0
	}
	applied := level - s.Level
	s.Level = level
	return applied
}

// ApplyModifierDelta shifts the priority modifier by delta, clamped to
// [ModifierFloor, 0].
func (s *Skill) ApplyModifierDelta(delta float64) {
	m := s.PriorityModifier + delta
	if m < ModifierFloor {
		m = ModifierFloor
	}
	if m > 0 {
		m = 0
	}
	s.PriorityModifier = m
}

// DerivedBasePriority mirrors the level-headroom scoring: low-level skills
// in low tiers score higher so the scheduler finishes foundations first.
func (s *Skill) DerivedBasePriority() float64 {
	if s.BasePriority != nil {
		return *s.BasePriority
	}
	headroom := 0.0
	if s.MaxLevel > 0 {
		headroom = 1.0 - float64(s.Level)/float64(s.MaxLevel)
	}
	order, _ := s.Tier.Order()
	return headroom + float64(4-order)*0.05
}

// Clone returns a deep copy of the skill.
func (s *Skill) Clone() *Skill {
	copied := *s
	copied.Prerequisites = append([]string(nil), s.Prerequisites...)
	if s.BasePriority != nil {
		v := *s.BasePriority
		copied.BasePriority = &v
	}
	return &copied
}

func (s *Skill) String() string {
	return fmt.Sprintf("%s (lv %d/%d, %s)", s.ID, s.Level, s.MaxLevel, s.Tier)
}
