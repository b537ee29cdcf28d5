package skilltree

import (
	"fmt"
)

// Graph is one skill tree: an id-keyed set of skills with prerequisite
// edges forming a DAG. Insertion order is preserved so selection tie-breaks
// stay deterministic across runs.
type Graph struct {
	id     TreeID
	skills map[string]*Skill
	order  []string
}

// NewGraph returns an empty graph for the given tree.
func NewGraph(id TreeID) *Graph {
	return &Graph{
		id:     id,
		skills: make(map[string]*Skill),
	}
}

// ID returns the tree identifier.
func (g *Graph) ID() TreeID { return g.id }

// Len returns the number of skills in the graph.
func (g *Graph) Len() int { return len(g.order) }

// Get returns the skill with the given id, or nil.
func (g *Graph) Get(id string) *Skill {
	return g.skills[id]
}

// IDs returns all skill ids in insertion order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Skills returns the skills in insertion order. The returned pointers alias
// graph state; callers that need isolation should use Clone.
func (g *Graph) Skills() []*Skill {
	out := make([]*Skill, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.skills[id])
	}
	return out
}

// AddSkill inserts a validated skill into the graph. The id must be unique,
// every prerequisite must already exist, and the new edges must not close a
// cycle. Skills without prerequisites unlock immediately.
func (g *Graph) AddSkill(skill *Skill) error {
	if skill == nil || skill.ID == "" {
		return &ValidationError{Field: "id", Reason: "empty skill id"}
	}
	if _, exists := g.skills[skill.ID]; exists {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("skill %s already exists", skill.ID)}
	}
	for _, prereq := range skill.Prerequisites {
		if _, ok := g.skills[prereq]; !ok {
			return &ValidationError{
				Field:  "prerequisites",
				Reason: fmt.Sprintf("prerequisite %s not found for skill %s", prereq, skill.ID),
			}
		}
	}
	if skill.MaxLevel <= 0 {
		skill.MaxLevel = DefaultMaxLevel(skill.Tier)
	}

	g.skills[skill.ID] = skill
	g.order = append(g.order, skill.ID)

	if !g.acyclic() {
		delete(g.skills, skill.ID)
		g.order = g.order[:len(g.order)-1]
		return &ValidationError{
			Field:  "prerequisites",
			Reason: fmt.Sprintf("skill %s would create a prerequisite cycle", skill.ID),
		}
	}

	if len(skill.Prerequisites) == 0 && !skill.Unlocked {
		skill.Unlocked = true
	}
	return nil
}

// RestoreSkill reinserts a persisted skill verbatim: same validation as
// AddSkill but without the root auto-unlock side effect, so a load/save
// round trip reproduces every field exactly.
func (g *Graph) RestoreSkill(skill *Skill) error {
	if skill == nil || skill.ID == "" {
		return &ValidationError{Field: "id", Reason: "empty skill id"}
	}
	if _, exists := g.skills[skill.ID]; exists {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("skill %s already exists", skill.ID)}
	}
	for _, prereq := range skill.Prerequisites {
		if _, ok := g.skills[prereq]; !ok {
			return &ValidationError{
				Field:  "prerequisites",
				Reason: fmt.Sprintf("prerequisite %s not found for skill %s", prereq, skill.ID),
			}
		}
	}
	if skill.MaxLevel <= 0 {
		skill.MaxLevel = DefaultMaxLevel(skill.Tier)
	}

	g.skills[skill.ID] = skill
	g.order = append(g.order, skill.ID)

	if !g.acyclic() {
		delete(g.skills, skill.ID)
		g.order = g.order[:len(g.order)-1]
		return &ValidationError{
			Field:  "prerequisites",
			Reason: fmt.Sprintf("skill %s would create a prerequisite cycle", skill.ID),
		}
	}
	return nil
}

// acyclic verifies the prerequisite edges form a DAG.
func (g *Graph) acyclic() bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.skills))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		for _, prereq := range g.skills[id].Prerequisites {
			switch state[prereq] {
			case visiting:
				return false
			case unvisited:
				if !visit(prereq) {
					return false
				}
			}
		}
		state[id] = done
		return true
	}

	for _, id := range g.order {
		if state[id] == unvisited && !visit(id) {
			return false
		}
	}
	return true
}

// DefaultUnlockLevel is the level a prerequisite must reach before it
// counts as satisfied, clamped to the prerequisite's own cap.
const DefaultUnlockLevel = 5

// PrerequisitesMet reports whether every prerequisite of the skill is
// unlocked and has reached the unlock level. Unknown ids report false.
func (g *Graph) PrerequisitesMet(id string) bool {
	skill, ok := g.skills[id]
	if !ok {
		return false
	}
	for _, prereq := range skill.Prerequisites {
		p, ok := g.skills[prereq]
		if !ok || !p.Unlocked {
			return false
		}
		need := DefaultUnlockLevel
		if p.MaxLevel < need {
			need = p.MaxLevel
		}
		if p.Level < need {
			return false
		}
	}
	return true
}

// UnlockEligible flips every locked skill whose prerequisites are all
// unlocked, and returns the ids unlocked in this sweep. Skills unlocked here
// are not selectable in the same selection pass that triggered the sweep.
func (g *Graph) UnlockEligible() []string {
	var unlocked []string
	for _, id := range g.order {
		skill := g.skills[id]
		if skill.Unlocked {
			continue
		}
		if g.PrerequisitesMet(id) {
			skill.Unlocked = true
			unlocked = append(unlocked, id)
		}
	}
	return unlocked
}

// ForceUnlock unlocks a skill regardless of its prerequisites. Used only by
// the manual override surface.
func (g *Graph) ForceUnlock(id string) error {
	skill, ok := g.skills[id]
	if !ok {
		return fmt.Errorf("skill %s not found in %s tree", id, g.id)
	}
	skill.Unlocked = true
	return nil
}

// Evolvable returns the skills eligible for selection this cycle, in
// insertion order.
func (g *Graph) Evolvable() []*Skill {
	var out []*Skill
	for _, id := range g.order {
		if skill := g.skills[id]; skill.Evolvable() {
			out = append(out, skill)
		}
	}
	return out
}

// DirectPrerequisites returns the prerequisite skills of id that exist in
// the graph, in declaration order.
func (g *Graph) DirectPrerequisites(id string) []*Skill {
	skill, ok := g.skills[id]
	if !ok {
		return nil
	}
	out := make([]*Skill, 0, len(skill.Prerequisites))
	for _, prereq := range skill.Prerequisites {
		if p, ok := g.skills[prereq]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy of the graph. Used for snapshot publishing so
// API readers never observe a half-updated tree.
func (g *Graph) Clone() *Graph {
	copied := NewGraph(g.id)
	copied.order = append([]string(nil), g.order...)
	for id, skill := range g.skills {
		copied.skills[id] = skill.Clone()
	}
	return copied
}

// Equal reports whether two graphs hold the same skills with the same field
// values in the same insertion order.
func (g *Graph) Equal(other *Graph) bool {
	if other == nil || g.id != other.id || len(g.order) != len(other.order) {
		return false
	}
	for i, id := range g.order {
		if other.order[i] != id {
			return false
		}
		a, b := g.skills[id], other.skills[id]
		if a.ID != b.ID || a.Name != b.Name || a.Description != b.Description ||
			a.Category != b.Category || a.Tier != b.Tier ||
			a.Level != b.Level || a.MaxLevel != b.MaxLevel ||
			a.Unlocked != b.Unlocked || a.Origin != b.Origin ||
			a.PriorityModifier != b.PriorityModifier ||
			a.ConsecutiveFailures != b.ConsecutiveFailures ||
			a.CooldownRemaining != b.CooldownRemaining {
			return false
		}
		if len(a.Prerequisites) != len(b.Prerequisites) {
			return false
		}
		for j := range a.Prerequisites {
			if a.Prerequisites[j] != b.Prerequisites[j] {
				return false
			}
		}
		switch {
		case a.BasePriority == nil && b.BasePriority != nil,
			a.BasePriority != nil && b.BasePriority == nil:
			return false
		case a.BasePriority != nil && *a.BasePriority != *b.BasePriority:
			return false
		}
	}
	return true
}
