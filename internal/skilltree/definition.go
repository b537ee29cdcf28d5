package skilltree

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the sentinel wrapped by every ValidationError so callers
// can match the whole class with errors.Is.
var ErrValidation = errors.New("skill definition invalid")

// ValidationError reports a skill definition that violates the schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Definition is a loosely-typed skill proposal, either hand-authored or
// produced by the discovery collaborator. It is validated against the tree
// before being materialized into a Skill.
type Definition struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category      string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tier          string   `json:"tier" yaml:"tier"`
	MaxLevel      int      `json:"max_level,omitempty" yaml:"max_level,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
}

// Validate checks the definition against the schema and the target graph:
// non-empty unique id, known tier (and category for the general tree),
// prerequisites resolving to existing skills, sane max_level.
func (d Definition) Validate(g *Graph) error {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if g.Get(id) != nil {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate skill id %s", id)}
	}
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Reason: "missing"}
	}
	if _, ok := Tier(d.Tier).Order(); !ok {
		return &ValidationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", d.Tier)}
	}
	if d.Category != "" {
		if _, ok := knownCategories[Category(d.Category)]; !ok {
			return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", d.Category)}
		}
	} else if g.ID() == TreeGeneral {
		return &ValidationError{Field: "category", Reason: "required for general-tree skills"}
	}
	if d.MaxLevel < 0 {
		return &ValidationError{Field: "max_level", Reason: "must be positive"}
	}
	seen := make(map[string]struct{}, len(d.Prerequisites))
	for _, prereq := range d.Prerequisites {
		if prereq == id {
			return &ValidationError{Field: "prerequisites", Reason: "skill cannot require itself"}
		}
		if _, dup := seen[prereq]; dup {
			return &ValidationError{Field: "prerequisites", Reason: fmt.Sprintf("duplicate prerequisite %s", prereq)}
		}
		seen[prereq] = struct{}{}
		if g.Get(prereq) == nil {
			return &ValidationError{
				Field:  "prerequisites",
				Reason: fmt.Sprintf("prerequisite %s does not exist", prereq),
			}
		}
	}
	return nil
}

// Materialize converts a validated definition into a locked, level-zero
// skill with the given origin.
func (d Definition) Materialize(origin Origin) *Skill {
	maxLevel := d.MaxLevel
	if maxLevel <= 0 {
		maxLevel = DefaultMaxLevel(Tier(d.Tier))
	}
	return &Skill{
		ID:            strings.TrimSpace(d.ID),
		Name:          strings.TrimSpace(d.Name),
		Description:   d.Description,
		Category:      Category(d.Category),
		Tier:          Tier(d.Tier),
		MaxLevel:      maxLevel,
		Prerequisites: append([]string(nil), d.Prerequisites...),
		Origin:        origin,
	}
}

// Merge validates the definition and adds the resulting skill to the graph.
func (g *Graph) Merge(def Definition, origin Origin) (*Skill, error) {
	if err := def.Validate(g); err != nil {
		return nil, err
	}
	skill := def.Materialize(origin)
	if err := g.AddSkill(skill); err != nil {
		return nil, err
	}
	return skill, nil
}
