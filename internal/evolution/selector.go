package evolution

import (
	"errors"
	"math/rand"
	"sort"

	"sprout/internal/skilltree"
)

// ErrSelectionExhausted reports that neither tree holds an eligible skill
// this cycle. Non-fatal: the cycle becomes a no-op.
var ErrSelectionExhausted = errors.New("no eligible skill in either tree")

// Selection is the selector's output: exactly one (tree, skill) pair.
type Selection struct {
	Tree  skilltree.TreeID
	Skill *skilltree.Skill
	// Priority is the effective priority the skill won with.
	Priority float64
}

// TreePicker chooses which tree to try first for a given weight split.
// Pluggable so tests can force deterministic sequences.
type TreePicker interface {
	Pick(split WeightSplit) skilltree.TreeID
}

// WeightedRandom picks the general tree with probability split.General.
// A nil source falls back to the shared global source.
type WeightedRandom struct {
	rng *rand.Rand
}

// NewWeightedRandom returns the default picker. Pass a seeded source for
// reproducible runs.
func NewWeightedRandom(rng *rand.Rand) *WeightedRandom {
	return &WeightedRandom{rng: rng}
}

func (p *WeightedRandom) Pick(split WeightSplit) skilltree.TreeID {
	var roll float64
	if p.rng != nil {
		roll = p.rng.Float64()
	} else {
		roll = rand.Float64()
	}
	if roll < split.General {
		return skilltree.TreeGeneral
	}
	return skilltree.TreeDomain
}

// FixedPicker always starts with the same tree. Used by tests and by the
// deterministic round-robin mode.
type FixedPicker struct {
	Tree skilltree.TreeID
}

func (p FixedPicker) Pick(WeightSplit) skilltree.TreeID { return p.Tree }

// Selector turns stage weights, graph eligibility and failure state into
// one concrete choice per cycle.
type Selector struct {
	picker  TreePicker
	tracker *Tracker
}

// NewSelector creates a selector. A nil picker defaults to weighted random.
func NewSelector(picker TreePicker, tracker *Tracker) *Selector {
	if picker == nil {
		picker = NewWeightedRandom(nil)
	}
	return &Selector{picker: picker, tracker: tracker}
}

// Select runs one selection pass:
//
//  1. sweep both trees so newly satisfied prerequisites unlock (skills
//     unlocked here are not selectable until the next pass);
//  2. pick a tree per the stage's weight split;
//  3. fall back to the other tree when the chosen one has no eligible
//     skill; both empty reports ErrSelectionExhausted;
//  4. rank eligibles by effective priority, tie-broken by insertion order.
//
// The returned unlock list covers both trees regardless of outcome.
func (s *Selector) Select(split WeightSplit, general, domain *skilltree.Graph) (*Selection, []string, error) {
	var unlocked []string
	fresh := make(map[string]struct{})
	for _, tree := range []*skilltree.Graph{general, domain} {
		for _, id := range tree.UnlockEligible() {
			key := string(tree.ID()) + "/" + id
			unlocked = append(unlocked, key)
			fresh[key] = struct{}{}
		}
	}

	first := s.picker.Pick(split)
	ordered := []*skilltree.Graph{general, domain}
	if first == skilltree.TreeDomain {
		ordered = []*skilltree.Graph{domain, general}
	}

	for _, tree := range ordered {
		if choice := s.best(tree, fresh); choice != nil {
			return choice, unlocked, nil
		}
	}
	return nil, unlocked, ErrSelectionExhausted
}

// best ranks a tree's eligible skills and returns the winner, or nil when
// the tree has none. Skills unlocked by this pass's sweep are excluded;
// they become selectable next cycle.
func (s *Selector) best(tree *skilltree.Graph, fresh map[string]struct{}) *Selection {
	eligible := tree.Evolvable()
	if len(eligible) == 0 {
		return nil
	}

	type candidate struct {
		skill    *skilltree.Skill
		priority float64
		order    int
	}
	candidates := make([]candidate, 0, len(eligible))
	for i, skill := range eligible {
		if _, justUnlocked := fresh[string(tree.ID())+"/"+skill.ID]; justUnlocked {
			continue
		}
		priority := skill.DerivedBasePriority() + skill.PriorityModifier
		if s.tracker != nil {
			priority += s.tracker.Boost(tree.ID(), skill.ID)
		}
		candidates = append(candidates, candidate{skill: skill, priority: priority, order: i})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Stable by construction: order carries the insertion rank.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].order < candidates[j].order
	})

	top := candidates[0]
	return &Selection{Tree: tree.ID(), Skill: top.skill, Priority: top.priority}
}
