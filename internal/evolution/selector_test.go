package evolution

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/skilltree"
)

func TestSelectPrefersPickedTree(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	addSkill(t, general, "g1", skilltree.TierBasic, 0, 20, true)
	addSkill(t, domain, "d1", skilltree.TierBasic, 0, 20, true)

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeDomain}, newTracker(t))
	selection, _, err := selector.Select(WeightSplit{General: 0.8, Domain: 0.2}, general, domain)
	require.NoError(t, err)
	assert.Equal(t, skilltree.TreeDomain, selection.Tree)
	assert.Equal(t, "d1", selection.Skill.ID)
}

func TestSelectFallsBackToOtherTree(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	addSkill(t, general, "g1", skilltree.TierBasic, 0, 20, true)
	// Domain tree has nothing eligible.
	addSkill(t, domain, "d1", skilltree.TierBasic, 0, 20, false)

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeDomain}, newTracker(t))
	selection, _, err := selector.Select(WeightSplit{General: 0.5, Domain: 0.5}, general, domain)
	require.NoError(t, err)
	assert.Equal(t, skilltree.TreeGeneral, selection.Tree)
}

func TestSelectExhausted(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	addSkill(t, general, "g1", skilltree.TierBasic, 0, 20, true)
	addSkill(t, domain, "d1", skilltree.TierBasic, 0, 20, true)
	general.Get("g1").CooldownRemaining = 3
	domain.Get("d1").CooldownRemaining = 2

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, newTracker(t))
	_, _, err := selector.Select(WeightSplit{General: 0.5, Domain: 0.5}, general, domain)
	require.ErrorIs(t, err, ErrSelectionExhausted)
}

func TestSelectRanksByEffectivePriority(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	// Same tier and level, so identical base priority.
	addSkill(t, general, "first", skilltree.TierBasic, 0, 20, true)
	addSkill(t, general, "second", skilltree.TierBasic, 0, 20, true)
	general.Get("first").PriorityModifier = -0.4

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, newTracker(t))
	selection, _, err := selector.Select(WeightSplit{General: 1, Domain: 0}, general, domain)
	require.NoError(t, err)
	assert.Equal(t, "second", selection.Skill.ID, "penalized skill must rank below its peer")
}

func TestSelectTieBreaksByInsertionOrder(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	addSkill(t, general, "alpha", skilltree.TierBasic, 0, 20, true)
	addSkill(t, general, "beta", skilltree.TierBasic, 0, 20, true)

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, newTracker(t))
	for i := 0; i < 5; i++ {
		selection, _, err := selector.Select(WeightSplit{General: 1, Domain: 0}, general, domain)
		require.NoError(t, err)
		assert.Equal(t, "alpha", selection.Skill.ID, "ties must resolve to the earliest inserted skill")
	}
}

func TestBoostedPrerequisiteWinsNextCycle(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	// B and C are equal-priority peers; A depends on B.
	addSkill(t, general, "a", skilltree.TierBasic, 0, 20, true)
	addSkill(t, general, "c", skilltree.TierBasic, 0, 20, true)
	addSkill(t, general, "b", skilltree.TierBasic, 0, 20, true)
	general.Get("a").Prerequisites = []string{"b"}

	tracker := newTracker(t)
	for i := 0; i < 3; i++ {
		tracker.RecordFailure(general, "a", "stuck")
	}
	require.Equal(t, 3, general.Get("a").CooldownRemaining)

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, tracker)
	selection, _, err := selector.Select(WeightSplit{General: 1, Domain: 0}, general, domain)
	require.NoError(t, err)
	assert.Equal(t, "b", selection.Skill.ID, "boosted prerequisite must beat the equal-priority peer")
}

func TestSelectSweepsUnlocksWithoutSelectingThem(t *testing.T) {
	t.Parallel()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	base := addSkill(t, general, "base", skilltree.TierBasic, skilltree.DefaultUnlockLevel, 20, true)
	addSkill(t, general, "next", skilltree.TierBasic, 0, 20, false)
	general.Get("next").Prerequisites = []string{"base"}
	// The base is maxed out of eligibility so only "next" could be chosen.
	base.Level = base.MaxLevel

	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, newTracker(t))
	_, unlocked, err := selector.Select(WeightSplit{General: 1, Domain: 0}, general, domain)

	assert.Equal(t, []string{"general/next"}, unlocked)
	require.ErrorIs(t, err, ErrSelectionExhausted, "a skill unlocked by the sweep is not selectable in the same pass")

	selection, _, err := selector.Select(WeightSplit{General: 1, Domain: 0}, general, domain)
	require.NoError(t, err)
	assert.Equal(t, "next", selection.Skill.ID, "the new skill becomes selectable the following pass")
}

func TestWeightedRandomRespectsSplit(t *testing.T) {
	t.Parallel()

	picker := NewWeightedRandom(rand.New(rand.NewSource(1)))
	var generalCount int
	const trials = 2000
	for i := 0; i < trials; i++ {
		if picker.Pick(WeightSplit{General: 0.8, Domain: 0.2}) == skilltree.TreeGeneral {
			generalCount++
		}
	}
	ratio := float64(generalCount) / trials
	assert.InDelta(t, 0.8, ratio, 0.05)
}
