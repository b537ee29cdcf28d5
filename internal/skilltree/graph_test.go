package skilltree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSkill(id string, tier Tier, prereqs ...string) *Skill {
	return &Skill{
		ID:            id,
		Name:          id,
		Category:      CategoryTechnical,
		Tier:          tier,
		Prerequisites: prereqs,
	}
}

func TestAddSkillUnlocksRoots(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	require.NoError(t, g.AddSkill(newSkill("reading", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("writing", TierBasic, "reading")))

	assert.True(t, g.Get("reading").Unlocked, "root skill should unlock at insert")
	assert.False(t, g.Get("writing").Unlocked, "dependent skill should stay locked")
	assert.Equal(t, 20, g.Get("reading").MaxLevel, "basic tier cap should apply")
}

func TestAddSkillRejectsMissingPrerequisite(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	err := g.AddSkill(newSkill("advanced", TierAdvanced, "ghost"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, g.Len())
}

func TestAddSkillRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	require.NoError(t, g.AddSkill(newSkill("reading", TierBasic)))
	err := g.AddSkill(newSkill("reading", TierBasic))
	require.ErrorIs(t, err, ErrValidation)
}

func TestAddSkillRejectsCycle(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	require.NoError(t, g.AddSkill(newSkill("a", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("b", TierBasic, "a")))

	// Rewire a to depend on b, then try to add a skill that closes a loop.
	g.Get("a").Prerequisites = []string{"b"}
	err := g.AddSkill(newSkill("c", TierBasic, "b"))
	require.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, g.Get("c"), "rejected skill must not remain in the graph")
}

func TestUnlockEligibleSweep(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeDomain)
	require.NoError(t, g.AddSkill(&Skill{ID: "base", Name: "base", Tier: TierBasic}))
	require.NoError(t, g.AddSkill(newSkill("mid", TierIntermediate, "base")))
	require.NoError(t, g.AddSkill(newSkill("top", TierAdvanced, "mid")))

	assert.Empty(t, g.UnlockEligible(), "prerequisites below the unlock level stay unsatisfied")

	g.Get("base").Level = DefaultUnlockLevel
	unlocked := g.UnlockEligible()
	assert.Equal(t, []string{"mid"}, unlocked, "only the directly eligible layer unlocks per sweep")
	assert.False(t, g.Get("top").Unlocked)

	g.Get("mid").Level = DefaultUnlockLevel
	unlocked = g.UnlockEligible()
	assert.Equal(t, []string{"top"}, unlocked)
}

func TestForceUnlockBypassesPrerequisites(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeDomain)
	require.NoError(t, g.AddSkill(newSkill("base", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("top", TierMaster, "base")))

	g.Get("base").Unlocked = false
	require.NoError(t, g.ForceUnlock("top"))
	assert.True(t, g.Get("top").Unlocked)

	require.Error(t, g.ForceUnlock("missing"))
}

func TestGainLevelsClampsAtMax(t *testing.T) {
	t.Parallel()

	s := &Skill{ID: "s", Tier: TierBasic, MaxLevel: 5, Unlocked: true, Level: 4}
	assert.Equal(t, 1, s.GainLevels(3), "gain should clamp at the cap")
	assert.Equal(t, 5, s.Level)
	assert.True(t, s.Maxed())

	locked := &Skill{ID: "l", Tier: TierBasic, MaxLevel: 5}
	assert.Equal(t, 0, locked.GainLevels(2), "locked skills never gain levels")
}

func TestApplyModifierDeltaClamps(t *testing.T) {
	t.Parallel()

	s := &Skill{ID: "s", Tier: TierBasic, MaxLevel: 5}
	for i := 0; i < 10; i++ {
		s.ApplyModifierDelta(-0.2)
	}
	assert.InDelta(t, ModifierFloor, s.PriorityModifier, 1e-9, "modifier must not drop below the floor")

	s.ApplyModifierDelta(2.0)
	assert.Equal(t, 0.0, s.PriorityModifier, "modifier must not rise above zero")
}

func TestEvolvableFiltersCooldownAndMax(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	require.NoError(t, g.AddSkill(newSkill("ready", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("cooling", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("maxed", TierBasic)))
	g.Get("cooling").CooldownRemaining = 2
	g.Get("maxed").Level = g.Get("maxed").MaxLevel

	eligible := g.Evolvable()
	require.Len(t, eligible, 1)
	assert.Equal(t, "ready", eligible[0].ID)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	g := NewGraph(TreeGeneral)
	require.NoError(t, g.AddSkill(newSkill("a", TierBasic)))
	require.NoError(t, g.AddSkill(newSkill("b", TierBasic, "a")))

	copied := g.Clone()
	require.True(t, g.Equal(copied))

	copied.Get("a").Level = 7
	assert.Equal(t, 0, g.Get("a").Level, "clone must not alias skill state")
	assert.False(t, g.Equal(copied))
}
