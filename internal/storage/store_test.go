package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/evolution"
	"sprout/internal/skilltree"
)

func buildGraph(t *testing.T) *skilltree.Graph {
	t.Helper()

	g := skilltree.NewGraph(skilltree.TreeGeneral)
	root := &skilltree.Skill{
		ID: "root", Name: "Root", Category: skilltree.CategoryTechnical,
		Tier: skilltree.TierBasic, Level: 7, MaxLevel: 20,
	}
	require.NoError(t, g.AddSkill(root))

	base := 4.2
	child := &skilltree.Skill{
		ID: "child", Name: "Child", Category: skilltree.CategoryTechnical,
		Tier: skilltree.TierIntermediate, Level: 3, MaxLevel: 30,
		Prerequisites: []string{"root"}, Origin: skilltree.OriginDiscovered,
		PriorityModifier: -0.4, ConsecutiveFailures: 2, CooldownRemaining: 1,
		BasePriority: &base,
	}
	require.NoError(t, g.AddSkill(child))
	require.NoError(t, g.ForceUnlock("child"))
	return g
}

func TestTreeRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	want := buildGraph(t)
	require.NoError(t, store.SaveTree(want))

	got, err := store.LoadTree(skilltree.TreeGeneral)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "every persisted field must survive the round trip")
	assert.Equal(t, want.IDs(), got.IDs(), "insertion order must survive the round trip")
}

func TestLoadTreeRestoresLockedStateExactly(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	// A locked prereq-free skill stays locked on reload: loading must not
	// rerun the auto-unlock that applies to fresh insertions.
	g := skilltree.NewGraph(skilltree.TreeDomain)
	require.NoError(t, g.AddSkill(&skilltree.Skill{
		ID: "solo", Name: "Solo", Tier: skilltree.TierBasic, MaxLevel: 20,
	}))
	g.Get("solo").Unlocked = false
	require.NoError(t, store.SaveTree(g))

	got, err := store.LoadTree(skilltree.TreeDomain)
	require.NoError(t, err)
	assert.False(t, got.Get("solo").Unlocked)
}

func TestLoadTreeNotFound(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadTree(skilltree.TreeGeneral)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTreeRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "general_tree.json"), []byte("{not json"), 0o644))
	_, err = store.LoadTree(skilltree.TreeGeneral)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSaveTreeLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveTree(buildGraph(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "general_tree.json", entries[0].Name())
}

func TestSaveTreeOverwritesPrevious(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	g := buildGraph(t)
	require.NoError(t, store.SaveTree(g))
	g.Get("root").GainLevels(5)
	require.NoError(t, store.SaveTree(g))

	got, err := store.LoadTree(skilltree.TreeGeneral)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Get("root").Level)
}

func TestTrackerStateRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadTrackerState()
	require.ErrorIs(t, err, ErrNotFound)

	g := skilltree.NewGraph(skilltree.TreeGeneral)
	require.NoError(t, g.AddSkill(&skilltree.Skill{
		ID: "s", Name: "S", Category: skilltree.CategoryTechnical,
		Tier: skilltree.TierBasic, MaxLevel: 20,
	}))
	tracker := evolution.NewTracker(evolution.DefaultFallbackConfig(), nil)
	tracker.RecordFailure(g, "s", "first")
	tracker.RecordFailure(g, "s", "second")

	require.NoError(t, store.SaveTrackerState(tracker.Export()))
	state, err := store.LoadTrackerState()
	require.NoError(t, err)

	restored := evolution.NewTracker(evolution.DefaultFallbackConfig(), nil)
	restored.Restore(state)
	assert.Equal(t, tracker.Export(), restored.Export())
}
