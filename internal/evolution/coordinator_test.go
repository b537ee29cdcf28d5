package evolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/discovery"
	"sprout/internal/generation"
	"sprout/internal/skilltree"
)

// memoryStore records persistence calls for assertions.
type memoryStore struct {
	mu         sync.Mutex
	trees      map[skilltree.TreeID]*skilltree.Graph
	tracker    State
	saveErr    error
	treeSaves  int
	stateSaves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{trees: make(map[skilltree.TreeID]*skilltree.Graph)}
}

func (m *memoryStore) SaveTree(g *skilltree.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.trees[g.ID()] = g.Clone()
	m.treeSaves++
	return nil
}

func (m *memoryStore) SaveTrackerState(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tracker = state
	m.stateSaves++
	return nil
}

func newTestCoordinator(t *testing.T, gen generation.Generator, disc discovery.Discoverer, store Persister) (*Coordinator, *skilltree.Graph, *skilltree.Graph) {
	t.Helper()

	general := skilltree.NewGraph(skilltree.TreeGeneral)
	domain := skilltree.NewGraph(skilltree.TreeDomain)
	addSkill(t, general, "g1", skilltree.TierBasic, 0, 20, true)
	addSkill(t, domain, "d1", skilltree.TierBasic, 0, 20, true)

	tracker := newTracker(t)
	selector := NewSelector(FixedPicker{Tree: skilltree.TreeGeneral}, tracker)

	cfg := DefaultCoordinatorConfig()
	cfg.GenerationTimeout = 200 * time.Millisecond
	cfg.DiscoveryEvery = 2

	coord, err := NewCoordinator(cfg, general, domain, tracker, selector,
		DefaultStageConfig(), DefaultIndexWeights(), gen, disc, store, nil)
	require.NoError(t, err)
	return coord, general, domain
}

func succeedGen(delta int) generation.Generator {
	return generation.GeneratorFunc(func(context.Context, generation.Attempt) (generation.Outcome, error) {
		return generation.Outcome{Success: true, LevelDelta: delta}, nil
	})
}

func failGen(reason string) generation.Generator {
	return generation.GeneratorFunc(func(context.Context, generation.Attempt) (generation.Outcome, error) {
		return generation.Outcome{Success: false, Error: reason}, nil
	})
}

func TestRunCycleSuccessAdvancesSkill(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	coord, general, _ := newTestCoordinator(t, succeedGen(2), nil, store)

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "g1", result.Selected.SkillID)
	assert.Equal(t, 2, general.Get("g1").Level)
	assert.True(t, result.Outcome.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, store.treeSaves, "both trees persist every cycle")
	assert.Equal(t, 1, store.stateSaves)
}

func TestRunCycleLevelGainIsBounded(t *testing.T) {
	t.Parallel()

	coord, general, _ := newTestCoordinator(t, succeedGen(1000), nil, newMemoryStore())

	_, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, general.Get("g1").MaxLevel, general.Get("g1").Level, "level gain must clamp at the cap")
}

func TestRunCycleGeneratorErrorIsFailureOutcome(t *testing.T) {
	t.Parallel()

	gen := generation.GeneratorFunc(func(context.Context, generation.Attempt) (generation.Outcome, error) {
		return generation.Outcome{}, errors.New("provider unavailable")
	})
	coord, general, _ := newTestCoordinator(t, gen, nil, newMemoryStore())

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err, "a collaborator error must not crash the cycle")
	require.NotNil(t, result.Outcome)
	assert.False(t, result.Outcome.Success)
	assert.Equal(t, 1, general.Get("g1").ConsecutiveFailures)
	assert.InDelta(t, -0.2, general.Get("g1").PriorityModifier, 1e-9)
}

func TestRunCycleTimeoutIsFailureOutcome(t *testing.T) {
	t.Parallel()

	gen := generation.GeneratorFunc(func(ctx context.Context, _ generation.Attempt) (generation.Outcome, error) {
		<-ctx.Done()
		return generation.Outcome{}, ctx.Err()
	})
	coord, general, _ := newTestCoordinator(t, gen, nil, newMemoryStore())

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Outcome)
	assert.False(t, result.Outcome.Success)
	assert.Equal(t, "generation timed out", result.Outcome.Error)
	assert.Equal(t, 1, general.Get("g1").ConsecutiveFailures)
}

func TestRunCycleExhaustedOnlyTicksCooldowns(t *testing.T) {
	t.Parallel()

	coord, general, domain := newTestCoordinator(t, failGen("x"), nil, newMemoryStore())
	general.Get("g1").CooldownRemaining = 2
	domain.Get("d1").CooldownRemaining = 3

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	assert.Nil(t, result.Selected)
	assert.Equal(t, 1, general.Get("g1").CooldownRemaining)
	assert.Equal(t, 2, domain.Get("d1").CooldownRemaining)
	assert.Zero(t, general.Get("g1").Level)
	assert.Zero(t, general.Get("g1").ConsecutiveFailures)
}

func TestRunCycleTierThreeExclusionUntilExpiry(t *testing.T) {
	t.Parallel()

	coord, general, domain := newTestCoordinator(t, failGen("hopeless"), nil, newMemoryStore())
	// Max out the domain skill so every selection lands on g1.
	domain.Get("d1").Level = domain.Get("d1").MaxLevel

	for i := 0; i < 5; i++ {
		// Cooldowns from earlier failures would block the run; clear the
		// short tier-2 window so the skill keeps getting retried.
		general.Get("g1").CooldownRemaining = 0
		result, err := coord.RunCycle(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result.Selected)
	}
	assert.Equal(t, 5, general.Get("g1").ConsecutiveFailures)
	assert.Equal(t, 10, general.Get("g1").CooldownRemaining)

	// Excluded for the full cooldown: each cycle is exhausted and ticks.
	for remaining := 10; remaining > 0; remaining-- {
		result, err := coord.RunCycle(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Exhausted)
	}
	assert.Zero(t, general.Get("g1").CooldownRemaining)

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "g1", result.Selected.SkillID)
}

func TestRunCycleGuardRejectsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	gen := generation.GeneratorFunc(func(context.Context, generation.Attempt) (generation.Outcome, error) {
		close(started)
		<-release
		return generation.Outcome{Success: true, LevelDelta: 1}, nil
	})
	coord, _, _ := newTestCoordinator(t, gen, nil, newMemoryStore())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := coord.RunCycle(context.Background())
		assert.NoError(t, err)
	}()

	<-started
	_, err := coord.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	<-done
}

func TestDiscoveryMilestoneMergesValidProposals(t *testing.T) {
	t.Parallel()

	disc := discovery.DiscovererFunc(func(_ context.Context, snap discovery.TreeSnapshot) ([]skilltree.Definition, error) {
		return []skilltree.Definition{
			{ID: "found", Name: "Found", Tier: "basic", Category: "technical"},
			{ID: "broken", Name: "Broken", Tier: "mythic", Category: "technical"},
		}, nil
	})
	coord, general, _ := newTestCoordinator(t, succeedGen(1), disc, newMemoryStore())

	// DiscoveryEvery is 2: the second success triggers discovery.
	_, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"found"}, result.Discovered)
	require.NotNil(t, general.Get("found"))
	assert.Equal(t, skilltree.OriginDiscovered, general.Get("found").Origin)
	assert.Nil(t, general.Get("broken"), "invalid proposals are rejected, not merged")
}

func TestSnapshotIsIsolatedFromLiveState(t *testing.T) {
	t.Parallel()

	coord, general, _ := newTestCoordinator(t, succeedGen(1), nil, newMemoryStore())

	before := coord.Snapshot()
	require.NotNil(t, before)
	levelBefore := before.Trees[skilltree.TreeGeneral].Get("g1").Level

	_, err := coord.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, levelBefore, before.Trees[skilltree.TreeGeneral].Get("g1").Level,
		"published snapshots must not alias live graphs")
	after := coord.Snapshot()
	assert.Equal(t, general.Get("g1").Level, after.Trees[skilltree.TreeGeneral].Get("g1").Level)
	assert.Equal(t, 1, after.Cycle)
}

func TestPersistenceErrorDoesNotFailCycle(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.saveErr = errors.New("disk full")
	coord, general, _ := newTestCoordinator(t, succeedGen(1), nil, store)

	result, err := coord.RunCycle(context.Background())
	require.NoError(t, err, "persistence failure must not fail the cycle")
	assert.True(t, result.Outcome.Success)
	assert.Equal(t, 1, general.Get("g1").Level, "in-memory state stays authoritative")

	// Next cycle retries persistence once the store recovers.
	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	_, err = coord.RunCycle(context.Background())
	require.NoError(t, err)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotZero(t, store.treeSaves)
}

func TestManualOverrides(t *testing.T) {
	t.Parallel()

	coord, general, _ := newTestCoordinator(t, succeedGen(1), nil, newMemoryStore())

	require.NoError(t, coord.AddSkill(skilltree.TreeGeneral, skilltree.Definition{
		ID: "locked", Name: "Locked", Tier: "advanced", Category: "technical",
		Prerequisites: []string{"g1"},
	}))
	require.False(t, general.Get("locked").Unlocked)

	require.NoError(t, coord.ForceUnlock(skilltree.TreeGeneral, "locked"))
	assert.True(t, general.Get("locked").Unlocked)

	require.NoError(t, coord.SetBasePriority(skilltree.TreeGeneral, "locked", 9.5))
	require.NotNil(t, general.Get("locked").BasePriority)
	assert.Equal(t, 9.5, *general.Get("locked").BasePriority)

	err := coord.AddSkill(skilltree.TreeGeneral, skilltree.Definition{ID: "locked", Name: "dup", Tier: "basic", Category: "technical"})
	require.ErrorIs(t, err, skilltree.ErrValidation)

	require.Error(t, coord.ForceUnlock("sideways", "locked"))
}

func TestListenersObserveEachCycle(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t, succeedGen(1), nil, newMemoryStore())

	var results []CycleResult
	coord.AddListener(func(r CycleResult) { results = append(results, r) })

	_, err := coord.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = coord.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Cycle)
	assert.Equal(t, 2, results[1].Cycle)
}
