package evolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sprout/internal/discovery"
	"sprout/internal/generation"
	"sprout/internal/logging"
	"sprout/internal/skilltree"
)

// ErrCycleInProgress reports that another evolution cycle holds the guard.
var ErrCycleInProgress = errors.New("evolution cycle already in progress")

// Persister is the slice of the persistence collaborator the coordinator
// needs. Write failures are logged and retried next cycle; in-memory state
// stays authoritative.
type Persister interface {
	SaveTree(g *skilltree.Graph) error
	SaveTrackerState(state State) error
}

// CoordinatorConfig tunes the cycle driver.
type CoordinatorConfig struct {
	// GenerationTimeout bounds the external generation call. Expiry is
	// treated as a failure outcome.
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" yaml:"generation_timeout"`
	// DiscoveryEvery invokes the discovery collaborator after every N
	// successful evolutions on a tree. Zero disables discovery.
	DiscoveryEvery int `mapstructure:"discovery_every" yaml:"discovery_every"`
	// OutcomeCacheSize bounds the per-skill recent-outcome cache fed into
	// generation context.
	OutcomeCacheSize int `mapstructure:"outcome_cache_size" yaml:"outcome_cache_size"`
}

// DefaultCoordinatorConfig returns the documented defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		GenerationTimeout: 2 * time.Minute,
		DiscoveryEvery:    5,
		OutcomeCacheSize:  256,
	}
}

// SelectionInfo is the serializable slice of a Selection.
type SelectionInfo struct {
	Tree     skilltree.TreeID `json:"tree"`
	SkillID  string           `json:"skill_id"`
	Priority float64          `json:"priority"`
}

// CycleResult summarizes one evolution cycle for listeners, logs and the
// event stream.
type CycleResult struct {
	RunID     string        `json:"run_id"`
	Cycle     int           `json:"cycle"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Index Index       `json:"index"`
	Stage Stage       `json:"stage"`
	Split WeightSplit `json:"split"`

	Selected   *SelectionInfo      `json:"selected,omitempty"`
	Outcome    *generation.Outcome `json:"outcome,omitempty"`
	Fallback   *FallbackResult     `json:"fallback,omitempty"`
	Unlocked   []string            `json:"unlocked,omitempty"`
	Discovered []string            `json:"discovered,omitempty"`
	Exhausted  bool                `json:"exhausted,omitempty"`
}

// Snapshot is the atomically published read view of the whole subsystem.
// Readers between cycles observe a stale-but-consistent copy.
type Snapshot struct {
	Trees     map[skilltree.TreeID]*skilltree.Graph `json:"-"`
	Index     Index                                 `json:"index"`
	Stage     Stage                                 `json:"stage"`
	Split     WeightSplit                           `json:"split"`
	Cycle     int                                   `json:"cycle"`
	Failures  FailureSummary                        `json:"failures"`
	UpdatedAt time.Time                             `json:"updated_at"`
}

// CycleListener receives each completed cycle's result. Listeners run on
// the cycle goroutine and must return quickly.
type CycleListener func(CycleResult)

// Coordinator drives one evolution cycle at a time: select, delegate the
// attempt, apply the outcome, persist, and fire the milestone discovery
// hook. A mutex guards against overlapping cycles regardless of trigger
// source (timer, API, CLI).
type Coordinator struct {
	cfg      CoordinatorConfig
	logger   logging.Logger
	tracer   trace.Tracer
	general  *skilltree.Graph
	domain   *skilltree.Graph
	tracker  *Tracker
	selector *Selector
	stages   StageConfig
	weights  IndexWeights

	generator  generation.Generator
	discoverer discovery.Discoverer
	store      Persister

	mu        sync.Mutex
	cycle     int
	successes map[skilltree.TreeID]int
	outcomes  *lru.Cache[string, []string]
	snapshot  atomic.Pointer[Snapshot]
	listeners []CycleListener
}

// NewCoordinator wires the cycle driver. discoverer and store may be nil
// (discovery disabled, persistence skipped).
func NewCoordinator(
	cfg CoordinatorConfig,
	general, domain *skilltree.Graph,
	tracker *Tracker,
	selector *Selector,
	stages StageConfig,
	weights IndexWeights,
	generator generation.Generator,
	discoverer discovery.Discoverer,
	store Persister,
	logger logging.Logger,
) (*Coordinator, error) {
	if general == nil || domain == nil {
		return nil, fmt.Errorf("coordinator requires both trees")
	}
	if generator == nil {
		return nil, fmt.Errorf("coordinator requires a generator")
	}
	if err := stages.Validate(); err != nil {
		return nil, err
	}
	size := cfg.OutcomeCacheSize
	if size <= 0 {
		size = DefaultCoordinatorConfig().OutcomeCacheSize
	}
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("outcome cache: %w", err)
	}

	c := &Coordinator{
		cfg:        cfg,
		logger:     logging.OrNop(logger),
		tracer:     otel.Tracer("sprout/evolution"),
		general:    general,
		domain:     domain,
		tracker:    tracker,
		selector:   selector,
		stages:     stages,
		weights:    weights,
		generator:  generator,
		discoverer: discoverer,
		store:      store,
		successes:  make(map[skilltree.TreeID]int),
		outcomes:   cache,
	}
	c.publish()
	return c, nil
}

// AddListener registers a cycle listener.
func (c *Coordinator) AddListener(fn CycleListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns the last published read view.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// RunCycle executes exactly one evolution cycle. A second caller while a
// cycle is in flight gets ErrCycleInProgress instead of blocking.
func (c *Coordinator) RunCycle(ctx context.Context) (CycleResult, error) {
	if !c.mu.TryLock() {
		return CycleResult{}, ErrCycleInProgress
	}
	defer c.mu.Unlock()

	started := time.Now()
	c.cycle++

	ctx, span := c.tracer.Start(ctx, "evolution.cycle",
		trace.WithAttributes(attribute.Int("cycle", c.cycle)))
	defer span.End()

	result := CycleResult{
		RunID:     uuid.NewString(),
		Cycle:     c.cycle,
		StartedAt: started,
	}

	result.Index = CalculateIndex(c.weights, c.general, c.domain)
	result.Stage, result.Split = c.stages.Split(result.Index.Value)
	span.SetAttributes(
		attribute.Float64("index", result.Index.Value),
		attribute.String("stage", string(result.Stage)),
	)

	selection, unlocked, err := c.selector.Select(result.Split, c.general, c.domain)
	result.Unlocked = unlocked

	switch {
	case errors.Is(err, ErrSelectionExhausted):
		result.Exhausted = true
		c.logger.Info("cycle %d: selection exhausted, no eligible skill in either tree", c.cycle)
		c.tracker.TickCooldowns(nil, c.general, c.domain)

	case err != nil:
		// Selector has no other failure mode today; treat defensively as a
		// no-op cycle rather than crashing the driver.
		c.tracker.TickCooldowns(nil, c.general, c.domain)

	default:
		result.Selected = &SelectionInfo{
			Tree:     selection.Tree,
			SkillID:  selection.Skill.ID,
			Priority: selection.Priority,
		}
		span.SetAttributes(
			attribute.String("tree", string(selection.Tree)),
			attribute.String("skill", selection.Skill.ID),
		)
		c.attempt(ctx, selection, &result)
		c.tracker.TickCooldowns(selection, c.general, c.domain)
	}

	c.persist()
	c.publish()

	result.Duration = time.Since(started)
	for _, fn := range c.listeners {
		fn(result)
	}
	return result, nil
}

// attempt delegates to the generation collaborator and applies the outcome.
// Collaborator errors and timeouts are indistinguishable from reported
// failures as far as the tracker is concerned.
func (c *Coordinator) attempt(ctx context.Context, selection *Selection, result *CycleResult) {
	tree := c.tree(selection.Tree)
	skill := selection.Skill

	attempt := generation.Attempt{
		Tree:    selection.Tree,
		SkillID: skill.ID,
		Name:    skill.Name,
		Tier:    skill.Tier,
		Level:   skill.Level,
		Context: generation.Context{
			Stage:          string(result.Stage),
			Index:          result.Index.Value,
			Cycle:          result.Cycle,
			RecentOutcomes: c.recentOutcomes(selection.Tree, skill.ID),
		},
	}

	genCtx := ctx
	if c.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.cfg.GenerationTimeout)
		defer cancel()
	}

	outcome, err := c.generator.AttemptEvolution(genCtx, attempt)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			reason = "generation timed out"
		}
		outcome = generation.Outcome{Success: false, Error: reason}
	}
	result.Outcome = &outcome

	if outcome.Success {
		delta := outcome.LevelDelta
		if delta < 1 {
			delta = 1
		}
		applied := skill.GainLevels(delta)
		c.tracker.RecordSuccess(tree, skill.ID)
		c.rememberOutcome(selection.Tree, skill.ID, fmt.Sprintf("success (+%d levels)", applied))
		c.logger.Info("cycle %d: %s/%s advanced to level %d/%d",
			result.Cycle, selection.Tree, skill.ID, skill.Level, skill.MaxLevel)

		c.successes[selection.Tree]++
		if c.discoverer != nil && c.cfg.DiscoveryEvery > 0 &&
			c.successes[selection.Tree]%c.cfg.DiscoveryEvery == 0 {
			result.Discovered = c.discover(ctx, tree, result)
		}
		return
	}

	fallback := c.tracker.RecordFailure(tree, skill.ID, outcome.Error)
	result.Fallback = &fallback
	c.rememberOutcome(selection.Tree, skill.ID, "failure: "+outcome.Error)
	c.logger.Warn("cycle %d: %s/%s attempt failed (%s), action=%s",
		result.Cycle, selection.Tree, skill.ID, outcome.Error, fallback.Action)
}

// discover asks the discovery collaborator for new definitions and merges
// the ones that pass schema validation. Rejections are logged, never fatal.
func (c *Coordinator) discover(ctx context.Context, tree *skilltree.Graph, result *CycleResult) []string {
	ctx, span := c.tracer.Start(ctx, "evolution.discover")
	defer span.End()

	snapshot := discovery.Snapshot(tree, string(result.Stage), result.Index.Value)
	defs, err := c.discoverer.DiscoverSkills(ctx, snapshot)
	if err != nil {
		c.logger.Warn("discovery failed for %s tree: %v", tree.ID(), err)
		return nil
	}

	var merged []string
	for _, def := range defs {
		if _, err := tree.Merge(def, skilltree.OriginDiscovered); err != nil {
			c.logger.Warn("rejected discovered skill %q: %v", def.ID, err)
			continue
		}
		merged = append(merged, def.ID)
		c.logger.Info("merged discovered skill %s into %s tree", def.ID, tree.ID())
	}
	return merged
}

// ForceUnlock unlocks a skill bypassing prerequisite checks. Manual
// override surface; always logged.
func (c *Coordinator) ForceUnlock(tree skilltree.TreeID, skillID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.tree(tree)
	if g == nil {
		return fmt.Errorf("unknown tree %q", tree)
	}
	if err := g.ForceUnlock(skillID); err != nil {
		return err
	}
	c.logger.Warn("manual override: force-unlocked %s/%s", tree, skillID)
	c.persist()
	c.publish()
	return nil
}

// SetBasePriority overrides a skill's base selection priority.
func (c *Coordinator) SetBasePriority(tree skilltree.TreeID, skillID string, priority float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.tree(tree)
	if g == nil {
		return fmt.Errorf("unknown tree %q", tree)
	}
	skill := g.Get(skillID)
	if skill == nil {
		return fmt.Errorf("skill %s not found in %s tree", skillID, tree)
	}
	skill.BasePriority = &priority
	c.logger.Info("manual override: base priority of %s/%s set to %.2f", tree, skillID, priority)
	c.persist()
	c.publish()
	return nil
}

// AddSkill validates and merges a hand-authored definition.
func (c *Coordinator) AddSkill(tree skilltree.TreeID, def skilltree.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.tree(tree)
	if g == nil {
		return fmt.Errorf("unknown tree %q", tree)
	}
	if _, err := g.Merge(def, skilltree.OriginAuthored); err != nil {
		return err
	}
	c.logger.Info("manual override: added skill %s to %s tree", def.ID, tree)
	c.persist()
	c.publish()
	return nil
}

func (c *Coordinator) tree(id skilltree.TreeID) *skilltree.Graph {
	switch id {
	case skilltree.TreeGeneral:
		return c.general
	case skilltree.TreeDomain:
		return c.domain
	default:
		return nil
	}
}

func (c *Coordinator) outcomeKey(tree skilltree.TreeID, skillID string) string {
	return string(tree) + "/" + skillID
}

func (c *Coordinator) recentOutcomes(tree skilltree.TreeID, skillID string) []string {
	recent, _ := c.outcomes.Get(c.outcomeKey(tree, skillID))
	return recent
}

func (c *Coordinator) rememberOutcome(tree skilltree.TreeID, skillID, note string) {
	key := c.outcomeKey(tree, skillID)
	recent, _ := c.outcomes.Get(key)
	recent = append(recent, note)
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	c.outcomes.Add(key, recent)
}

// persist writes both trees and the tracker. Failures are surfaced in the
// log only; the next cycle retries with the same in-memory state.
func (c *Coordinator) persist() {
	if c.store == nil {
		return
	}
	for _, g := range []*skilltree.Graph{c.general, c.domain} {
		if err := c.store.SaveTree(g); err != nil {
			c.logger.Error("persist %s tree: %v", g.ID(), err)
		}
	}
	if err := c.store.SaveTrackerState(c.tracker.Export()); err != nil {
		c.logger.Error("persist failure tracker: %v", err)
	}
}

// publish swaps in a fresh immutable snapshot for API readers.
func (c *Coordinator) publish() {
	index := CalculateIndex(c.weights, c.general, c.domain)
	stage, split := c.stages.Split(index.Value)
	snap := &Snapshot{
		Trees: map[skilltree.TreeID]*skilltree.Graph{
			skilltree.TreeGeneral: c.general.Clone(),
			skilltree.TreeDomain:  c.domain.Clone(),
		},
		Index:     index,
		Stage:     stage,
		Split:     split,
		Cycle:     c.cycle,
		Failures:  c.tracker.Summary(c.general, c.domain),
		UpdatedAt: time.Now(),
	}
	c.snapshot.Store(snap)
}
