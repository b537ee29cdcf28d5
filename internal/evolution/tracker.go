package evolution

import (
	"sprout/internal/logging"
	"sprout/internal/skilltree"
)

// FallbackConfig holds the three-tier failure policy constants.
type FallbackConfig struct {
	DecayStep     float64 `mapstructure:"decay_step" yaml:"decay_step"`
	DecayFloor    float64 `mapstructure:"decay_floor" yaml:"decay_floor"`
	Tier2Failures int     `mapstructure:"tier2_failures" yaml:"tier2_failures"`
	Tier2Cooldown int     `mapstructure:"tier2_cooldown" yaml:"tier2_cooldown"`
	Tier3Failures int     `mapstructure:"tier3_failures" yaml:"tier3_failures"`
	Tier3Cooldown int     `mapstructure:"tier3_cooldown" yaml:"tier3_cooldown"`
	BoostDirect   float64 `mapstructure:"boost_direct" yaml:"boost_direct"`
	BoostIndirect float64 `mapstructure:"boost_indirect" yaml:"boost_indirect"`
}

// DefaultFallbackConfig returns the documented defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		DecayStep:     0.2,
		DecayFloor:    skilltree.ModifierFloor,
		Tier2Failures: 3,
		Tier2Cooldown: 3,
		Tier3Failures: 5,
		Tier3Cooldown: 10,
		BoostDirect:   0.3,
		BoostIndirect: 0.15,
	}
}

// FallbackAction names the escalation applied after a recorded failure.
type FallbackAction string

const (
	ActionDeprioritize FallbackAction = "deprioritize"
	ActionBoostPrereqs FallbackAction = "boost_prereqs"
	ActionLongCooldown FallbackAction = "long_cooldown"
)

// FallbackResult reports what a failure triggered.
type FallbackResult struct {
	Action       FallbackAction     `json:"action"`
	Cooldown     int                `json:"cooldown,omitempty"`
	BoostTargets map[string]float64 `json:"boost_targets,omitempty"`
}

// skillRecord is the tracker-side state for one struggling skill. The
// counters visible to selection (consecutive failures, cooldown, modifier)
// live on the Skill itself; the record carries history and active
// prerequisite boosts.
type skillRecord struct {
	TotalFailures int                `json:"total_failures"`
	Reasons       []string           `json:"reasons,omitempty"`
	BoostTargets  map[string]float64 `json:"boost_targets,omitempty"`
}

const reasonHistory = 5

// Tracker owns the three-tier failure escalation policy. All mutation goes
// through the single cycle-owning goroutine, so it needs no locking.
type Tracker struct {
	cfg     FallbackConfig
	logger  logging.Logger
	records map[skilltree.TreeID]map[string]*skillRecord
}

// NewTracker creates a failure tracker with the given policy constants.
func NewTracker(cfg FallbackConfig, logger logging.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		records: make(map[skilltree.TreeID]map[string]*skillRecord),
	}
}

func (t *Tracker) record(tree skilltree.TreeID, id string) *skillRecord {
	byID, ok := t.records[tree]
	if !ok {
		byID = make(map[string]*skillRecord)
		t.records[tree] = byID
	}
	rec, ok := byID[id]
	if !ok {
		rec = &skillRecord{}
		byID[id] = rec
	}
	return rec
}

// RecordSuccess clears a skill's failure state: consecutive failures and
// priority modifier reset regardless of prior failure depth, and any
// prerequisite boosts it was holding are released.
func (t *Tracker) RecordSuccess(g *skilltree.Graph, id string) {
	skill := g.Get(id)
	if skill == nil {
		return
	}
	skill.ConsecutiveFailures = 0
	skill.PriorityModifier = 0

	if byID, ok := t.records[g.ID()]; ok {
		if _, tracked := byID[id]; tracked {
			delete(byID, id)
			t.logger.Info("cleared failure record for %s/%s", g.ID(), id)
		}
	}
}

// RecordFailure applies the escalation ladder to a failed skill:
//
//	tier 1 (every failure): decay the priority modifier by DecayStep,
//	floored at DecayFloor;
//	tier 2 (exactly Tier2Failures): short cooldown plus prerequisite
//	boosts, so selection finishes unblocking dependencies first;
//	tier 3 (Tier3Failures or more): long cooldown, re-armed on every
//	further failure without stacking.
func (t *Tracker) RecordFailure(g *skilltree.Graph, id, reason string) FallbackResult {
	skill := g.Get(id)
	if skill == nil {
		return FallbackResult{Action: ActionDeprioritize}
	}

	skill.ConsecutiveFailures++
	skill.ApplyModifierDelta(-t.cfg.DecayStep)

	rec := t.record(g.ID(), id)
	rec.TotalFailures++
	if reason != "" {
		rec.Reasons = append(rec.Reasons, reason)
		if len(rec.Reasons) > reasonHistory {
			rec.Reasons = rec.Reasons[len(rec.Reasons)-reasonHistory:]
		}
	}

	switch {
	case skill.ConsecutiveFailures >= t.cfg.Tier3Failures:
		skill.CooldownRemaining = t.cfg.Tier3Cooldown
		t.logger.Warn("skill %s/%s failed %d times in a row, cooling down for %d cycles",
			g.ID(), id, skill.ConsecutiveFailures, t.cfg.Tier3Cooldown)
		return FallbackResult{Action: ActionLongCooldown, Cooldown: t.cfg.Tier3Cooldown}

	case skill.ConsecutiveFailures == t.cfg.Tier2Failures:
		skill.CooldownRemaining = t.cfg.Tier2Cooldown
		boosts := t.boostPrerequisites(g, skill)
		rec.BoostTargets = boosts
		t.logger.Info("skill %s/%s failed %d times, cooling down for %d cycles and boosting prerequisites %v",
			g.ID(), id, skill.ConsecutiveFailures, t.cfg.Tier2Cooldown, boostIDs(boosts))
		return FallbackResult{Action: ActionBoostPrereqs, Cooldown: t.cfg.Tier2Cooldown, BoostTargets: boosts}

	default:
		return FallbackResult{Action: ActionDeprioritize}
	}
}

// boostPrerequisites picks the failing skill's direct prerequisites that are
// unlocked but below their cap and raises their priority: the modifier moves
// toward zero and a selection bonus is registered. Prerequisites of those
// prerequisites get half treatment, so whole chains drain toward the
// blocked skill.
func (t *Tracker) boostPrerequisites(g *skilltree.Graph, failing *skilltree.Skill) map[string]float64 {
	boosts := make(map[string]float64)

	for _, prereq := range g.DirectPrerequisites(failing.ID) {
		if prereq.Unlocked && !prereq.Maxed() {
			prereq.ApplyModifierDelta(t.cfg.BoostDirect)
			boosts[prereq.ID] = t.cfg.BoostDirect
		}
		for _, indirect := range g.DirectPrerequisites(prereq.ID) {
			if _, already := boosts[indirect.ID]; already {
				continue
			}
			if indirect.Unlocked && !indirect.Maxed() {
				indirect.ApplyModifierDelta(t.cfg.BoostIndirect)
				boosts[indirect.ID] = t.cfg.BoostIndirect
			}
		}
	}
	return boosts
}

// Boost returns the active selection bonus for a skill: the strongest boost
// any struggling skill has registered for it.
func (t *Tracker) Boost(tree skilltree.TreeID, id string) float64 {
	var best float64
	for _, rec := range t.records[tree] {
		if bonus, ok := rec.BoostTargets[id]; ok && bonus > best {
			best = bonus
		}
	}
	return best
}

// TickCooldowns decrements the cooldown counter of every skill that was not
// selected this cycle. Cooldowns tick globally, whether or not the owning
// tree was chosen.
func (t *Tracker) TickCooldowns(selected *Selection, trees ...*skilltree.Graph) {
	for _, tree := range trees {
		if tree == nil {
			continue
		}
		for _, skill := range tree.Skills() {
			if selected != nil && selected.Tree == tree.ID() && selected.Skill.ID == skill.ID {
				continue
			}
			if skill.CooldownRemaining > 0 {
				skill.CooldownRemaining--
			}
		}
	}
}

// CoolingSkill describes one skill currently excluded by a cooldown.
type CoolingSkill struct {
	Tree                skilltree.TreeID `json:"tree"`
	SkillID             string           `json:"skill_id"`
	Remaining           int              `json:"remaining"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
}

// StrugglingSkill describes one skill with active failures but no cooldown.
type StrugglingSkill struct {
	Tree                skilltree.TreeID `json:"tree"`
	SkillID             string           `json:"skill_id"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Reasons             []string         `json:"reasons,omitempty"`
}

// FailureSummary is the read-mostly view exposed to the API and CLI.
type FailureSummary struct {
	Cooling      []CoolingSkill     `json:"cooling"`
	Struggling   []StrugglingSkill  `json:"struggling"`
	BoostTargets map[string]float64 `json:"boost_targets,omitempty"`
}

// Summary aggregates the tracker state across the given trees.
func (t *Tracker) Summary(trees ...*skilltree.Graph) FailureSummary {
	var summary FailureSummary
	summary.BoostTargets = make(map[string]float64)

	for _, tree := range trees {
		if tree == nil {
			continue
		}
		for _, skill := range tree.Skills() {
			switch {
			case skill.CooldownRemaining > 0:
				summary.Cooling = append(summary.Cooling, CoolingSkill{
					Tree:                tree.ID(),
					SkillID:             skill.ID,
					Remaining:           skill.CooldownRemaining,
					ConsecutiveFailures: skill.ConsecutiveFailures,
				})
			case skill.ConsecutiveFailures > 0:
				var reasons []string
				if rec, ok := t.records[tree.ID()][skill.ID]; ok {
					reasons = append(reasons, rec.Reasons...)
				}
				summary.Struggling = append(summary.Struggling, StrugglingSkill{
					Tree:                tree.ID(),
					SkillID:             skill.ID,
					ConsecutiveFailures: skill.ConsecutiveFailures,
					Reasons:             reasons,
				})
			}
		}
		for id := range t.records[tree.ID()] {
			for target, bonus := range t.records[tree.ID()][id].BoostTargets {
				if bonus > summary.BoostTargets[target] {
					summary.BoostTargets[target] = bonus
				}
			}
		}
	}
	return summary
}

// State is the tracker's persistable form.
type State struct {
	Records map[skilltree.TreeID]map[string]*skillRecord `json:"records"`
}

// Export returns a deep copy of the tracker state for persistence.
func (t *Tracker) Export() State {
	out := State{Records: make(map[skilltree.TreeID]map[string]*skillRecord, len(t.records))}
	for tree, byID := range t.records {
		copied := make(map[string]*skillRecord, len(byID))
		for id, rec := range byID {
			c := &skillRecord{
				TotalFailures: rec.TotalFailures,
				Reasons:       append([]string(nil), rec.Reasons...),
			}
			if rec.BoostTargets != nil {
				c.BoostTargets = make(map[string]float64, len(rec.BoostTargets))
				for k, v := range rec.BoostTargets {
					c.BoostTargets[k] = v
				}
			}
			copied[id] = c
		}
		out.Records[tree] = copied
	}
	return out
}

// Restore replaces the tracker state from a persisted snapshot.
func (t *Tracker) Restore(state State) {
	t.records = make(map[skilltree.TreeID]map[string]*skillRecord)
	for tree, byID := range state.Records {
		copied := make(map[string]*skillRecord, len(byID))
		for id, rec := range byID {
			if rec != nil {
				copied[id] = rec
			}
		}
		t.records[tree] = copied
	}
}

func boostIDs(boosts map[string]float64) []string {
	ids := make([]string, 0, len(boosts))
	for id := range boosts {
		ids = append(ids, id)
	}
	return ids
}
