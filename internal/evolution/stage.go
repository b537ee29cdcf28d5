package evolution

import (
	"fmt"
	"math"
	"sort"
)

// Stage is a named lifecycle phase derived from the evolution index.
type Stage string

const (
	StageSprouting    Stage = "sprouting"
	StageGrowing      Stage = "growing"
	StageMaturing     Stage = "maturing"
	StageSpecializing Stage = "specializing"
)

// WeightSplit is the general/domain tree-selection probability pair for a
// stage. The two weights sum to 1.
type WeightSplit struct {
	General float64 `json:"general" yaml:"general"`
	Domain  float64 `json:"domain" yaml:"domain"`
}

// StageConfig holds the per-stage lower bounds and weight splits. Both are
// configuration, not code, so thresholds can be tuned without rebuilds.
type StageConfig struct {
	// Thresholds maps each stage to its inclusive lower index bound.
	Thresholds map[Stage]float64 `mapstructure:"thresholds" yaml:"thresholds"`
	// Weights maps each stage to its tree-selection split.
	Weights map[Stage]WeightSplit `mapstructure:"weights" yaml:"weights"`
}

// DefaultStageConfig returns the documented defaults: sprouting [0,15),
// growing [15,40), maturing [40,70), specializing [70,100].
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Thresholds: map[Stage]float64{
			StageSprouting:    0,
			StageGrowing:      15,
			StageMaturing:     40,
			StageSpecializing: 70,
		},
		Weights: map[Stage]WeightSplit{
			StageSprouting:    {General: 0.80, Domain: 0.20},
			StageGrowing:      {General: 0.60, Domain: 0.40},
			StageMaturing:     {General: 0.40, Domain: 0.60},
			StageSpecializing: {General: 0.25, Domain: 0.75},
		},
	}
}

// Validate checks that the config covers all four stages, starts at zero,
// rises monotonically and has weight pairs summing to 1.
func (c StageConfig) Validate() error {
	stages := []Stage{StageSprouting, StageGrowing, StageMaturing, StageSpecializing}
	for _, stage := range stages {
		if _, ok := c.Thresholds[stage]; !ok {
			return fmt.Errorf("stage config missing threshold for %s", stage)
		}
		split, ok := c.Weights[stage]
		if !ok {
			return fmt.Errorf("stage config missing weights for %s", stage)
		}
		if math.Abs(split.General+split.Domain-1.0) > 1e-9 {
			return fmt.Errorf("stage %s weights must sum to 1, got %.3f", stage, split.General+split.Domain)
		}
	}
	if c.Thresholds[StageSprouting] != 0 {
		return fmt.Errorf("sprouting threshold must be 0, got %.1f", c.Thresholds[StageSprouting])
	}
	for i := 1; i < len(stages); i++ {
		if c.Thresholds[stages[i]] <= c.Thresholds[stages[i-1]] {
			return fmt.Errorf("stage thresholds must rise monotonically (%s <= %s)", stages[i], stages[i-1])
		}
	}
	return nil
}

// Classify maps an index value to its stage. Lower bounds are inclusive, so
// an index of exactly 15 is growing and 100 belongs to the top stage.
func (c StageConfig) Classify(index float64) Stage {
	type bound struct {
		stage Stage
		low   float64
	}
	bounds := make([]bound, 0, len(c.Thresholds))
	for stage, low := range c.Thresholds {
		bounds = append(bounds, bound{stage, low})
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].low > bounds[j].low })

	for _, b := range bounds {
		if index >= b.low {
			return b.stage
		}
	}
	return StageSprouting
}

// Split returns the weight split for an index value.
func (c StageConfig) Split(index float64) (Stage, WeightSplit) {
	stage := c.Classify(index)
	return stage, c.Weights[stage]
}
