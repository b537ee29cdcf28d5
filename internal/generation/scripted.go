package generation

import (
	"context"
	"fmt"
	"math/rand"
)

// Scripted is a local stand-in generator for demos and offline runs. Higher
// tiers succeed less often, mimicking the difficulty curve of real
// generation attempts.
type Scripted struct {
	rng *rand.Rand
}

// NewScripted returns a scripted generator. Pass a seeded source for
// reproducible demo runs.
func NewScripted(rng *rand.Rand) *Scripted {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Scripted{rng: rng}
}

var tierSuccessRate = map[string]float64{
	"basic":        0.90,
	"intermediate": 0.75,
	"advanced":     0.55,
	"expert":       0.40,
	"master":       0.30,
}

func (s *Scripted) AttemptEvolution(ctx context.Context, attempt Attempt) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	rate, ok := tierSuccessRate[string(attempt.Tier)]
	if !ok {
		rate = 0.5
	}
	if s.rng.Float64() < rate {
		return Outcome{Success: true, LevelDelta: 1 + s.rng.Intn(2)}, nil
	}
	return Outcome{
		Success: false,
		Error:   fmt.Sprintf("scripted attempt on %s did not converge", attempt.SkillID),
	}, nil
}
