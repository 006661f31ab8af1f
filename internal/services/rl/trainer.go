package rl

import (
	"fmt"
	"math"
	"math/rand"

	"TradeSync/internal/domain/models"
)

const (
	// ModelVersion tags metrics produced by this agent.
	ModelVersion = "rl-1.0"

	DefaultEpisodes     = 100
	DefaultHidden       = 64
	DefaultLearningRate = 0.001
)

// Actions, matching the signal class indices.
const (
	ActionSell = 0
	ActionHold = 1
	ActionBuy  = 2
)

// Reward is the one-step payoff of action when the price moves from cur to next.
func Reward(action int, cur, next float64) float64 {
	change := next - cur
	switch action {
	case ActionBuy:
		return change
	case ActionSell:
		return -change
	default:
		return 0
	}
}

// Metrics summarizes a finished training run.
type Metrics struct {
	AvgReward    float64
	MinReward    float64
	MaxReward    float64
	Episodes     int
	Steps        int
	ModelVersion string
}

// AsMap flattens the metrics into the numeric map stored on a job.
func (m Metrics) AsMap() map[string]float64 {
	return map[string]float64{
		"avg_reward": m.AvgReward,
		"min_reward": m.MinReward,
		"max_reward": m.MaxReward,
		"episodes":   float64(m.Episodes),
		"steps":      float64(m.Steps),
	}
}

type Config struct {
	Hidden       int
	LearningRate float64
	Seed         int64
}

func DefaultConfig() Config {
	return Config{Hidden: DefaultHidden, LearningRate: DefaultLearningRate, Seed: 42}
}

// Trainer runs episodes of online Q-style updates over a price table.
// A Trainer is not safe for concurrent use; each job builds its own.
type Trainer struct {
	cfg    Config
	policy *Policy
	opt    *Adam
}

func NewTrainer(cfg Config) *Trainer {
	if cfg.Hidden <= 0 {
		cfg.Hidden = DefaultHidden
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	policy := NewPolicy(models.FeatureCount, cfg.Hidden, models.NumClasses, rand.New(rand.NewSource(cfg.Seed)))
	return &Trainer{cfg: cfg, policy: policy, opt: NewAdam(len(policy.params), cfg.LearningRate)}
}

// Train runs the given number of episodes over rows. Column 0 of each row is
// the price; the whole row, padded or truncated to the feature width, is the
// observation. Every step takes the greedy action, regresses its score toward
// the realized reward and updates the network immediately.
func (t *Trainer) Train(rows [][]float64, episodes int) (Metrics, error) {
	if err := validateRows(rows); err != nil {
		return Metrics{}, err
	}
	if episodes <= 0 {
		episodes = DefaultEpisodes
	}

	obs := make([][]float64, len(rows))
	for i, r := range rows {
		obs[i] = observation(r)
	}

	m := Metrics{Episodes: episodes, ModelVersion: ModelVersion, MinReward: math.Inf(1), MaxReward: math.Inf(-1)}
	total := 0.0
	for ep := 0; ep < episodes; ep++ {
		r := t.episode(rows, obs)
		total += r
		m.MinReward = math.Min(m.MinReward, r)
		m.MaxReward = math.Max(m.MaxReward, r)
		m.Steps += len(rows) - 1
	}
	m.AvgReward = total / float64(episodes)

	if math.IsNaN(m.AvgReward) || math.IsInf(m.AvgReward, 0) {
		return Metrics{}, fmt.Errorf("%w: average reward diverged", models.ErrTrainingFailure)
	}
	return m, nil
}

func (t *Trainer) episode(rows, obs [][]float64) float64 {
	total := 0.0
	dScores := make([]float64, models.NumClasses)
	for i := 0; i < len(rows)-1; i++ {
		scores := t.policy.Forward(obs[i])
		action := argmax(scores)
		reward := Reward(action, rows[i][0], rows[i+1][0])
		total += reward

		// MSE over all outputs with target == scores except at the taken
		// action, so only that entry carries gradient.
		for k := range dScores {
			dScores[k] = 0
		}
		dScores[action] = 2 * (scores[action] - reward) / float64(len(scores))
		t.policy.Backward(dScores)
		t.opt.Step(t.policy.params, t.policy.grads)
	}
	return total
}

// Act returns the greedy action for a raw row.
func (t *Trainer) Act(row []float64) int {
	return argmax(t.policy.Forward(observation(row)))
}

func validateRows(rows [][]float64) error {
	if len(rows) < 2 {
		return fmt.Errorf("%w: need at least 2 rows, got %d", models.ErrTrainingFailure, len(rows))
	}
	for i, r := range rows {
		if len(r) == 0 {
			return fmt.Errorf("%w: row %d is empty", models.ErrTrainingFailure, i)
		}
		for j, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d column %d is not finite", models.ErrTrainingFailure, i, j)
			}
		}
	}
	return nil
}

func observation(row []float64) []float64 {
	out := make([]float64, models.FeatureCount)
	copy(out, row)
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i := range xs {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
