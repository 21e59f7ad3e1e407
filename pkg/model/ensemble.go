package model

import (
	"fmt"
)

// Member is a weighted ensemble participant.
type Member struct {
	Weight float64 `json:"weight"`
	Model  Model   `json:"-"`
}

// Ensemble soft-votes its members' fraud probabilities. Decision members are
// mapped through DecisionProbability first.
type Ensemble struct {
	Members []Member
}

func (m *Ensemble) Type() Type { return TypeEnsemble }

// Features returns the first member's input width.
func (m *Ensemble) Features() int {
	for _, mem := range m.Members {
		if n := mem.Model.Features(); n > 0 {
			return n
		}
	}
	return 0
}

// PredictProba returns the weighted mean member probability.
func (m *Ensemble) PredictProba(x []float64) (float64, error) {
	var sum, weights float64
	for i, mem := range m.Members {
		p, err := MemberProbability(mem.Model, x)
		if err != nil {
			return 0, fmt.Errorf("ensemble member %d: %w", i, err)
		}
		sum += p * mem.Weight
		weights += mem.Weight
	}
	if weights <= 0 {
		return 0, fmt.Errorf("ensemble weights sum to %v", weights)
	}
	return Clamp01(sum / weights), nil
}

// MemberProbability returns P(fraud) for any supported model capability.
func MemberProbability(m Model, x []float64) (float64, error) {
	switch v := m.(type) {
	case Probabilistic:
		return v.PredictProba(x)
	case Decision:
		d, err := v.DecisionFunction(x)
		if err != nil {
			return 0, err
		}
		return DecisionProbability(d), nil
	default:
		return 0, fmt.Errorf("model type %s has no scoring capability", m.Type())
	}
}

func (m *Ensemble) validate() error {
	if len(m.Members) == 0 {
		return fmt.Errorf("ensemble has no members")
	}
	width := 0
	for i, mem := range m.Members {
		if mem.Weight < 0 {
			return fmt.Errorf("ensemble member %d: negative weight", i)
		}
		if _, ok := mem.Model.(*Ensemble); ok {
			return fmt.Errorf("ensemble member %d: nested ensembles are not supported", i)
		}
		n := mem.Model.Features()
		if width > 0 && n > 0 && n != width {
			return fmt.Errorf("ensemble member %d: %d features, want %d", i, n, width)
		}
		if n > 0 {
			width = n
		}
	}
	return nil
}
