package model

import (
	"fmt"
)

const fraudClass = 1

// RandomForest is a bagged ensemble of classification trees. Leaf values hold
// class probabilities indexed by class.
type RandomForest struct {
	NFeatures int    `json:"n_features"`
	Trees     []Tree `json:"trees"`
}

func (m *RandomForest) Type() Type    { return TypeRandomForest }
func (m *RandomForest) Features() int { return m.NFeatures }

// PredictProba averages the fraud-class leaf probability over all trees.
func (m *RandomForest) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(m.Type(), m.NFeatures, x); err != nil {
		return 0, err
	}
	var sum float64
	for i, t := range m.Trees {
		n, _, err := t.leaf(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += classProbability(n.Value, fraudClass)
	}
	return Clamp01(sum / float64(len(m.Trees))), nil
}

func (m *RandomForest) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("random forest has no trees")
	}
	for i, t := range m.Trees {
		if err := t.validate(m.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// classProbability normalizes leaf values, which may be counts or probabilities.
func classProbability(value []float64, class int) float64 {
	if class >= len(value) {
		return 0
	}
	var total float64
	for _, v := range value {
		total += v
	}
	if total <= 0 {
		return 0
	}
	return value[class] / total
}
