package model

import (
	"fmt"
	"math"
)

const eulerGamma = 0.5772156649015329

// DefaultIsolationOffset is the decision offset used when no contamination
// rate was fitted.
const DefaultIsolationOffset = -0.5

// IsolationForest scores how easily a sample is isolated by random splits.
// Leaf nodes carry the number of training samples that reached them.
type IsolationForest struct {
	NFeatures  int     `json:"n_features"`
	MaxSamples int     `json:"max_samples"`
	Offset     float64 `json:"offset"`
	Trees      []Tree  `json:"trees"`
}

func (m *IsolationForest) Type() Type    { return TypeIsolationForest }
func (m *IsolationForest) Features() int { return m.NFeatures }

// ScoreSamples returns the negated anomaly score in [-1, 0); lower is more
// anomalous.
func (m *IsolationForest) ScoreSamples(x []float64) (float64, error) {
	if err := checkWidth(m.Type(), m.NFeatures, x); err != nil {
		return 0, err
	}
	var depth float64
	for i, t := range m.Trees {
		n, d, err := t.leaf(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		depth += float64(d) + AveragePathLength(n.Size)
	}
	mean := depth / float64(len(m.Trees))
	norm := AveragePathLength(m.MaxSamples)
	if norm == 0 {
		norm = 1
	}
	return -math.Pow(2, -mean/norm), nil
}

// DecisionFunction returns ScoreSamples minus the fitted offset. Negative
// values are outliers.
func (m *IsolationForest) DecisionFunction(x []float64) (float64, error) {
	s, err := m.ScoreSamples(x)
	if err != nil {
		return 0, err
	}
	return s - m.Offset, nil
}

func (m *IsolationForest) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("isolation forest has no trees")
	}
	if m.MaxSamples < 1 {
		return fmt.Errorf("isolation forest max_samples must be positive, got %d", m.MaxSamples)
	}
	for i, t := range m.Trees {
		if err := t.validate(m.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// AveragePathLength is the expected path length of an unsuccessful binary
// search tree lookup over n samples.
func AveragePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		f := float64(n)
		return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
	}
}
