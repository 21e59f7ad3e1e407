// Package model holds the trained fraud model artifacts and their pure,
// deterministic inference. Models come in two capabilities: probabilistic
// models report P(fraud) directly, decision models report an anomaly-style
// decision score where negative values are more anomalous.
package model

import (
	"fmt"
	"math"
)

// Type identifies an artifact kind.
type Type string

const (
	TypeRandomForest    Type = "random_forest"
	TypeIsolationForest Type = "isolation_forest"
	TypeNeuralNetwork   Type = "neural_network"
	TypeEnsemble        Type = "ensemble"
	TypeStandardScaler  Type = "standard_scaler"
)

// ArtifactVersion is the artifact format version written by this package.
const ArtifactVersion = 1

// Model is a loaded fraud model.
type Model interface {
	// Type returns the artifact type.
	Type() Type
	// Features returns the input width the model was trained on.
	Features() int
}

// Probabilistic models return the probability of the fraud class.
type Probabilistic interface {
	Model
	PredictProba(x []float64) (float64, error)
}

// Decision models return a decision score; larger is more normal.
type Decision interface {
	Model
	DecisionFunction(x []float64) (float64, error)
}

// DecisionProbability maps a decision score into [0,1] as
// clamp(0.5 - 0.5*score, 0, 1).
func DecisionProbability(score float64) float64 {
	return Clamp01(0.5 - 0.5*score)
}

// Clamp01 limits v to [0,1]. NaN is returned unchanged.
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func checkWidth(t Type, want int, x []float64) error {
	if want > 0 && len(x) != want {
		return fmt.Errorf("%s expects %d features, got %d", t, want, len(x))
	}
	return nil
}
