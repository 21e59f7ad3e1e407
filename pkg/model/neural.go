package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Activation names a layer's nonlinearity.
type Activation string

const (
	ActivationReLU     Activation = "relu"
	ActivationLogistic Activation = "logistic"
	ActivationTanh     Activation = "tanh"
	ActivationIdentity Activation = "identity"
)

// Layer is a dense layer; Weights has one row per output unit.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation Activation  `json:"activation"`
}

// NeuralNetwork is a feed-forward network whose final layer has a single
// logistic unit producing P(fraud).
type NeuralNetwork struct {
	NFeatures int     `json:"n_features"`
	Layers    []Layer `json:"layers"`
}

func (m *NeuralNetwork) Type() Type    { return TypeNeuralNetwork }
func (m *NeuralNetwork) Features() int { return m.NFeatures }

// PredictProba runs a forward pass.
func (m *NeuralNetwork) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(m.Type(), m.NFeatures, x); err != nil {
		return 0, err
	}
	out := Forward(m.Layers, x)
	return Clamp01(out[len(out)-1][0]), nil
}

// Forward returns every layer's activations, the input excluded.
func Forward(layers []Layer, x []float64) [][]float64 {
	acts := make([][]float64, 0, len(layers))
	in := x
	for _, l := range layers {
		o := make([]float64, len(l.Weights))
		for j, w := range l.Weights {
			o[j] = l.Activation.apply(floats.Dot(w, in) + l.Bias[j])
		}
		acts = append(acts, o)
		in = o
	}
	return acts
}

func (a Activation) apply(v float64) float64 {
	switch a {
	case ActivationReLU:
		return math.Max(0, v)
	case ActivationLogistic:
		return Sigmoid(v)
	case ActivationTanh:
		return math.Tanh(v)
	default:
		return v
	}
}

// Derivative returns the activation derivative expressed in terms of the
// activation output y.
func (a Activation) Derivative(y float64) float64 {
	switch a {
	case ActivationReLU:
		if y > 0 {
			return 1
		}
		return 0
	case ActivationLogistic:
		return y * (1 - y)
	case ActivationTanh:
		return 1 - y*y
	default:
		return 1
	}
}

// Sigmoid is the logistic function.
func Sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func (m *NeuralNetwork) validate() error {
	if len(m.Layers) == 0 {
		return fmt.Errorf("neural network has no layers")
	}
	in := m.NFeatures
	for i, l := range m.Layers {
		switch l.Activation {
		case ActivationReLU, ActivationLogistic, ActivationTanh, ActivationIdentity:
		default:
			return fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		if len(l.Weights) == 0 || len(l.Bias) != len(l.Weights) {
			return fmt.Errorf("layer %d: %d weight rows for %d biases", i, len(l.Weights), len(l.Bias))
		}
		for j, w := range l.Weights {
			if len(w) != in {
				return fmt.Errorf("layer %d unit %d: %d weights for %d inputs", i, j, len(w), in)
			}
		}
		in = len(l.Weights)
	}
	last := m.Layers[len(m.Layers)-1]
	if len(last.Weights) != 1 || last.Activation != ActivationLogistic {
		return fmt.Errorf("output layer must be a single logistic unit")
	}
	return nil
}
