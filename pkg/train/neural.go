package train

import (
	"math"
	"slices"

	"github.com/govai-platform/govai/pkg/model"
	"gonum.org/v1/gonum/floats"
)

// NetworkTrainer fits a feed-forward ReLU network with a single logistic
// output by plain SGD on binary cross-entropy.
type NetworkTrainer struct {
	Hidden       []int
	Epochs       int
	LearningRate float64
	Seed         uint64
}

func (t NetworkTrainer) Name() string { return string(model.TypeNeuralNetwork) }

func (t NetworkTrainer) Train(d *Dataset) (model.Model, error) {
	p, err := checkTrainable(d)
	if err != nil {
		return nil, err
	}
	rng := newRand(t.Seed, 0x22)

	var layers []model.Layer
	in := p
	for _, units := range append(slices.Clone(t.Hidden), 1) {
		act, gain := model.ActivationReLU, 2.0
		if len(layers) == len(t.Hidden) {
			act, gain = model.ActivationLogistic, 1.0
		}
		l := model.Layer{
			Weights:    make([][]float64, units),
			Bias:       make([]float64, units),
			Activation: act,
		}
		std := math.Sqrt(gain / float64(in))
		for j := range l.Weights {
			l.Weights[j] = make([]float64, in)
			for k := range l.Weights[j] {
				l.Weights[j][k] = rng.NormFloat64() * std
			}
		}
		layers = append(layers, l)
		in = units
	}

	lr := t.LearningRate
	if lr <= 0 {
		lr = 0.01
	}
	for range max(1, t.Epochs) {
		for _, i := range rng.Perm(len(d.TrainFeatures)) {
			step(layers, d.TrainFeatures[i], float64(d.TrainLabels[i]), lr)
		}
	}
	return &model.NeuralNetwork{NFeatures: p, Layers: layers}, nil
}

// step applies one backpropagation update for a single example.
func step(layers []model.Layer, x []float64, y, lr float64) {
	acts := model.Forward(layers, x)
	last := len(layers) - 1
	deltas := make([][]float64, len(layers))
	deltas[last] = []float64{acts[last][0] - y}
	for l := last - 1; l >= 0; l-- {
		d := make([]float64, len(layers[l].Weights))
		for j := range d {
			var s float64
			for k, w := range layers[l+1].Weights {
				s += w[j] * deltas[l+1][k]
			}
			d[j] = s * layers[l].Activation.Derivative(acts[l][j])
		}
		deltas[l] = d
	}
	for l := range layers {
		in := x
		if l > 0 {
			in = acts[l-1]
		}
		for j, w := range layers[l].Weights {
			g := lr * deltas[l][j]
			floats.AddScaled(w, -g, in)
			layers[l].Bias[j] -= g
		}
	}
}
