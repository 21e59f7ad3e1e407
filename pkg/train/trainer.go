package train

import (
	"github.com/govai-platform/govai/pkg/model"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/pkg/errors"
)

// leaf marks a node without a split in the flat tree form.
const leaf = -1

// Trainer fits one model kind on a standardized dataset.
type Trainer interface {
	// Name is the key the model is registered under in the production
	// configuration.
	Name() string
	Train(d *Dataset) (model.Model, error)
}

// Predict returns 1 when m considers x fraudulent. Probabilistic models flag
// above 0.5; decision models flag negative scores.
func Predict(m model.Model, x []float64) (int, error) {
	switch v := m.(type) {
	case model.Probabilistic:
		p, err := v.PredictProba(x)
		if err != nil {
			return 0, err
		}
		return label(p > 0.5), nil
	case model.Decision:
		d, err := v.DecisionFunction(x)
		if err != nil {
			return 0, err
		}
		return label(d < 0), nil
	default:
		return 0, errors.Errorf("model type %s cannot predict", m.Type())
	}
}

// Evaluate scores m on the test split.
func Evaluate(m model.Model, d *Dataset) (registry.Performance, error) {
	pred := make([]int, len(d.TestFeatures))
	for i, x := range d.TestFeatures {
		p, err := Predict(m, x)
		if err != nil {
			return registry.Performance{}, errors.Wrapf(err, "failed to predict test row %d", i)
		}
		pred[i] = p
	}
	return classificationMetrics(pred, d.TestLabels), nil
}

func classificationMetrics(pred, actual []int) registry.Performance {
	var tp, fp, tn, fn float64
	for i := range pred {
		switch {
		case pred[i] == 1 && actual[i] == 1:
			tp++
		case pred[i] == 1 && actual[i] == 0:
			fp++
		case pred[i] == 0 && actual[i] == 0:
			tn++
		default:
			fn++
		}
	}
	var p registry.Performance
	if total := tp + fp + tn + fn; total > 0 {
		p.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		p.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		p.Recall = tp / (tp + fn)
	}
	if p.Precision+p.Recall > 0 {
		p.F1Score = 2 * p.Precision * p.Recall / (p.Precision + p.Recall)
	}
	return p
}

func checkTrainable(d *Dataset) (int, error) {
	if d == nil || len(d.TrainFeatures) == 0 {
		return 0, errors.New("no training rows")
	}
	if len(d.TrainFeatures) != len(d.TrainLabels) {
		return 0, errors.Errorf("%d training rows but %d labels", len(d.TrainFeatures), len(d.TrainLabels))
	}
	return len(d.TrainFeatures[0]), nil
}
