package train

import (
	"math"

	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/model"
	"github.com/pkg/errors"
)

// Dataset holds a featurized, stratified train/test split. Labels are 1 for
// fraud and 0 otherwise.
type Dataset struct {
	FeatureNames  []string
	TrainFeatures [][]float64
	TrainLabels   []int
	TestFeatures  [][]float64
	TestLabels    []int
}

// NewDataset featurizes samples with b and splits them so that each class
// contributes testFraction of its rows to the test set.
func NewDataset(samples []Sample, b *feature.Builder, testFraction float64, seed uint64) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to train on")
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, errors.Errorf("test fraction must be in (0,1), got %v", testFraction)
	}

	rows := make([][]float64, len(samples))
	byClass := [2][]int{}
	for i, s := range samples {
		v, err := b.Build(s.Record)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to featurize sample %d", i)
		}
		rows[i] = v.Values()
		byClass[label(s.Fraud)] = append(byClass[label(s.Fraud)], i)
	}
	if len(byClass[0]) == 0 || len(byClass[1]) == 0 {
		return nil, errors.New("samples must contain both fraud and non-fraud contracts")
	}

	d := &Dataset{FeatureNames: b.Schema()}
	rng := newRand(seed, 0x5b1)
	for class, idx := range byClass {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testFraction * float64(len(idx))))
		for k, i := range idx {
			if k < nTest {
				d.TestFeatures = append(d.TestFeatures, rows[i])
				d.TestLabels = append(d.TestLabels, class)
			} else {
				d.TrainFeatures = append(d.TrainFeatures, rows[i])
				d.TrainLabels = append(d.TrainLabels, class)
			}
		}
	}
	if len(d.TrainFeatures) == 0 || len(d.TestFeatures) == 0 {
		return nil, errors.New("not enough samples for a train/test split")
	}
	return d, nil
}

// Scale fits a scaler on the training rows and returns a standardized copy
// of the dataset.
func (d *Dataset) Scale() (*Dataset, *model.Scaler, error) {
	s, err := model.FitScaler(d.TrainFeatures)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to fit scaler")
	}
	out := &Dataset{
		FeatureNames: d.FeatureNames,
		TrainLabels:  d.TrainLabels,
		TestLabels:   d.TestLabels,
	}
	if out.TrainFeatures, err = transformAll(s, d.TrainFeatures); err != nil {
		return nil, nil, err
	}
	if out.TestFeatures, err = transformAll(s, d.TestFeatures); err != nil {
		return nil, nil, err
	}
	return out, s, nil
}

func transformAll(s *model.Scaler, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		t, err := s.Transform(r)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func label(fraud bool) int {
	if fraud {
		return 1
	}
	return 0
}
