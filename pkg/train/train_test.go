package train

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/model"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/govai-platform/govai/pkg/scoring"
	"github.com/govai-platform/govai/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(dir string) Options {
	o := DefaultOptions(dir)
	o.Samples = 400
	o.Forest = ForestTrainer{Trees: 8, MaxDepth: 6, MinLeaf: 2, Seed: 1}
	o.Isolation = IsolationTrainer{Trees: 20, MaxSamples: 64, Contamination: DefaultFraudRate, Seed: 1}
	o.Network = NetworkTrainer{Hidden: []int{8}, Epochs: 5, LearningRate: 0.01, Seed: 1}
	return o
}

func testDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	b := feature.NewBuilder(feature.DefaultSchema(), feature.WithIndicators(scoring.DefaultRules().Indicators()))
	raw, err := NewDataset(Generate(n, 7), b, 0.2, 7)
	require.NoError(t, err)
	d, _, err := raw.Scale()
	require.NoError(t, err)
	return d
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(200, 42)
	b := Generate(200, 42)
	require.Len(t, a, 200)
	assert.Equal(t, a, b)

	c := Generate(200, 43)
	assert.NotEqual(t, a, c)
}

func TestGenerate_FraudRate(t *testing.T) {
	samples := Generate(4000, 1)
	var fraud int
	for _, s := range samples {
		require.NoError(t, s.Record.Validate())
		if s.Fraud {
			fraud++
		}
	}
	rate := float64(fraud) / float64(len(samples))
	assert.InDelta(t, DefaultFraudRate, rate, 0.03)
}

func TestSamplesFromRows(t *testing.T) {
	yes, no := true, false
	rows := []contract.Row{
		{Record: contract.Record{ContractNumber: "A", Amount: 10}, Label: &yes},
		{Record: contract.Record{ContractNumber: "B", Amount: 20}, Label: &no},
	}
	s, err := SamplesFromRows(rows)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.True(t, s[0].Fraud)
	assert.False(t, s[1].Fraud)

	rows = append(rows, contract.Row{Record: contract.Record{Amount: 1}})
	_, err = SamplesFromRows(rows)
	assert.Error(t, err)
}

func TestNewDataset_Stratified(t *testing.T) {
	samples := Generate(1000, 3)
	b := feature.NewBuilder(feature.DefaultSchema())
	d, err := NewDataset(samples, b, 0.2, 3)
	require.NoError(t, err)

	count := func(labels []int) (pos int) {
		for _, l := range labels {
			pos += l
		}
		return pos
	}
	assert.Equal(t, len(samples), len(d.TrainFeatures)+len(d.TestFeatures))
	assert.InDelta(t, 200, len(d.TestFeatures), 2)
	trainRate := float64(count(d.TrainLabels)) / float64(len(d.TrainLabels))
	testRate := float64(count(d.TestLabels)) / float64(len(d.TestLabels))
	assert.InDelta(t, trainRate, testRate, 0.02)
	assert.Equal(t, feature.DefaultSchema(), d.FeatureNames)
}

func TestNewDataset_Errors(t *testing.T) {
	b := feature.NewBuilder(feature.DefaultSchema())
	_, err := NewDataset(nil, b, 0.2, 1)
	assert.Error(t, err)

	_, err = NewDataset(Generate(10, 1), b, 1.5, 1)
	assert.Error(t, err)

	oneClass := []Sample{
		{Record: contract.Record{Amount: 1}},
		{Record: contract.Record{Amount: 2}},
	}
	_, err = NewDataset(oneClass, b, 0.5, 1)
	assert.Error(t, err)
}

func TestTrainers(t *testing.T) {
	d := testDataset(t, 600)
	trainers := []Trainer{
		ForestTrainer{Trees: 10, MaxDepth: 6, MinLeaf: 2, Seed: 1},
		IsolationTrainer{Trees: 30, MaxSamples: 128, Contamination: 0.15, Seed: 1},
		NetworkTrainer{Hidden: []int{8}, Epochs: 10, LearningRate: 0.01, Seed: 1},
	}
	for _, tr := range trainers {
		t.Run(tr.Name(), func(t *testing.T) {
			m, err := tr.Train(d)
			require.NoError(t, err)
			assert.Equal(t, len(d.FeatureNames), m.Features())

			perf, err := Evaluate(m, d)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, perf.Accuracy, 0.0)
			assert.LessOrEqual(t, perf.Accuracy, 1.0)

			// artifacts must survive the on-disk round trip and still validate
			path := filepath.Join(t.TempDir(), "m.json")
			require.NoError(t, model.SaveFile(path, m))
			_, err = model.LoadFile(path)
			require.NoError(t, err)
		})
	}
}

func TestForestTrainer_Separable(t *testing.T) {
	d := &Dataset{
		TrainFeatures: [][]float64{{0}, {0.1}, {0.2}, {0.9}, {1.0}, {1.1}},
		TrainLabels:   []int{0, 0, 0, 1, 1, 1},
		TestFeatures:  [][]float64{{0.05}, {1.05}},
		TestLabels:    []int{0, 1},
	}
	m, err := ForestTrainer{Trees: 5, MaxDepth: 3, MinLeaf: 1, Seed: 9}.Train(d)
	require.NoError(t, err)
	perf, err := Evaluate(m, d)
	require.NoError(t, err)
	assert.Equal(t, 1.0, perf.Accuracy)
}

func TestIsolationTrainer_Offset(t *testing.T) {
	d := testDataset(t, 500)
	m, err := IsolationTrainer{Trees: 50, MaxSamples: 128, Contamination: 0.15, Seed: 2}.Train(d)
	require.NoError(t, err)

	iso := m.(*model.IsolationForest)
	var outliers int
	for _, x := range d.TrainFeatures {
		s, err := iso.DecisionFunction(x)
		require.NoError(t, err)
		if s < 0 {
			outliers++
		}
	}
	rate := float64(outliers) / float64(len(d.TrainFeatures))
	assert.InDelta(t, 0.15, rate, 0.03)

	_, err = IsolationTrainer{Trees: 1, Contamination: 0.7}.Train(d)
	assert.Error(t, err)
}

func TestTrainers_NoRows(t *testing.T) {
	for _, tr := range []Trainer{ForestTrainer{}, IsolationTrainer{}, NetworkTrainer{}} {
		_, err := tr.Train(&Dataset{})
		assert.Error(t, err, tr.Name())
	}
}

func TestClassificationMetrics(t *testing.T) {
	p := classificationMetrics([]int{1, 1, 0, 0}, []int{1, 0, 0, 1})
	assert.InDelta(t, 0.5, p.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, p.Precision, 1e-9)
	assert.InDelta(t, 0.5, p.Recall, 1e-9)
	assert.InDelta(t, 0.5, p.F1Score, 1e-9)

	p = classificationMetrics([]int{0, 0}, []int{0, 0})
	assert.Equal(t, 1.0, p.Accuracy)
	assert.Zero(t, p.F1Score)
}

func TestRun_WritesLoadableConfiguration(t *testing.T) {
	dir := t.TempDir()
	rep, err := Run(context.Background(), fastOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, 400, rep.Samples)
	assert.Equal(t, rep.Samples, rep.TrainRows+rep.TestRows)
	assert.Len(t, rep.Models, 4)
	assert.NotEmpty(t, rep.BestModel)
	assert.Contains(t, rep.Files, "latest_production_config.json")
	assert.Contains(t, rep.Files, "final/latest_optimized_config.json")
	assert.Contains(t, rep.Files, registry.LegacyFile)

	reg, err := registry.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, registry.TierOptimized, reg.Tier())
	assert.True(t, reg.Complete())
	assert.Equal(t, rep.Optimized, reg.ModelName())
	assert.Equal(t, feature.DefaultSchema(), reg.CurrentFeatureNames())

	s := scoring.New(reg, scoring.DefaultRules())
	assert.Equal(t, scoring.ModeModel, s.Mode())
}

func TestRun_TrainedModelHandlesExtremeRecords(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), fastOptions(dir))
	require.NoError(t, err)
	reg, err := registry.Load(dir)
	require.NoError(t, err)
	svc := service.New(scoring.New(reg, scoring.DefaultRules()))

	tiny, zero := 1e-300, 0
	for _, r := range []contract.Record{
		{Amount: 1e300, DurationMonths: &tiny},
		{Amount: -1e300, DurationMonths: &tiny},
		{Amount: 1e300, BidCount: &zero},
		{Amount: math.MaxFloat64, DurationMonths: &tiny, BidCount: &zero},
	} {
		a, err := svc.Assess(context.Background(), r)
		require.NoError(t, err, "amount %v", r.Amount)
		assert.Equal(t, string(scoring.ModeModel), a.Mode)
		assert.GreaterOrEqual(t, a.RiskScore, 0.0)
		assert.LessOrEqual(t, a.RiskScore, 1.0)
		assert.False(t, math.IsNaN(a.AnomalyScore))
	}
}

func TestRun_ProductionFallback(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), fastOptions(dir))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "final")))

	reg, err := registry.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, registry.TierProduction, reg.Tier())
	assert.True(t, reg.Complete())
}

func TestRun_YAMLDescriptors(t *testing.T) {
	dir := t.TempDir()
	o := fastOptions(dir)
	o.Format = "yaml"
	rep, err := Run(context.Background(), o)
	require.NoError(t, err)
	for _, f := range rep.Files {
		if strings.Contains(f, "latest_") {
			assert.True(t, strings.HasSuffix(f, ".yaml"), f)
		}
	}

	reg, err := registry.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, registry.TierOptimized, reg.Tier())
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	o := fastOptions(t.TempDir())
	o.Format = "xml"
	_, err = Run(context.Background(), o)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, fastOptions(t.TempDir()))
	assert.ErrorIs(t, err, context.Canceled)
}
