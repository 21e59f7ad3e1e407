package scoring

import (
	"testing"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/model"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoFeatures = []string{feature.ContractValue, feature.DurationMonths}

func identityScaler() *model.Scaler {
	return &model.Scaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}}
}

func valueForest() *model.RandomForest {
	return &model.RandomForest{
		NFeatures: 2,
		Trees: []model.Tree{{Nodes: []model.Node{
			{Feature: 0, Threshold: 1_000_000, Left: 1, Right: 2},
			{Feature: -1, Value: []float64{1, 0}},
			{Feature: -1, Value: []float64{0, 1}},
		}}},
	}
}

func valueIsolation() *model.IsolationForest {
	return &model.IsolationForest{
		NFeatures:  2,
		MaxSamples: 4,
		Offset:     model.DefaultIsolationOffset,
		Trees: []model.Tree{{Nodes: []model.Node{
			{Feature: 0, Threshold: 10, Left: 1, Right: 2},
			{Feature: -1, Size: 3},
			{Feature: -1, Size: 1},
		}}},
	}
}

type opaque struct{}

func (opaque) Type() model.Type { return "opaque" }
func (opaque) Features() int    { return 2 }

func score(t *testing.T, s *Scorer, r contract.Record) Result {
	t.Helper()
	b := feature.NewBuilder(s.Schema(), feature.WithIndicators(s.Indicators()))
	v, err := b.Build(r)
	require.NoError(t, err)
	res, err := s.Score(r, v)
	require.NoError(t, err)
	return res
}

func months(v float64) *float64 { return &v }
func bids(v int) *int           { return &v }

func TestNew_Modes(t *testing.T) {
	tests := []struct {
		name string
		reg  *registry.Registry
		want Mode
	}{
		{"nil", nil, ModeHeuristic},
		{"empty", registry.Empty(), ModeHeuristic},
		{"legacy without scaler", registry.New(registry.TierLegacy, "if", valueIsolation(), nil, nil), ModeHeuristic},
		{"no schema", registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), nil), ModeHeuristic},
		{"opaque model", registry.New(registry.TierOptimized, "x", opaque{}, identityScaler(), twoFeatures), ModeHeuristic},
		{"probabilistic", registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), twoFeatures), ModeModel},
		{"decision", registry.New(registry.TierProduction, "if", valueIsolation(), identityScaler(), twoFeatures), ModeModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.reg, DefaultRules())
			assert.Equal(t, tt.want, s.Mode())
			if tt.want == ModeHeuristic {
				assert.Equal(t, feature.DefaultSchema(), s.Schema())
			} else {
				assert.Equal(t, twoFeatures, s.Schema())
			}
		})
	}
}

func TestHeuristic_Scenarios(t *testing.T) {
	s := New(registry.Empty(), DefaultRules())

	flagged := score(t, s, contract.Record{
		ContractNumber: "GOV-1",
		Description:    "Emergency bridge repair",
		Amount:         75_000_000,
		Country:        "Pakistan",
		DurationMonths: months(2),
	})
	level, _ := risk.Classify(flagged.Probability)
	assert.Equal(t, risk.LevelHigh, level)
	assert.InDelta(t, 0.7, flagged.Probability, 1e-9)
	assert.Equal(t, ModeHeuristic, flagged.Mode)
	assert.True(t, flagged.IsAnomaly)
	assert.ElementsMatch(t, []string{SignalHighValue, SignalDirectSourcing, SignalShortDuration}, flagged.Signals)

	for _, country := range []string{"Pakistan", "Canada", ""} {
		t.Run("ordinary contract in "+country, func(t *testing.T) {
			normal := score(t, s, contract.Record{
				ContractNumber: "GOV-2",
				Description:    "Office supplies",
				Amount:         250_000,
				Country:        country,
				DurationMonths: months(12),
			})
			level, _ := risk.Classify(normal.Probability)
			assert.Equal(t, risk.LevelLow, level)
			assert.Zero(t, normal.Probability)
			assert.Empty(t, normal.Signals)
			assert.InDelta(t, 1.0, normal.Confidence, 1e-9)
		})
	}

	regional := score(t, s, contract.Record{
		ContractNumber: "GOV-4",
		Description:    "Emergency bridge repair",
		Amount:         75_000_000,
		Country:        "Pakistan",
		Region:         "South Asia",
		DurationMonths: months(2),
	})
	level, _ = risk.Classify(regional.Probability)
	assert.Equal(t, risk.LevelCritical, level)
	assert.InDelta(t, 0.9, regional.Probability, 1e-9)
	assert.Contains(t, regional.Signals, SignalHighRiskLocation)

	zero := score(t, s, contract.Record{ContractNumber: "GOV-3"})
	level, _ = risk.Classify(zero.Probability)
	assert.Equal(t, risk.LevelLow, level)
}

func TestHeuristic_AnomalyIsManualScore(t *testing.T) {
	s := New(nil, DefaultRules())
	r := contract.Record{Amount: 30_000_000, DurationMonths: months(2), BidCount: bids(1)}
	res := score(t, s, r)
	want := feature.ManualAnomaly(1, 1, 1, feature.NeutralSupplierRisk)
	assert.InDelta(t, want, res.AnomalyScore, 1e-9)
}

func TestHeuristic_Weights(t *testing.T) {
	s := New(nil, DefaultRules())
	tests := []struct {
		name string
		rec  contract.Record
		want float64
	}{
		{"baseline", contract.Record{Amount: 1000}, 0},
		{"high value", contract.Record{Amount: 60_000_000}, 0.4},
		{"threshold is exclusive", contract.Record{Amount: 50_000_000}, 0},
		{"region", contract.Record{Amount: 1000, Region: "south asia"}, 0.3},
		{"procurement type", contract.Record{Amount: 1000, ProcurementType: "Single"}, 0.2},
		{"short", contract.Record{Amount: 1000, DurationMonths: months(3)}, 0.1},
		{"one bid", contract.Record{Amount: 1000, BidCount: bids(1)}, 0.1},
		{"country alone is not a region", contract.Record{Amount: 1000, Country: "Pakistan"}, 0},
		{"capped", contract.Record{Amount: 60_000_000, Region: "South Asia", Description: "direct award", DurationMonths: months(1), BidCount: bids(0)}, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, score(t, s, tt.rec).Probability, 1e-9)
		})
	}
}

func TestHeuristic_Monotone(t *testing.T) {
	s := New(nil, DefaultRules())
	base := contract.Record{Country: "Kenya", Description: "road works", DurationMonths: months(6)}
	prev := -1.0
	for _, a := range []float64{-1e9, -1, 0, 1, 1e5, 2.5e7, 5e7, 5e7 + 1, 1e8, 1e12} {
		r := base
		r.Amount = a
		p := score(t, s, r).Probability
		assert.GreaterOrEqual(t, p, prev, "amount %v", a)
		prev = p
	}
}

func TestHeuristic_Adversarial(t *testing.T) {
	s := New(nil, DefaultRules())
	records := []contract.Record{
		{Amount: -5_000_000},
		{Amount: 0, Description: "", Supplier: "", Country: ""},
		{Amount: 1e300, Country: "Atlantis"},
		{Amount: 123, DurationMonths: months(0.0001), BidCount: bids(0)},
	}
	for _, r := range records {
		res := score(t, s, r)
		assert.GreaterOrEqual(t, res.Probability, 0.0)
		assert.LessOrEqual(t, res.Probability, 1.0)
	}

	neg := score(t, s, records[0])
	assert.Contains(t, neg.Signals, SignalNegativeAmount)
}

func TestScore_Deterministic(t *testing.T) {
	scorers := []*Scorer{
		New(nil, DefaultRules()),
		New(registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), twoFeatures), DefaultRules()),
		New(registry.New(registry.TierOptimized, "if", valueIsolation(), identityScaler(), twoFeatures), DefaultRules()),
	}
	r := contract.Record{Amount: 42_000_000, Country: "Pakistan", Supplier: "Acme"}
	for _, s := range scorers {
		first := score(t, s, r)
		for range 10 {
			assert.Equal(t, first, score(t, s, r))
		}
	}
}

func TestModel_Probabilistic(t *testing.T) {
	s := New(registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), twoFeatures), DefaultRules())

	high := score(t, s, contract.Record{Amount: 5_000_000})
	assert.InDelta(t, 1.0, high.Probability, 1e-9)
	assert.InDelta(t, 1.0, high.AnomalyScore, 1e-9)
	assert.Equal(t, ModeModel, high.Mode)
	assert.Contains(t, high.Signals, SignalModelFlagged)

	low := score(t, s, contract.Record{Amount: 100})
	assert.Zero(t, low.Probability)
	assert.NotContains(t, low.Signals, SignalModelFlagged)
}

func TestModel_Decision(t *testing.T) {
	m := valueIsolation()
	s := New(registry.New(registry.TierProduction, "if", m, identityScaler(), twoFeatures), DefaultRules())

	res := score(t, s, contract.Record{Amount: 50})
	d, err := m.DecisionFunction([]float64{50, 12})
	require.NoError(t, err)
	assert.InDelta(t, d, res.AnomalyScore, 1e-12)
	assert.InDelta(t, model.DecisionProbability(d), res.Probability, 1e-12)
	assert.Greater(t, res.Probability, 0.5)

	inlier := score(t, s, contract.Record{Amount: 1})
	assert.Less(t, inlier.Probability, res.Probability)
}

func TestModel_NetworkSaturatesOnExtremeInput(t *testing.T) {
	nn := &model.NeuralNetwork{
		NFeatures: 2,
		Layers: []model.Layer{
			{Weights: [][]float64{{2, 0}, {2, 0}}, Bias: []float64{0, 0}, Activation: model.ActivationReLU},
			{Weights: [][]float64{{1, -1}}, Bias: []float64{0}, Activation: model.ActivationLogistic},
		},
	}
	sc := &model.Scaler{Mean: []float64{0, 0}, Scale: []float64{1e-3, 1}}
	schema := []string{feature.ValuePerMonth, feature.ContractValue}
	s := New(registry.New(registry.TierOptimized, "mlp", nn, sc, schema), DefaultRules())
	require.Equal(t, ModeModel, s.Mode())

	for _, r := range []contract.Record{
		{Amount: 1e300, DurationMonths: months(1e-300)},
		{Amount: -1e300, DurationMonths: months(1e-300)},
		{Amount: 1e300, BidCount: bids(0)},
	} {
		res := score(t, s, r)
		assert.InDelta(t, 0.5, res.Probability, 1e-9, "amount %v", r.Amount)
	}
}

func TestScorer_SchemaIsCopied(t *testing.T) {
	s := New(registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), twoFeatures), DefaultRules())
	got := s.Schema()
	got[0] = "mutated"
	assert.Equal(t, twoFeatures, s.Schema())
}

func TestScore_VectorWidthMismatch(t *testing.T) {
	s := New(registry.New(registry.TierOptimized, "rf", valueForest(), identityScaler(), twoFeatures), DefaultRules())
	v, err := feature.NewBuilder(feature.DefaultSchema()).Build(contract.Record{Amount: 1})
	require.NoError(t, err)
	_, err = s.Score(contract.Record{Amount: 1}, v)
	assert.Error(t, err)
}

func TestRules_Validate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	tests := []struct {
		name string
		mod  func(*Rules)
	}{
		{"negative weight", func(r *Rules) { r.HighValueWeight = -0.1 }},
		{"weight above one", func(r *Rules) { r.LocationWeight = 1.5 }},
		{"zero cap", func(r *Rules) { r.Cap = 0 }},
		{"cap above one", func(r *Rules) { r.Cap = 1.1 }},
		{"negative threshold", func(r *Rules) { r.HighValueThreshold = -1 }},
		{"negative bids", func(r *Rules) { r.LowBidCount = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRules()
			tt.mod(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestModelName(t *testing.T) {
	assert.Empty(t, New(nil, DefaultRules()).ModelName())
	s := New(registry.New(registry.TierOptimized, "rf_v2", valueForest(), identityScaler(), twoFeatures), DefaultRules())
	assert.Equal(t, "rf_v2", s.ModelName())
}
