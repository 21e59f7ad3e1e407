// Package scoring turns feature vectors into fraud probabilities. The scoring
// mode is fixed when the Scorer is built from a registry snapshot.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/model"
	"github.com/govai-platform/govai/pkg/registry"
)

// Mode is how probabilities are produced.
type Mode string

const (
	ModeModel     Mode = "model"
	ModeHeuristic Mode = "heuristic"
)

// Signal names attached to results.
const (
	SignalHighValue        = "high_value"
	SignalHighRiskLocation = "high_risk_location"
	SignalDirectSourcing   = "direct_sourcing"
	SignalShortDuration    = "short_duration"
	SignalLowBids          = "low_bids"
	SignalNegativeAmount   = "negative_amount"
	SignalModelFlagged     = "model_flagged"
)

// anomalyCutoff is the probability above which a result counts as anomalous.
const anomalyCutoff = 0.5

// maxScaledFeature bounds standardized model inputs. Records far outside the
// training range saturate here instead of overflowing a network's layers.
const maxScaledFeature = 1e12

// Result is the scorer output for one contract.
type Result struct {
	Probability  float64  `json:"probability"`
	AnomalyScore float64  `json:"anomaly_score"`
	Confidence   float64  `json:"confidence"`
	IsAnomaly    bool     `json:"is_anomaly"`
	Mode         Mode     `json:"mode"`
	Signals      []string `json:"signals"`
}

// strategy is one branch of the scoring variant.
type strategy interface {
	score(r contract.Record, v feature.Vector) (probability, anomaly float64, err error)
}

// Scorer scores contracts with either a loaded model or the heuristic.
type Scorer struct {
	mode     Mode
	strategy strategy
	rules    Rules
	ind      feature.Indicators
	schema   []string
	name     string
}

// New returns a scorer for reg. Model mode requires a complete registry and a
// model that is either probabilistic or a decision model; anything else
// selects heuristic mode.
func New(reg *registry.Registry, rules Rules) *Scorer {
	s := &Scorer{
		mode:   ModeHeuristic,
		rules:  rules,
		ind:    rules.Indicators(),
		schema: feature.DefaultSchema(),
	}
	s.strategy = heuristic{rules: rules, ind: s.ind}

	if reg == nil || !reg.Complete() {
		return s
	}

	switch m := reg.CurrentModel().(type) {
	case model.Probabilistic:
		s.strategy = probabilistic{model: m, scaler: reg.CurrentScaler()}
	case model.Decision:
		s.strategy = decision{model: m, scaler: reg.CurrentScaler()}
	default:
		slog.Warn("loaded model supports neither probabilities nor decisions, using heuristic", "type", m.Type())
		return s
	}
	s.mode = ModeModel
	s.schema = reg.CurrentFeatureNames()
	s.name = reg.ModelName()
	return s
}

// Mode returns the scorer's fixed mode.
func (s *Scorer) Mode() Mode { return s.mode }

// ModelName returns the name of the model in use; empty in heuristic mode.
func (s *Scorer) ModelName() string { return s.name }

// Schema returns the feature names the scorer expects vectors to follow.
func (s *Scorer) Schema() []string {
	return slices.Clone(s.schema)
}

// Rules returns the heuristic rules.
func (s *Scorer) Rules() Rules { return s.rules }

// Indicators returns the location and sourcing indicators used for flags.
func (s *Scorer) Indicators() feature.Indicators { return s.ind }

// Score returns the fraud probability for r. v must follow Schema().
func (s *Scorer) Score(r contract.Record, v feature.Vector) (Result, error) {
	p, anomaly, err := s.strategy.score(r, v)
	if err != nil {
		return Result{}, err
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Result{}, fmt.Errorf("scorer produced non-finite probability: %v", p)
	}
	p = model.Clamp01(p)

	res := Result{
		Probability:  p,
		AnomalyScore: anomaly,
		Confidence:   math.Abs(p-anomalyCutoff) * 2,
		IsAnomaly:    p > anomalyCutoff,
		Mode:         s.mode,
		Signals:      s.signals(r),
	}
	if s.mode == ModeModel && res.IsAnomaly {
		res.Signals = append(res.Signals, SignalModelFlagged)
	}
	return res, nil
}

// signals lists the rule conditions r meets, independent of mode.
func (s *Scorer) signals(r contract.Record) []string {
	out := make([]string, 0)
	for _, c := range s.rules.conditions(r, s.ind) {
		if c.met {
			out = append(out, c.signal)
		}
	}
	if r.Amount < 0 {
		out = append(out, SignalNegativeAmount)
	}
	return out
}

type condition struct {
	signal string
	weight float64
	met    bool
}

func (r Rules) conditions(rec contract.Record, ind feature.Indicators) []condition {
	return []condition{
		{SignalHighValue, r.HighValueWeight, rec.Amount > r.HighValueThreshold},
		{SignalHighRiskLocation, r.LocationWeight, ind.HighRiskLocation(rec)},
		{SignalDirectSourcing, r.DirectSourcingWeight, ind.DirectSourcing(rec)},
		{SignalShortDuration, r.ShortDurationWeight, rec.Duration() <= r.ShortDurationMonths},
		{SignalLowBids, r.LowBidWeight, rec.Bids() <= r.LowBidCount},
	}
}

type heuristic struct {
	rules Rules
	ind   feature.Indicators
}

// score sums the weights of the met conditions and caps the total. The
// anomaly score is the manual anomaly composite.
func (h heuristic) score(r contract.Record, v feature.Vector) (float64, float64, error) {
	var p float64
	for _, c := range h.rules.conditions(r, h.ind) {
		if c.met {
			p += c.weight
		}
	}
	return math.Min(p, h.rules.Cap), v.Derived(feature.ManualAnomalyScore), nil
}

type probabilistic struct {
	model  model.Probabilistic
	scaler *model.Scaler
}

func (s probabilistic) score(_ contract.Record, v feature.Vector) (float64, float64, error) {
	x, err := scale(s.scaler, v)
	if err != nil {
		return 0, 0, err
	}
	p, err := s.model.PredictProba(x)
	if err != nil {
		return 0, 0, fmt.Errorf("predict: %w", err)
	}
	return p, p, nil
}

type decision struct {
	model  model.Decision
	scaler *model.Scaler
}

func (s decision) score(_ contract.Record, v feature.Vector) (float64, float64, error) {
	x, err := scale(s.scaler, v)
	if err != nil {
		return 0, 0, err
	}
	d, err := s.model.DecisionFunction(x)
	if err != nil {
		return 0, 0, fmt.Errorf("decision function: %w", err)
	}
	return model.DecisionProbability(d), d, nil
}

// scale standardizes v and bounds every value to ±maxScaledFeature.
func scale(sc *model.Scaler, v feature.Vector) ([]float64, error) {
	x, err := sc.Transform(v.Values())
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	for i, xi := range x {
		if math.IsNaN(xi) {
			x[i] = 0
			continue
		}
		x[i] = math.Max(-maxScaledFeature, math.Min(maxScaledFeature, xi))
	}
	return x, nil
}
