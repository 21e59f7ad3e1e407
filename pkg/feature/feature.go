// Package feature turns contract records into the fixed-length numeric
// vectors expected by a trained fraud model. The set of derivable features is
// a named catalogue; the active model's schema selects and orders them, and
// any schema name the catalogue does not know is filled with zero so that
// older and newer model generations keep working against the same builder.
package feature

import (
	"fmt"
	"math"
	"slices"

	"github.com/govai-platform/govai/pkg/contract"
)

// Catalogue feature names.
const (
	ContractValue             = "contract_value"
	ValueLog                  = "value_log"
	ValueSqrt                 = "value_sqrt"
	DurationMonths            = "duration_months"
	BidCount                  = "bid_count"
	ValuePerMonth             = "value_per_month"
	ValueZScore               = "value_zscore"
	ValuePercentile           = "value_percentile"
	ValueDurationRatio        = "value_duration_ratio"
	ValueBidRatio             = "value_bid_ratio"
	SupplierConcentration     = "supplier_concentration"
	ExtremeHighValue          = "extreme_high_value"
	ExtremeShortDuration      = "extreme_short_duration"
	ExtremeLowBids            = "extreme_low_bids"
	HighValueShortDuration    = "high_value_short_duration"
	FrequentSupplierHighValue = "frequent_supplier_high_value"
	SupplierFrequencyRank     = "supplier_frequency_rank"
	DeptFrequencyRank         = "dept_frequency_rank"
	SupplierRiskScore         = "supplier_risk_score"
	ManualAnomalyScore        = "manual_anomaly_score"
	WeekendAward              = "weekend_award"
	EndOfYear                 = "end_of_year"
	AwardYearEncoded          = "award_year_encoded"
	NegativeValue             = "negative_value"
	RegionRisk                = "region_risk"
	DirectSourcing            = "direct_sourcing"
)

const (
	extremeHighValueThreshold     = 25_000_000
	extremeShortDurationThreshold = 3
	extremeLowBidsThreshold       = 1
	frequentSupplierRank          = 0.8

	valueZScoreCenter   = 5_000_000
	valueZScoreSpread   = 2_000_000
	valuePercentileCeil = 50_000_000
	valuePercentileMax  = 0.99
	concentrationCeil   = 10_000_000

	highValueWeight     = 0.25
	shortDurationWeight = 0.20
	lowBidsWeight       = 0.15
	supplierRiskWeight  = 0.30

	defaultValue = 0.0
)

// DefaultSchema returns the feature order used when training new models.
func DefaultSchema() []string {
	return []string{
		ContractValue, ValueLog, ValueSqrt, DurationMonths, BidCount,
		ValuePerMonth, ValueZScore, ValuePercentile, ValueDurationRatio,
		ValueBidRatio, SupplierConcentration, ExtremeHighValue,
		ExtremeShortDuration, ExtremeLowBids, HighValueShortDuration,
		FrequentSupplierHighValue, SupplierFrequencyRank, DeptFrequencyRank,
		SupplierRiskScore, ManualAnomalyScore, WeekendAward, EndOfYear,
		AwardYearEncoded, NegativeValue, RegionRisk, DirectSourcing,
	}
}

// FeaturizationError reports an internal mismatch between the schema and the
// assembled vector. It indicates a bug, not bad input.
type FeaturizationError struct {
	Want int
	Got  int
}

func (e *FeaturizationError) Error() string {
	return fmt.Sprintf("featurization produced %d values for a %d feature schema", e.Got, e.Want)
}

// Vector is an ordered mapping from feature name to value.
type Vector struct {
	names     []string
	values    []float64
	catalogue map[string]float64
}

// Names returns the feature names in schema order.
func (v Vector) Names() []string { return slices.Clone(v.names) }

// Values returns the feature values in schema order.
func (v Vector) Values() []float64 { return slices.Clone(v.values) }

// Len returns the number of features in the vector.
func (v Vector) Len() int { return len(v.values) }

// Get returns the value of a schema feature.
func (v Vector) Get(name string) (float64, bool) {
	i := slices.Index(v.names, name)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

// Derived returns a catalogue value computed for the record whether or not
// the active schema includes it.
func (v Vector) Derived(name string) float64 {
	return v.catalogue[name]
}

// Map returns the vector as a name to value map.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.names))
	for i, n := range v.names {
		m[n] = v.values[i]
	}
	return m
}

// Builder derives feature vectors for a fixed schema.
type Builder struct {
	schema     []string
	indicators Indicators
	priors     Priors
}

// Option configures a Builder.
type Option func(*Builder)

// WithIndicators sets the lookup tables used for categorical risk flags.
func WithIndicators(i Indicators) Option {
	return func(b *Builder) { b.indicators = i }
}

// WithPriors sets static supplier and department priors.
func WithPriors(p Priors) Option {
	return func(b *Builder) { b.priors = p.normalized() }
}

// NewBuilder returns a builder producing vectors for schema.
func NewBuilder(schema []string, opts ...Option) *Builder {
	b := &Builder{schema: slices.Clone(schema)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema returns the builder's feature names.
func (b *Builder) Schema() []string { return slices.Clone(b.schema) }

// Build returns the vector for r. It is a pure function of the record and the
// builder's schema, indicators and priors.
func (b *Builder) Build(r contract.Record) (Vector, error) {
	cat := b.Catalogue(r)

	values := make([]float64, 0, len(b.schema))
	for _, name := range b.schema {
		values = append(values, lookup(cat, name))
	}

	if len(values) != len(b.schema) {
		return Vector{}, &FeaturizationError{Want: len(b.schema), Got: len(values)}
	}

	return Vector{
		names:     slices.Clone(b.schema),
		values:    values,
		catalogue: cat,
	}, nil
}

// lookup is the explicit default step: names outside the catalogue are zero.
func lookup(cat map[string]float64, name string) float64 {
	if v, ok := cat[name]; ok {
		return v
	}
	return defaultValue
}

// Catalogue computes every derivable feature for r.
func (b *Builder) Catalogue(r contract.Record) map[string]float64 {
	amount := r.Amount
	duration := r.Duration()
	bids := r.Bids()
	bidDivisor := float64(max(bids, 1))

	extremeHigh := flag(amount > extremeHighValueThreshold)
	extremeShort := flag(duration <= extremeShortDurationThreshold)
	extremeLow := flag(bids <= extremeLowBidsThreshold)

	supplierRank := b.priors.supplierFrequencyRank(r.Supplier)
	supplierRisk := b.priors.supplierRisk(r.Supplier)

	cat := map[string]float64{
		ContractValue:             amount,
		ValueLog:                  signedLog1p(amount),
		ValueSqrt:                 signedSqrt(amount),
		DurationMonths:            duration,
		BidCount:                  float64(bids),
		ValuePerMonth:             amount / duration,
		ValueZScore:               math.Abs(amount-valueZScoreCenter) / valueZScoreSpread,
		ValuePercentile:           math.Min(valuePercentileMax, amount/valuePercentileCeil),
		ValueDurationRatio:        amount / duration,
		ValueBidRatio:             amount / bidDivisor,
		SupplierConcentration:     math.Min(1, amount/concentrationCeil),
		ExtremeHighValue:          extremeHigh,
		ExtremeShortDuration:      extremeShort,
		ExtremeLowBids:            extremeLow,
		HighValueShortDuration:    extremeHigh * extremeShort,
		FrequentSupplierHighValue: flag(supplierRank >= frequentSupplierRank) * extremeHigh,
		SupplierFrequencyRank:     supplierRank,
		DeptFrequencyRank:         b.priors.departmentFrequencyRank(r.Department),
		SupplierRiskScore:         supplierRisk,
		ManualAnomalyScore:        ManualAnomaly(extremeHigh, extremeShort, extremeLow, supplierRisk),
		NegativeValue:             flag(amount < 0),
		RegionRisk:                flag(b.indicators.HighRiskLocation(r)),
		DirectSourcing:            flag(b.indicators.DirectSourcing(r)),
	}
	for k, v := range cat {
		cat[k] = finite(v)
	}
	return cat
}

// finite maps ratio overflow onto the largest representable magnitude so
// every catalogue value is a real number. NaN becomes the default value.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return defaultValue
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// ManualAnomaly is the weighted sum of the three extreme flags and the
// supplier risk prior.
func ManualAnomaly(highValue, shortDuration, lowBids, supplierRisk float64) float64 {
	return highValue*highValueWeight +
		shortDuration*shortDurationWeight +
		lowBids*lowBidsWeight +
		supplierRisk*supplierRiskWeight
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// signedLog1p keeps log scaling defined for negative amounts.
func signedLog1p(v float64) float64 {
	return math.Copysign(math.Log1p(math.Abs(v)), v)
}

func signedSqrt(v float64) float64 {
	return math.Copysign(math.Sqrt(math.Abs(v)), v)
}
