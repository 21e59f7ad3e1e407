package scoring

import (
	"fmt"

	"github.com/govai-platform/govai/pkg/feature"
)

// Rules drive heuristic scoring and the categorical risk flags.
type Rules struct {
	HighValueThreshold   float64  `json:"high_value_threshold" yaml:"highValueThreshold"`
	HighValueWeight      float64  `json:"high_value_weight" yaml:"highValueWeight"`
	LocationWeight       float64  `json:"location_weight" yaml:"locationWeight"`
	DirectSourcingWeight float64  `json:"direct_sourcing_weight" yaml:"directSourcingWeight"`
	ShortDurationMonths  float64  `json:"short_duration_months" yaml:"shortDurationMonths"`
	ShortDurationWeight  float64  `json:"short_duration_weight" yaml:"shortDurationWeight"`
	LowBidCount          int      `json:"low_bid_count" yaml:"lowBidCount"`
	LowBidWeight         float64  `json:"low_bid_weight" yaml:"lowBidWeight"`
	Cap                  float64  `json:"cap" yaml:"cap"`
	HighRiskLocations    []string `json:"high_risk_locations" yaml:"highRiskLocations"`
	DirectSourcingTerms  []string `json:"direct_sourcing_terms" yaml:"directSourcingTerms"`
}

// DefaultRules returns the stock heuristic.
func DefaultRules() Rules {
	return Rules{
		HighValueThreshold:   50_000_000,
		HighValueWeight:      0.4,
		LocationWeight:       0.3,
		DirectSourcingWeight: 0.2,
		ShortDurationMonths:  3,
		ShortDurationWeight:  0.1,
		LowBidCount:          1,
		LowBidWeight:         0.1,
		Cap:                  0.9,
		HighRiskLocations: []string{
			"South Asia",
			"Sub-Saharan Africa",
			"Middle East and North Africa",
		},
		DirectSourcingTerms: []string{"direct", "single", "sole source", "emergency"},
	}
}

// Validate checks that every weight is within [0,1] and the cap within (0,1].
func (r Rules) Validate() error {
	weights := map[string]float64{
		"highValueWeight":      r.HighValueWeight,
		"locationWeight":       r.LocationWeight,
		"directSourcingWeight": r.DirectSourcingWeight,
		"shortDurationWeight":  r.ShortDurationWeight,
		"lowBidWeight":         r.LowBidWeight,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, w)
		}
	}
	if r.Cap <= 0 || r.Cap > 1 {
		return fmt.Errorf("cap must be within (0,1], got %v", r.Cap)
	}
	if r.HighValueThreshold < 0 {
		return fmt.Errorf("highValueThreshold must not be negative, got %v", r.HighValueThreshold)
	}
	if r.LowBidCount < 0 {
		return fmt.Errorf("lowBidCount must not be negative, got %d", r.LowBidCount)
	}
	return nil
}

// Indicators returns the feature indicators derived from the rules.
func (r Rules) Indicators() feature.Indicators {
	return feature.NewIndicators(r.HighRiskLocations, r.DirectSourcingTerms)
}
