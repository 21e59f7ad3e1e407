// Package contract defines the procurement contract record submitted for
// fraud-risk scoring and its input validation.
package contract

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultDurationMonths is used when a record does not specify a duration.
	DefaultDurationMonths = 12
	// DefaultBidCount is used when a record does not specify a bid count.
	DefaultBidCount = 3
)

// Record is a single contract submitted for scoring. It is treated as
// immutable once handed to the scoring pipeline.
type Record struct {
	ContractNumber  string   `json:"contract_number" yaml:"contractNumber"`
	Description     string   `json:"description" yaml:"description"`
	Amount          float64  `json:"amount" yaml:"amount"`
	Supplier        string   `json:"supplier" yaml:"supplier"`
	Country         string   `json:"country" yaml:"country"`
	Region          string   `json:"region,omitempty" yaml:"region,omitempty"`
	Department      string   `json:"department,omitempty" yaml:"department,omitempty"`
	ProcurementType string   `json:"procurement_type,omitempty" yaml:"procurementType,omitempty"`
	DurationMonths  *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	BidCount        *int     `json:"bid_count,omitempty" yaml:"bidCount,omitempty"`
}

// Duration returns the duration in months, defaulting when unspecified.
func (r Record) Duration() float64 {
	if r.DurationMonths == nil {
		return DefaultDurationMonths
	}
	return *r.DurationMonths
}

// Bids returns the bid count, defaulting when unspecified.
func (r Record) Bids() int {
	if r.BidCount == nil {
		return DefaultBidCount
	}
	return *r.BidCount
}

// Validate checks the record for values that cannot be scored. Negative
// amounts and empty strings are valid input: they are scored, not rejected.
func (r Record) Validate() error {
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return &ValidationError{Field: "amount", Reason: "must be a finite number"}
	}
	if r.DurationMonths != nil {
		d := *r.DurationMonths
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return &ValidationError{Field: "duration", Reason: "must be a finite number"}
		}
		if d <= 0 {
			return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be greater than zero, got %v", d)}
		}
	}
	if r.BidCount != nil && *r.BidCount < 0 {
		return &ValidationError{Field: "bid_count", Reason: fmt.Sprintf("must not be negative, got %d", *r.BidCount)}
	}
	return nil
}

// Text returns the lower-cased description and procurement type, used for
// keyword matching.
func (r Record) Text() string {
	return strings.ToLower(r.Description + " " + r.ProcurementType)
}
