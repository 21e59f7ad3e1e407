package train

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/pkg/errors"
)

// DefaultFraudRate is the share of fraudulent contracts in generated data.
const DefaultFraudRate = 0.15

// Sample is a labelled contract.
type Sample struct {
	Record contract.Record
	Fraud  bool
}

type location struct {
	country string
	region  string
}

var (
	safeLocations = []location{
		{"Canada", "North America"},
		{"Germany", "Europe and Central Asia"},
		{"Brazil", "Latin America and Caribbean"},
		{"Vietnam", "East Asia and Pacific"},
		{"Chile", "Latin America and Caribbean"},
		{"Poland", "Europe and Central Asia"},
	}
	riskyLocations = []location{
		{"Pakistan", "South Asia"},
		{"Afghanistan", "South Asia"},
		{"Kenya", "Sub-Saharan Africa"},
		{"Egypt", "Middle East and North Africa"},
	}
	departments  = []string{"Health", "Transport", "Energy", "Education", "Water", "Agriculture"}
	openTypes    = []string{"Open Tender", "Restricted Tender", "Request for Quotation", "Framework Agreement"}
	directTypes  = []string{"Direct Contracting", "Single Source Selection", "Emergency Procurement"}
	descriptions = []string{"road rehabilitation", "medical supplies", "school construction", "consulting services", "IT equipment", "water treatment"}
)

func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Generate returns n labelled synthetic contracts. The same seed always
// yields the same contracts.
func Generate(n int, seed uint64) []Sample {
	rng := newRand(seed, 0x5eed)
	out := make([]Sample, 0, n)
	for i := range n {
		fraud := rng.Float64() < DefaultFraudRate
		out = append(out, Sample{Record: synthRecord(rng, i, fraud), Fraud: fraud})
	}
	return out
}

func synthRecord(rng *rand.Rand, i int, fraud bool) contract.Record {
	var (
		amount   float64
		duration float64
		bids     int
		loc      location
		ptype    string
		supplier string
	)
	if fraud {
		amount = math.Exp(math.Log(20_000_000) + 1.3*rng.NormFloat64())
		duration = float64(1 + rng.IntN(6))
		bids = rng.IntN(3)
		loc = pickLocation(rng, 0.6)
		ptype = pick(rng, openTypes)
		if rng.Float64() < 0.6 {
			ptype = pick(rng, directTypes)
		}
		supplier = fmt.Sprintf("Supplier %03d", rng.IntN(15))
	} else {
		amount = math.Exp(math.Log(800_000) + 1.2*rng.NormFloat64())
		duration = float64(6 + rng.IntN(43))
		bids = 2 + rng.IntN(8)
		loc = pickLocation(rng, 0.15)
		ptype = pick(rng, openTypes)
		if rng.Float64() < 0.08 {
			ptype = pick(rng, directTypes)
		}
		supplier = fmt.Sprintf("Supplier %03d", rng.IntN(200))
	}
	dept := pick(rng, departments)
	return contract.Record{
		ContractNumber:  fmt.Sprintf("SYN-%06d", i),
		Description:     fmt.Sprintf("%s for %s", pick(rng, descriptions), dept),
		Amount:          math.Round(amount),
		Supplier:        supplier,
		Country:         loc.country,
		Region:          loc.region,
		Department:      dept,
		ProcurementType: ptype,
		DurationMonths:  &duration,
		BidCount:        &bids,
	}
}

func pickLocation(rng *rand.Rand, risky float64) location {
	if rng.Float64() < risky {
		return pick(rng, riskyLocations)
	}
	return pick(rng, safeLocations)
}

func pick[T any](rng *rand.Rand, s []T) T {
	return s[rng.IntN(len(s))]
}

// SamplesFromRows converts labelled CSV rows into samples. Every row must
// carry a label.
func SamplesFromRows(rows []contract.Row) ([]Sample, error) {
	out := make([]Sample, 0, len(rows))
	for i, r := range rows {
		if r.Label == nil {
			return nil, errors.Errorf("row %d has no is_fraud label", i+1)
		}
		if err := r.Record.Validate(); err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		out = append(out, Sample{Record: r.Record, Fraud: *r.Label})
	}
	return out, nil
}
