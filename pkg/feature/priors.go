package feature

import (
	"maps"
	"slices"
)

// Neutral values used when no historical table covers a supplier or department.
const (
	NeutralSupplierRisk          = 0.3
	NeutralSupplierFrequencyRank = 0.2
	NeutralDeptFrequencyRank     = 0.5
)

// Priors are static per-supplier and per-department tables. Keys are matched
// after trimming and lower-casing. Missing entries fall back to neutral values.
type Priors struct {
	SupplierRisk            map[string]float64 `json:"supplier_risk,omitempty" yaml:"supplierRisk,omitempty"`
	SupplierFrequencyRank   map[string]float64 `json:"supplier_frequency_rank,omitempty" yaml:"supplierFrequencyRank,omitempty"`
	DepartmentFrequencyRank map[string]float64 `json:"department_frequency_rank,omitempty" yaml:"departmentFrequencyRank,omitempty"`
}

func (p Priors) normalized() Priors {
	return Priors{
		SupplierRisk:            normalizeTable(p.SupplierRisk),
		SupplierFrequencyRank:   normalizeTable(p.SupplierFrequencyRank),
		DepartmentFrequencyRank: normalizeTable(p.DepartmentFrequencyRank),
	}
}

func (p Priors) supplierRisk(supplier string) float64 {
	return lookupPrior(p.SupplierRisk, supplier, NeutralSupplierRisk)
}

func (p Priors) supplierFrequencyRank(supplier string) float64 {
	return lookupPrior(p.SupplierFrequencyRank, supplier, NeutralSupplierFrequencyRank)
}

func (p Priors) departmentFrequencyRank(dept string) float64 {
	return lookupPrior(p.DepartmentFrequencyRank, dept, NeutralDeptFrequencyRank)
}

func lookupPrior(table map[string]float64, key string, neutral float64) float64 {
	if v, ok := table[normalize(key)]; ok {
		return v
	}
	return neutral
}

// normalizeTable lower-cases keys; on collisions the lexically last original key wins.
func normalizeTable(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		if nk := normalize(k); nk != "" {
			out[nk] = in[k]
		}
	}
	return out
}
