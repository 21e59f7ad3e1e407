package data

import (
	"context"
	"database/sql"
	"sort"

	"github.com/govai-platform/govai/pkg/risk"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultTopSuppliers is the number of suppliers in a summary when no limit
// is given.
const DefaultTopSuppliers = 10

const (
	selectRiskDistribution = `SELECT risk_level, COUNT(*), COALESCE(AVG(risk_score), 0)
		FROM contract GROUP BY risk_level`

	selectSupplierAmounts = `SELECT supplier, amount FROM contract`
)

// SupplierTotal is the contracted value for one supplier.
type SupplierTotal struct {
	Supplier  string          `json:"supplier" yaml:"supplier"`
	Total     decimal.Decimal `json:"total" yaml:"total"`
	Contracts int64           `json:"contracts" yaml:"contracts"`
}

// RiskSummary aggregates the stored assessments.
type RiskSummary struct {
	TotalContracts   int64                `json:"total_contracts" yaml:"totalContracts"`
	TotalValue       decimal.Decimal      `json:"total_value" yaml:"totalValue"`
	AverageRiskScore float64              `json:"average_risk_score" yaml:"averageRiskScore"`
	RiskDistribution map[risk.Level]int64 `json:"risk_distribution" yaml:"riskDistribution"`
	HighRiskShare    float64              `json:"high_risk_share" yaml:"highRiskShare"`
	TopSuppliers     []SupplierTotal      `json:"top_suppliers" yaml:"topSuppliers"`
}

// GetRiskSummary returns totals, the risk level distribution and the topN
// suppliers by contracted value. topN <= 0 uses DefaultTopSuppliers.
func GetRiskSummary(ctx context.Context, db *sql.DB, topN int) (*RiskSummary, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if topN <= 0 {
		topN = DefaultTopSuppliers
	}

	s := &RiskSummary{
		TotalValue:       decimal.Zero,
		RiskDistribution: make(map[risk.Level]int64, 4),
		TopSuppliers:     make([]SupplierTotal, 0),
	}
	for _, l := range risk.Levels() {
		s.RiskDistribution[l] = 0
	}

	if err := summarizeLevels(ctx, db, s); err != nil {
		return nil, err
	}
	if err := summarizeSuppliers(ctx, db, s, topN); err != nil {
		return nil, err
	}
	return s, nil
}

func summarizeLevels(ctx context.Context, db *sql.DB, s *RiskSummary) error {
	rows, err := db.QueryContext(ctx, selectRiskDistribution)
	if err != nil {
		return errors.Wrap(err, "failed to query risk distribution")
	}
	defer rows.Close()

	var weighted float64
	for rows.Next() {
		var (
			level string
			count int64
			avg   float64
		)
		if err := rows.Scan(&level, &count, &avg); err != nil {
			return errors.Wrap(err, "failed to scan risk distribution")
		}
		s.RiskDistribution[risk.Level(level)] = count
		s.TotalContracts += count
		weighted += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to iterate risk distribution")
	}

	if s.TotalContracts > 0 {
		s.AverageRiskScore = weighted / float64(s.TotalContracts)
		high := s.RiskDistribution[risk.LevelHigh] + s.RiskDistribution[risk.LevelCritical]
		s.HighRiskShare = float64(high) / float64(s.TotalContracts)
	}
	return nil
}

// summarizeSuppliers sums amounts in decimal to keep totals exact.
func summarizeSuppliers(ctx context.Context, db *sql.DB, s *RiskSummary, topN int) error {
	rows, err := db.QueryContext(ctx, selectSupplierAmounts)
	if err != nil {
		return errors.Wrap(err, "failed to query supplier amounts")
	}
	defer rows.Close()

	totals := make(map[string]*SupplierTotal)
	for rows.Next() {
		var (
			supplier string
			amount   float64
		)
		if err := rows.Scan(&supplier, &amount); err != nil {
			return errors.Wrap(err, "failed to scan supplier amount")
		}
		v := decimal.NewFromFloat(amount)
		s.TotalValue = s.TotalValue.Add(v)

		t, ok := totals[supplier]
		if !ok {
			t = &SupplierTotal{Supplier: supplier, Total: decimal.Zero}
			totals[supplier] = t
		}
		t.Total = t.Total.Add(v)
		t.Contracts++
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to iterate supplier amounts")
	}

	list := make([]SupplierTotal, 0, len(totals))
	for _, t := range totals {
		list = append(list, *t)
	}
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Total.Cmp(list[j].Total); c != 0 {
			return c > 0
		}
		return list[i].Supplier < list[j].Supplier
	})
	if len(list) > topN {
		list = list[:topN]
	}
	s.TopSuppliers = list
	return nil
}
