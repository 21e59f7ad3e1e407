package cli

import (
	"context"
	"database/sql"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/service"
)

// store adapts the data package to service.Repository.
type store struct {
	db *sql.DB
}

func newStore(db *sql.DB) *store {
	return &store{db: db}
}

// SaveAssessment implements service.Repository.
func (s *store) SaveAssessment(ctx context.Context, r contract.Record, a *service.Assessment) error {
	if a == nil {
		return data.SaveAssessment(ctx, s.db, r, nil)
	}
	return data.SaveAssessment(ctx, s.db, r, &data.Assessment{
		ID:             a.ID,
		ContractNumber: a.ContractNumber,
		RiskLevel:      a.RiskLevel,
		RiskScore:      a.RiskScore,
		AnomalyScore:   a.AnomalyScore,
		Confidence:     a.Confidence,
		IsAnomaly:      a.IsAnomaly,
		Recommendation: a.Recommendation,
		Mode:           a.Mode,
		ModelName:      a.ModelName,
		Signals:        a.Signals,
		AssessedAt:     a.AssessedAt,
	})
}
