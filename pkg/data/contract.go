package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/pkg/errors"
)

// DefaultContractLimit caps contract listings when no limit is given.
const DefaultContractLimit = 100

const (
	contractColumns = `contract_number, description, amount, supplier, country, region,
		department, procurement_type, duration_months, bid_count, assessment_id,
		risk_level, risk_score, anomaly_score, confidence, is_anomaly,
		recommendation, mode, model_name, signals, assessed_at`

	upsertContract = `INSERT INTO contract (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_number) DO UPDATE SET
			description = excluded.description,
			amount = excluded.amount,
			supplier = excluded.supplier,
			country = excluded.country,
			region = excluded.region,
			department = excluded.department,
			procurement_type = excluded.procurement_type,
			duration_months = excluded.duration_months,
			bid_count = excluded.bid_count,
			assessment_id = excluded.assessment_id,
			risk_level = excluded.risk_level,
			risk_score = excluded.risk_score,
			anomaly_score = excluded.anomaly_score,
			confidence = excluded.confidence,
			is_anomaly = excluded.is_anomaly,
			recommendation = excluded.recommendation,
			mode = excluded.mode,
			model_name = excluded.model_name,
			signals = excluded.signals,
			assessed_at = excluded.assessed_at
	`

	selectContract = `SELECT ` + contractColumns + ` FROM contract WHERE contract_number = ?`

	selectContracts = `SELECT ` + contractColumns + ` FROM contract
		ORDER BY amount DESC, contract_number ASC LIMIT ?`

	selectContractsByLevel = `SELECT ` + contractColumns + ` FROM contract
		WHERE risk_level = ? ORDER BY amount DESC, contract_number ASC LIMIT ?`

	deleteContracts = `DELETE FROM contract`
)

// ContractAssessment is a stored contract with its latest assessment.
type ContractAssessment struct {
	ContractNumber  string     `json:"contract_number" yaml:"contractNumber"`
	Description     string     `json:"description" yaml:"description"`
	Amount          float64    `json:"amount" yaml:"amount"`
	Supplier        string     `json:"supplier" yaml:"supplier"`
	Country         string     `json:"country" yaml:"country"`
	Region          string     `json:"region,omitempty" yaml:"region,omitempty"`
	Department      string     `json:"department,omitempty" yaml:"department,omitempty"`
	ProcurementType string     `json:"procurement_type,omitempty" yaml:"procurementType,omitempty"`
	DurationMonths  *float64   `json:"duration,omitempty" yaml:"duration,omitempty"`
	BidCount        *int       `json:"bid_count,omitempty" yaml:"bidCount,omitempty"`
	AssessmentID    string     `json:"assessment_id" yaml:"assessmentId"`
	RiskLevel       risk.Level `json:"risk_level" yaml:"riskLevel"`
	RiskScore       float64    `json:"risk_score" yaml:"riskScore"`
	AnomalyScore    float64    `json:"anomaly_score" yaml:"anomalyScore"`
	Confidence      float64    `json:"confidence" yaml:"confidence"`
	IsAnomaly       bool       `json:"is_anomaly" yaml:"isAnomaly"`
	Recommendation  string     `json:"recommendation" yaml:"recommendation"`
	Mode            string     `json:"mode" yaml:"mode"`
	ModelName       string     `json:"model_name,omitempty" yaml:"modelName,omitempty"`
	Signals         []string   `json:"signals" yaml:"signals"`
	AssessedAt      time.Time  `json:"assessed_at" yaml:"assessedAt"`
}

// Assessment is the scoring outcome written alongside a contract.
type Assessment struct {
	ID             string
	ContractNumber string
	RiskLevel      risk.Level
	RiskScore      float64
	AnomalyScore   float64
	Confidence     float64
	IsAnomaly      bool
	Recommendation string
	Mode           string
	ModelName      string
	Signals        []string
	AssessedAt     time.Time
}

// SaveAssessment upserts the contract and its assessment. The latest write
// for a contract number wins.
func SaveAssessment(ctx context.Context, db *sql.DB, r contract.Record, a *Assessment) error {
	if db == nil {
		return errDBNotInitialized
	}
	if a == nil {
		return errors.New("nil assessment")
	}
	if a.ContractNumber == "" {
		return errors.New("contract number is required")
	}

	signals, err := json.Marshal(nonNil(a.Signals))
	if err != nil {
		return errors.Wrap(err, "failed to encode signals")
	}

	var (
		duration sql.NullFloat64
		bids     sql.NullInt64
	)
	if r.DurationMonths != nil {
		duration = sql.NullFloat64{Float64: *r.DurationMonths, Valid: true}
	}
	if r.BidCount != nil {
		bids = sql.NullInt64{Int64: int64(*r.BidCount), Valid: true}
	}

	if _, err := db.ExecContext(ctx, bind(db, upsertContract),
		a.ContractNumber, r.Description, r.Amount, r.Supplier, r.Country, r.Region,
		r.Department, r.ProcurementType, duration, bids, a.ID,
		string(a.RiskLevel), a.RiskScore, a.AnomalyScore, a.Confidence, boolInt(a.IsAnomaly),
		a.Recommendation, a.Mode, a.ModelName, string(signals),
		a.AssessedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return errors.Wrapf(err, "failed to save assessment for: %s", a.ContractNumber)
	}
	return nil
}

// GetAssessment returns the stored assessment for number or ErrNotFound.
func GetAssessment(ctx context.Context, db *sql.DB, number string) (*ContractAssessment, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	row := db.QueryRowContext(ctx, bind(db, selectContract), number)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get contract: %s", number)
	}
	return c, nil
}

// GetContracts lists stored contracts by amount, largest first. An empty level
// lists all levels. A limit <= 0 uses DefaultContractLimit.
func GetContracts(ctx context.Context, db *sql.DB, level risk.Level, limit int) ([]*ContractAssessment, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = DefaultContractLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if level == "" {
		rows, err = db.QueryContext(ctx, bind(db, selectContracts), limit)
	} else {
		rows, err = db.QueryContext(ctx, bind(db, selectContractsByLevel), string(level), limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query contracts")
	}
	defer rows.Close()

	list := make([]*ContractAssessment, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan contract")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate contracts")
	}
	return list, nil
}

// DeleteAll removes every stored contract and returns the number removed.
func DeleteAll(ctx context.Context, db *sql.DB) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	res, err := db.ExecContext(ctx, deleteContracts)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete contracts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted contracts")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(s scanner) (*ContractAssessment, error) {
	var (
		c          ContractAssessment
		level      string
		duration   sql.NullFloat64
		bids       sql.NullInt64
		isAnomaly  int64
		signals    string
		assessedAt string
	)
	if err := s.Scan(
		&c.ContractNumber, &c.Description, &c.Amount, &c.Supplier, &c.Country, &c.Region,
		&c.Department, &c.ProcurementType, &duration, &bids, &c.AssessmentID,
		&level, &c.RiskScore, &c.AnomalyScore, &c.Confidence, &isAnomaly,
		&c.Recommendation, &c.Mode, &c.ModelName, &signals, &assessedAt,
	); err != nil {
		return nil, err
	}

	c.RiskLevel = risk.Level(level)
	c.IsAnomaly = isAnomaly != 0
	if duration.Valid {
		c.DurationMonths = &duration.Float64
	}
	if bids.Valid {
		b := int(bids.Int64)
		c.BidCount = &b
	}
	if err := json.Unmarshal([]byte(signals), &c.Signals); err != nil {
		return nil, errors.Wrap(err, "failed to decode signals")
	}
	c.Signals = nonNil(c.Signals)

	t, err := time.Parse(time.RFC3339Nano, assessedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid assessed_at: %s", assessedAt)
	}
	c.AssessedAt = t
	return &c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
