// Package service orchestrates contract assessment: featurize, score,
// classify and persist.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/govai-platform/govai/pkg/scoring"
	"golang.org/x/sync/errgroup"
)

// AutoIDPrefix prefixes identifiers assigned to records submitted without one.
const AutoIDPrefix = "AUTO-"

// DefaultConcurrency bounds AssessBatch when no limit is given.
const DefaultConcurrency = 4

// Assessment is the outcome of scoring one contract.
type Assessment struct {
	ID             string     `json:"id" yaml:"id"`
	ContractNumber string     `json:"contract_number" yaml:"contractNumber"`
	RiskLevel      risk.Level `json:"risk_level" yaml:"riskLevel"`
	RiskScore      float64    `json:"risk_score" yaml:"riskScore"`
	AnomalyScore   float64    `json:"anomaly_score" yaml:"anomalyScore"`
	Confidence     float64    `json:"confidence" yaml:"confidence"`
	IsAnomaly      bool       `json:"is_anomaly" yaml:"isAnomaly"`
	Recommendation string     `json:"recommendation" yaml:"recommendation"`
	Mode           string     `json:"mode" yaml:"mode"`
	ModelName      string     `json:"model_name,omitempty" yaml:"modelName,omitempty"`
	Signals        []string   `json:"signals" yaml:"signals"`
	AssessedAt     time.Time  `json:"assessed_at" yaml:"assessedAt"`
	Persisted      bool       `json:"persisted" yaml:"persisted"`
}

// Repository stores assessments keyed by contract number. Saving the same
// contract twice replaces the earlier row.
type Repository interface {
	SaveAssessment(ctx context.Context, r contract.Record, a *Assessment) error
}

// Service assesses contracts. It holds no mutable state and is safe for
// concurrent use.
type Service struct {
	scorer   *scoring.Scorer
	builder  *feature.Builder
	repo     Repository
	observer Observer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRepository persists every assessment to r.
func WithRepository(r Repository) Option {
	return func(s *Service) { s.repo = r }
}

// WithObserver reports stage transitions to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithPriors sets supplier and department priors for featurization.
func WithPriors(p feature.Priors) Option {
	return func(s *Service) {
		s.builder = feature.NewBuilder(s.scorer.Schema(),
			feature.WithIndicators(s.scorer.Indicators()),
			feature.WithPriors(p))
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a service scoring with scorer. The feature schema follows the
// scorer.
func New(scorer *scoring.Scorer, opts ...Option) *Service {
	s := &Service{
		scorer:   scorer,
		builder:  feature.NewBuilder(scorer.Schema(), feature.WithIndicators(scorer.Indicators())),
		observer: NoOpObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the scorer mode.
func (s *Service) Mode() scoring.Mode { return s.scorer.Mode() }

// Assess runs one record through the pipeline. Validation and scoring
// failures return a *StageError and no assessment. Persistence failures are
// reported to the observer and leave Persisted false.
func (s *Service) Assess(ctx context.Context, r contract.Record) (a *Assessment, err error) {
	start := s.now()
	stage := StageReceived

	defer func() {
		if p := recover(); p != nil {
			a, err = nil, fail(stage, fmt.Errorf("panic: %v", p))
		}
		if err != nil {
			s.emit(ctx, Event{
				Stage:          StageFailed,
				ContractNumber: r.ContractNumber,
				Elapsed:        s.now().Sub(start),
				FailedStage:    stage,
				Err:            err,
			})
		}
	}()

	if r.ContractNumber == "" {
		r.ContractNumber = AutoIDPrefix + uuid.NewString()
	}
	s.emit(ctx, Event{Stage: StageReceived, ContractNumber: r.ContractNumber})

	if err := r.Validate(); err != nil {
		return nil, fail(stage, err)
	}

	stage = StageFeaturized
	vec, err := s.builder.Build(r)
	if err != nil {
		return nil, fail(stage, err)
	}
	s.emit(ctx, Event{Stage: stage, ContractNumber: r.ContractNumber, Elapsed: s.now().Sub(start)})

	stage = StageScored
	res, err := s.scorer.Score(r, vec)
	if err != nil {
		return nil, fail(stage, err)
	}
	s.emit(ctx, Event{Stage: stage, ContractNumber: r.ContractNumber, Elapsed: s.now().Sub(start)})

	stage = StageClassified
	level, rec := risk.Classify(res.Probability)
	a = &Assessment{
		ID:             uuid.NewString(),
		ContractNumber: r.ContractNumber,
		RiskLevel:      level,
		RiskScore:      round3(res.Probability),
		AnomalyScore:   round3(res.AnomalyScore),
		Confidence:     round3(res.Confidence),
		IsAnomaly:      res.IsAnomaly,
		Recommendation: rec,
		Mode:           string(res.Mode),
		ModelName:      s.scorer.ModelName(),
		Signals:        res.Signals,
		AssessedAt:     s.now().UTC(),
	}
	s.emit(ctx, Event{Stage: stage, ContractNumber: r.ContractNumber, Elapsed: s.now().Sub(start), Assessment: a})

	stage = StagePersisted
	if s.repo != nil {
		if perr := s.repo.SaveAssessment(ctx, r, a); perr != nil {
			s.emit(ctx, Event{
				Stage:          stage,
				ContractNumber: r.ContractNumber,
				Elapsed:        s.now().Sub(start),
				Assessment:     a,
				Err:            fmt.Errorf("%w: %w", ErrPersistence, perr),
			})
		} else {
			a.Persisted = true
			s.emit(ctx, Event{Stage: stage, ContractNumber: r.ContractNumber, Elapsed: s.now().Sub(start), Assessment: a})
		}
	}

	stage = StageResponded
	s.emit(ctx, Event{Stage: stage, ContractNumber: r.ContractNumber, Elapsed: s.now().Sub(start), Assessment: a})
	return a, nil
}

// BatchResult is the outcome for one record of a batch.
type BatchResult struct {
	Index      int         `json:"index" yaml:"index"`
	Assessment *Assessment `json:"assessment,omitempty" yaml:"assessment,omitempty"`
	Err        error       `json:"-" yaml:"-"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// AssessBatch assesses records with at most concurrency in flight. Results
// are in input order; per-record failures are carried in the results. The
// returned error is only set when ctx is done before all records start.
func (s *Service) AssessBatch(ctx context.Context, records []contract.Record, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]BatchResult, len(records))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return results, err
		}
		g.Go(func() error {
			a, err := s.Assess(ctx, r)
			results[i] = BatchResult{Index: i, Assessment: a, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch assessment: %w", err)
	}
	return results, nil
}

func (s *Service) emit(ctx context.Context, e Event) {
	s.observer.OnEvent(ctx, e)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
