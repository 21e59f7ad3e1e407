// Package train builds fraud model configurations from labelled contracts.
// It fits a scaler and three model kinds, evaluates them on a holdout and
// writes the optimized, production and legacy configuration generations the
// registry loads at startup.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/model"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/govai-platform/govai/pkg/scoring"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSamples      = 2000
	DefaultSeed         = 42
	DefaultTestFraction = 0.2

	// EnsembleName is the model name used for the soft-vote ensemble.
	EnsembleName = "ensemble"

	scalerFile   = "scaler.json"
	featuresFile = "feature_names.json"
)

// Options configures a training run.
type Options struct {
	// OutputDir is the models directory the registry loads from.
	OutputDir string
	// Samples is the number of synthetic contracts generated when Input is empty.
	Samples int
	// Input replaces synthetic data when set.
	Input        []Sample
	Seed         uint64
	TestFraction float64
	// Format selects the descriptor encoding: json or yaml.
	Format string

	Rules  scoring.Rules
	Priors feature.Priors

	Forest    ForestTrainer
	Isolation IsolationTrainer
	Network   NetworkTrainer
}

// DefaultOptions returns the options used by the train command.
func DefaultOptions(dir string) Options {
	return Options{
		OutputDir:    dir,
		Samples:      DefaultSamples,
		Seed:         DefaultSeed,
		TestFraction: DefaultTestFraction,
		Format:       "json",
		Rules:        scoring.DefaultRules(),
		Forest:       ForestTrainer{Trees: 100, MaxDepth: 10, MinLeaf: 1},
		Isolation:    IsolationTrainer{Trees: 100, MaxSamples: 256, Contamination: DefaultFraudRate},
		Network:      NetworkTrainer{Hidden: []int{32, 16}, Epochs: 40, LearningRate: 0.01},
	}
}

// Report summarizes a training run.
type Report struct {
	Dir         string                          `json:"dir" yaml:"dir"`
	Samples     int                             `json:"samples" yaml:"samples"`
	TrainRows   int                             `json:"train_rows" yaml:"trainRows"`
	TestRows    int                             `json:"test_rows" yaml:"testRows"`
	Features    int                             `json:"features" yaml:"features"`
	Models      map[string]registry.Performance `json:"models" yaml:"models"`
	BestModel   string                          `json:"best_model" yaml:"bestModel"`
	Optimized   string                          `json:"optimized_model" yaml:"optimizedModel"`
	Improvement string                          `json:"improvement_over_original" yaml:"improvementOverOriginal"`
	Files       []string                        `json:"files" yaml:"files"`
	Duration    time.Duration                   `json:"duration" yaml:"duration"`
}

type fitted struct {
	name  string
	model model.Model
	perf  registry.Performance
}

// Run executes the training pipeline and writes all configuration files
// under opts.OutputDir.
func Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	if opts.OutputDir == "" {
		return nil, errors.New("output dir required")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scoring rules")
	}
	ext, err := descriptorExt(opts.Format)
	if err != nil {
		return nil, err
	}

	samples := opts.Input
	if len(samples) == 0 {
		samples = Generate(opts.Samples, opts.Seed)
	}
	b := feature.NewBuilder(feature.DefaultSchema(),
		feature.WithIndicators(opts.Rules.Indicators()),
		feature.WithPriors(opts.Priors))

	raw, err := NewDataset(samples, b, opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, err
	}
	d, scaler, err := raw.Scale()
	if err != nil {
		return nil, err
	}
	slog.Info("training dataset ready",
		"samples", len(samples),
		"train", len(d.TrainFeatures),
		"test", len(d.TestFeatures),
		"features", len(d.FeatureNames))

	trainers := []Trainer{opts.Forest, opts.Isolation, opts.Network}
	results := make([]fitted, len(trainers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range trainers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := t.Train(d)
			if err != nil {
				return errors.Wrapf(err, "failed to train %s", t.Name())
			}
			perf, err := Evaluate(m, d)
			if err != nil {
				return errors.Wrapf(err, "failed to evaluate %s", t.Name())
			}
			results[i] = fitted{name: t.Name(), model: m, perf: perf}
			slog.Info("model trained", "model", t.Name(), "f1", perf.F1Score, "accuracy", perf.Accuracy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := results[0]
	for _, r := range results[1:] {
		if better(r.perf, best.perf) {
			best = r
		}
	}

	ens := &model.Ensemble{Members: []model.Member{
		{Weight: 0.5, Model: results[0].model},
		{Weight: 0.5, Model: results[2].model},
	}}
	ensPerf, err := Evaluate(ens, d)
	if err != nil {
		return nil, errors.Wrap(err, "failed to evaluate ensemble")
	}
	optimized := best
	if !better(best.perf, ensPerf) {
		optimized = fitted{name: EnsembleName, model: ens, perf: ensPerf}
	}

	rep := &Report{
		Dir:         opts.OutputDir,
		Samples:     len(samples),
		TrainRows:   len(d.TrainFeatures),
		TestRows:    len(d.TestFeatures),
		Features:    len(d.FeatureNames),
		Models:      map[string]registry.Performance{EnsembleName: ensPerf},
		BestModel:   best.name,
		Optimized:   optimized.name,
		Improvement: improvement(optimized.perf, best.perf),
	}
	for _, r := range results {
		rep.Models[r.name] = r.perf
	}

	w := &writer{dir: opts.OutputDir}
	w.production(results, best.name, scaler, d.FeatureNames, ext)
	w.optimized(optimized, scaler, d.FeatureNames, rep.Improvement, ext)
	w.legacy(results[1].model)
	if w.err != nil {
		return nil, w.err
	}
	rep.Files = w.files
	rep.Duration = time.Since(start)

	slog.Info("training complete",
		"best", rep.BestModel,
		"optimized", rep.Optimized,
		"improvement", rep.Improvement,
		"dir", rep.Dir)
	return rep, nil
}

// better ranks by F1 then accuracy.
func better(a, b registry.Performance) bool {
	if a.F1Score != b.F1Score {
		return a.F1Score > b.F1Score
	}
	return a.Accuracy > b.Accuracy
}

func improvement(opt, base registry.Performance) string {
	if base.F1Score == 0 {
		return fmt.Sprintf("%+.3f f1", opt.F1Score-base.F1Score)
	}
	return fmt.Sprintf("%+.1f%%", (opt.F1Score-base.F1Score)/base.F1Score*100)
}

func descriptorExt(format string) (string, error) {
	switch format {
	case "", "json":
		return ".json", nil
	case "yaml":
		return ".yaml", nil
	default:
		return "", errors.Errorf("unsupported descriptor format: %s", format)
	}
}

// writer records the first error and skips the remaining writes.
type writer struct {
	dir   string
	files []string
	err   error
}

func (w *writer) path(rel string) string {
	return filepath.Join(w.dir, filepath.FromSlash(rel))
}

func (w *writer) do(rel string, fn func(path string) error) {
	if w.err != nil {
		return
	}
	if err := fn(w.path(rel)); err != nil {
		w.err = err
		return
	}
	w.files = append(w.files, rel)
}

func (w *writer) model(rel string, m model.Model) {
	w.do(rel, func(p string) error { return model.SaveFile(p, m) })
}

func (w *writer) scaler(rel string, s *model.Scaler) {
	w.do(rel, func(p string) error { return model.SaveScaler(p, s) })
}

func (w *writer) descriptor(rel string, v any) {
	w.do(rel, func(p string) error { return registry.WriteDescriptor(p, v) })
}

func (w *writer) production(results []fitted, best string, s *model.Scaler, features []string, ext string) {
	d := registry.ProductionDescriptor{
		BestModel:    best,
		ModelFiles:   map[string]string{},
		ScalerFile:   scalerFile,
		FeaturesFile: featuresFile,
		Performance:  map[string]*registry.Performance{},
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range results {
		file := r.name + "_model.json"
		if r.name == string(model.TypeIsolationForest) {
			// isolation_forest_model.json is the legacy generation's file name
			file = "isolation_forest_prod.json"
		}
		w.model(file, r.model)
		d.ModelFiles[r.name] = file
		perf := r.perf
		d.Performance[r.name] = &perf
	}
	w.scaler(scalerFile, s)
	w.descriptor(featuresFile, features)
	w.descriptor("latest_production_config"+ext, d)
}

func (w *writer) optimized(f fitted, s *model.Scaler, features []string, improvement, ext string) {
	file := "final/" + f.name + "_optimized.json"
	w.model(file, f.model)
	w.scaler("final/"+scalerFile, s)
	perf := f.perf
	w.descriptor("final/latest_optimized_config"+ext, registry.OptimizedDescriptor{
		ModelName:   f.name,
		ModelFile:   f.name + "_optimized.json",
		ScalerFile:  scalerFile,
		Features:    features,
		Performance: &perf,
		Improvement: improvement,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *writer) legacy(m model.Model) {
	w.model(registry.LegacyFile, m)
}
