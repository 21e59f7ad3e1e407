// Package registry resolves the fraud model configuration once at startup.
// The resulting Registry is immutable and is passed to the scorer explicitly.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/govai-platform/govai/pkg/model"
)

// Tier is the configuration generation a registry was loaded from.
type Tier string

const (
	TierOptimized  Tier = "optimized"
	TierProduction Tier = "production"
	TierLegacy     Tier = "legacy"
	TierNone       Tier = "none"
)

// File names under the models directory, in precedence order.
var (
	OptimizedFiles  = []string{"final/latest_optimized_config.json", "final/latest_optimized_config.yaml"}
	ProductionFiles = []string{"latest_production_config.json", "latest_production_config.yaml"}
	LegacyFile      = "isolation_forest_model.json"
)

// ErrConfigurationMissing is reported by Load when no tier could be loaded.
// It is not fatal; the registry is still usable in heuristic mode.
var ErrConfigurationMissing = errors.New("fraud model configuration missing")

// Performance is the evaluation summary recorded at training time.
type Performance struct {
	F1Score   float64 `json:"f1_score" yaml:"f1_score"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
	Precision float64 `json:"precision,omitempty" yaml:"precision,omitempty"`
	Recall    float64 `json:"recall,omitempty" yaml:"recall,omitempty"`
}

// Registry is a read-only snapshot of the loaded model configuration.
type Registry struct {
	tier        Tier
	name        string
	source      string
	model       model.Model
	scaler      *model.Scaler
	features    []string
	performance *Performance
}

// New returns a registry holding an already loaded configuration.
func New(tier Tier, name string, m model.Model, s *model.Scaler, features []string) *Registry {
	return &Registry{
		tier:     tier,
		name:     name,
		model:    m,
		scaler:   s,
		features: slices.Clone(features),
	}
}

// Empty returns a registry with nothing loaded.
func Empty() *Registry {
	return &Registry{tier: TierNone}
}

// CurrentModel returns the loaded model or nil.
func (r *Registry) CurrentModel() model.Model { return r.model }

// CurrentScaler returns the loaded scaler or nil.
func (r *Registry) CurrentScaler() *model.Scaler { return r.scaler }

// CurrentFeatureNames returns a copy of the feature schema; empty when none
// is loaded.
func (r *Registry) CurrentFeatureNames() []string {
	if len(r.features) == 0 {
		return []string{}
	}
	return slices.Clone(r.features)
}

// Tier returns the configuration generation that was loaded.
func (r *Registry) Tier() Tier { return r.tier }

// ModelName returns the configured model name.
func (r *Registry) ModelName() string { return r.name }

// Source returns the path of the descriptor that was loaded.
func (r *Registry) Source() string { return r.source }

// Performance returns a copy of the recorded performance, or nil.
func (r *Registry) Performance() *Performance {
	if r.performance == nil {
		return nil
	}
	p := *r.performance
	return &p
}

// Complete reports whether a model, a scaler and a non-empty schema are all
// loaded, which is what model mode requires.
func (r *Registry) Complete() bool {
	return r.model != nil && r.scaler != nil && len(r.features) > 0
}

// Info is a serializable summary of the registry.
type Info struct {
	Tier        Tier         `json:"tier" yaml:"tier"`
	ModelName   string       `json:"model_name,omitempty" yaml:"modelName,omitempty"`
	ModelType   model.Type   `json:"model_type,omitempty" yaml:"modelType,omitempty"`
	Source      string       `json:"source,omitempty" yaml:"source,omitempty"`
	Scaler      bool         `json:"scaler" yaml:"scaler"`
	Features    []string     `json:"features" yaml:"features"`
	Complete    bool         `json:"complete" yaml:"complete"`
	Performance *Performance `json:"performance,omitempty" yaml:"performance,omitempty"`
}

// Info summarizes the registry.
func (r *Registry) Info() Info {
	i := Info{
		Tier:        r.tier,
		ModelName:   r.name,
		Source:      r.source,
		Scaler:      r.scaler != nil,
		Features:    r.CurrentFeatureNames(),
		Complete:    r.Complete(),
		Performance: r.Performance(),
	}
	if r.model != nil {
		i.ModelType = r.model.Type()
	}
	return i
}

// Load resolves the configuration under dir, trying optimized, production and
// legacy in that order. A tier that fails to load is logged and skipped. When
// nothing loads, Load returns an empty registry with ErrConfigurationMissing
// and logs a single warning.
func Load(dir string) (*Registry, error) {
	loaders := []struct {
		tier  Tier
		files []string
		load  func(path string) (*Registry, error)
	}{
		{TierOptimized, OptimizedFiles, loadOptimized},
		{TierProduction, ProductionFiles, loadProduction},
		{TierLegacy, []string{LegacyFile}, loadLegacy},
	}

	for _, l := range loaders {
		path, ok := firstExisting(dir, l.files)
		if !ok {
			slog.Debug("model configuration not found", "tier", l.tier, "dir", dir)
			continue
		}
		reg, err := l.load(path)
		if err != nil {
			slog.Warn("model configuration unusable, trying next tier", "tier", l.tier, "path", path, "error", err)
			continue
		}
		reg.tier = l.tier
		reg.source = path
		slog.Info("model configuration loaded",
			"tier", reg.tier,
			"model", reg.name,
			"features", len(reg.features),
			"scaler", reg.scaler != nil)
		return reg, nil
	}

	slog.Warn("no fraud model configuration found, running in heuristic mode", "dir", dir)
	return Empty(), ErrConfigurationMissing
}

func firstExisting(dir string, names []string) (string, bool) {
	for _, n := range names {
		p := filepath.Join(dir, filepath.FromSlash(n))
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// resolve makes p relative to the directory holding the descriptor.
func resolve(descriptor, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(descriptor), filepath.FromSlash(p))
}

func loadOptimized(path string) (*Registry, error) {
	var d OptimizedDescriptor
	if err := decodeFile(path, &d); err != nil {
		return nil, err
	}
	if d.ModelFile == "" {
		return nil, errors.New("descriptor has no model_file")
	}

	m, err := model.LoadFile(resolve(path, d.ModelFile))
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		name:        d.ModelName,
		model:       m,
		features:    slices.Clone(d.Features),
		performance: d.Performance,
	}
	if d.ScalerFile != "" {
		if reg.scaler, err = model.LoadScaler(resolve(path, d.ScalerFile)); err != nil {
			return nil, err
		}
	}
	return reg, reg.checkWidths()
}

func loadProduction(path string) (*Registry, error) {
	var d ProductionDescriptor
	if err := decodeFile(path, &d); err != nil {
		return nil, err
	}
	file, ok := d.ModelFiles[d.BestModel]
	if d.BestModel == "" || !ok {
		return nil, fmt.Errorf("best model %q not listed in model_files", d.BestModel)
	}

	m, err := model.LoadFile(resolve(path, file))
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		name:        d.BestModel,
		model:       m,
		performance: d.Performance[d.BestModel],
	}
	if d.ScalerFile != "" {
		if reg.scaler, err = model.LoadScaler(resolve(path, d.ScalerFile)); err != nil {
			return nil, err
		}
	}
	if d.FeaturesFile != "" {
		if err := decodeFile(resolve(path, d.FeaturesFile), &reg.features); err != nil {
			return nil, err
		}
	}
	return reg, reg.checkWidths()
}

func loadLegacy(path string) (*Registry, error) {
	m, err := model.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Registry{name: string(m.Type()), model: m}, nil
}

// checkWidths rejects a configuration whose schema, scaler and model disagree
// on the input width.
func (r *Registry) checkWidths() error {
	n := len(r.features)
	if n == 0 {
		return nil
	}
	if r.scaler != nil && r.scaler.Width() != n {
		return fmt.Errorf("scaler width %d does not match %d features", r.scaler.Width(), n)
	}
	if w := r.model.Features(); w > 0 && w != n {
		return fmt.Errorf("model width %d does not match %d features", w, n)
	}
	return nil
}
