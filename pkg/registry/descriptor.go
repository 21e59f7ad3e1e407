package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OptimizedDescriptor is the newest configuration generation. It names the
// model, the scaler and the feature schema directly.
type OptimizedDescriptor struct {
	ModelName   string       `json:"model_name" yaml:"model_name"`
	ModelFile   string       `json:"model_file" yaml:"model_file"`
	ScalerFile  string       `json:"scaler_file" yaml:"scaler_file"`
	Features    []string     `json:"features" yaml:"features"`
	Performance *Performance `json:"performance,omitempty" yaml:"performance,omitempty"`
	Improvement string       `json:"improvement_over_original,omitempty" yaml:"improvement_over_original,omitempty"`
	CreatedAt   string       `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// ProductionDescriptor selects the best of several named models and keeps
// the feature schema in a separate file.
type ProductionDescriptor struct {
	BestModel    string                  `json:"best_model" yaml:"best_model"`
	ModelFiles   map[string]string       `json:"model_files" yaml:"model_files"`
	ScalerFile   string                  `json:"scaler_file" yaml:"scaler_file"`
	FeaturesFile string                  `json:"features_file" yaml:"features_file"`
	Performance  map[string]*Performance `json:"performance,omitempty" yaml:"performance,omitempty"`
	CreatedAt    string                  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// decodeFile reads YAML for .yaml/.yml paths and JSON otherwise.
func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read: %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, v)
	default:
		err = json.Unmarshal(b, v)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to decode: %s", path)
	}
	return nil
}

// WriteDescriptor encodes v to path, choosing the format by extension.
func WriteDescriptor(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "failed to create dir for: %s", path)
	}
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(v)
	default:
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode descriptor")
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return errors.Wrapf(err, "failed to write: %s", path)
	}
	return nil
}
