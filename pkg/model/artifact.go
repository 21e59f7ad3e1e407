package model

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const fileMode = 0600

// Artifact is the on-disk envelope for models and scalers.
type Artifact struct {
	Type            Type              `json:"type"`
	Version         int               `json:"version"`
	RandomForest    *RandomForest     `json:"random_forest,omitempty"`
	IsolationForest *IsolationForest  `json:"isolation_forest,omitempty"`
	NeuralNetwork   *NeuralNetwork    `json:"neural_network,omitempty"`
	Ensemble        []EnsembleMember  `json:"ensemble,omitempty"`
	Scaler          *Scaler           `json:"standard_scaler,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// EnsembleMember is the serialized form of an ensemble Member.
type EnsembleMember struct {
	Weight   float64  `json:"weight"`
	Artifact Artifact `json:"artifact"`
}

// NewArtifact wraps m for serialization.
func NewArtifact(m Model) (*Artifact, error) {
	a := &Artifact{Type: m.Type(), Version: ArtifactVersion}
	switch v := m.(type) {
	case *RandomForest:
		a.RandomForest = v
	case *IsolationForest:
		a.IsolationForest = v
	case *NeuralNetwork:
		a.NeuralNetwork = v
	case *Ensemble:
		for _, mem := range v.Members {
			ma, err := NewArtifact(mem.Model)
			if err != nil {
				return nil, err
			}
			a.Ensemble = append(a.Ensemble, EnsembleMember{Weight: mem.Weight, Artifact: *ma})
		}
	default:
		return nil, errors.Errorf("unsupported model type: %T", m)
	}
	return a, nil
}

// Model returns the validated model held by the artifact.
func (a *Artifact) Model() (Model, error) {
	if a.Version > ArtifactVersion {
		return nil, errors.Errorf("artifact version %d is newer than supported version %d", a.Version, ArtifactVersion)
	}

	var (
		m   Model
		err error
	)
	switch a.Type {
	case TypeRandomForest:
		if a.RandomForest == nil {
			return nil, errors.New("random_forest artifact has no model body")
		}
		m, err = a.RandomForest, a.RandomForest.validate()
	case TypeIsolationForest:
		if a.IsolationForest == nil {
			return nil, errors.New("isolation_forest artifact has no model body")
		}
		m, err = a.IsolationForest, a.IsolationForest.validate()
	case TypeNeuralNetwork:
		if a.NeuralNetwork == nil {
			return nil, errors.New("neural_network artifact has no model body")
		}
		m, err = a.NeuralNetwork, a.NeuralNetwork.validate()
	case TypeEnsemble:
		e := &Ensemble{}
		for i, mem := range a.Ensemble {
			mm, err := mem.Artifact.Model()
			if err != nil {
				return nil, errors.Wrapf(err, "ensemble member %d", i)
			}
			e.Members = append(e.Members, Member{Weight: mem.Weight, Model: mm})
		}
		m, err = e, e.validate()
	default:
		return nil, errors.Errorf("unsupported artifact type: %q", a.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s artifact", a.Type)
	}
	return m, nil
}

// LoadFile reads a model artifact.
func LoadFile(path string) (Model, error) {
	a, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	m, err := a.Model()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load model: %s", path)
	}
	return m, nil
}

// SaveFile writes m as a model artifact, creating parent directories.
func SaveFile(path string, m Model) error {
	a, err := NewArtifact(m)
	if err != nil {
		return err
	}
	return writeArtifact(path, a)
}

// LoadScaler reads a scaler artifact.
func LoadScaler(path string) (*Scaler, error) {
	a, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	if a.Type != TypeStandardScaler || a.Scaler == nil {
		return nil, errors.Errorf("not a scaler artifact: %s", path)
	}
	if err := a.Scaler.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid scaler: %s", path)
	}
	return a.Scaler, nil
}

// SaveScaler writes s as a scaler artifact.
func SaveScaler(path string, s *Scaler) error {
	return writeArtifact(path, &Artifact{Type: TypeStandardScaler, Version: ArtifactVersion, Scaler: s})
}

func readArtifact(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact: %s", path)
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrapf(err, "failed to decode artifact: %s", path)
	}
	return &a, nil
}

func writeArtifact(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "failed to create artifact dir for: %s", path)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "failed to encode artifact")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write artifact: %s", path)
	}
	return nil
}
