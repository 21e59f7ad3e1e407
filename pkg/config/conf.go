package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/govai-platform/govai/pkg/feature"
	"github.com/govai-platform/govai/pkg/scoring"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "govai"
	configFileName = "config.yaml"
	modelsDirName  = "models"
	dataFileName   = "data.db"
	dirMode        = 0700
	fileMode       = 0600
)

// Config represents app config object.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Scoring ScoringConfig `yaml:"scoring"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// ModelsConfig locates trained model configurations.
type ModelsConfig struct {
	Dir string `yaml:"dir"`
}

// ScoringConfig holds heuristic rules and feature priors.
type ScoringConfig struct {
	Rules            scoring.Rules  `yaml:"rules"`
	Priors           feature.Priors `yaml:"priors"`
	BatchConcurrency int            `yaml:"batchConcurrency"`
}

// StoreConfig addresses the assessment store: a sqlite file path or a
// postgres:// URL.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig sets the default log level and format: cli, text or json.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default config rooted at home.
func Default(home string) *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Models: ModelsConfig{Dir: filepath.Join(home, modelsDirName)},
		Scoring: ScoringConfig{
			Rules:            scoring.DefaultRules(),
			BatchConcurrency: 4,
		},
		Store: StoreConfig{DSN: filepath.Join(home, dataFileName)},
		Log:   LogConfig{Level: "info", Format: "cli"},
	}
}

// Validate checks the config for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.Errorf("server.maxBodyBytes must be positive: %d", c.Server.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Models.Dir) == "" {
		return errors.New("models.dir required")
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("store.dsn required")
	}
	if c.Scoring.BatchConcurrency < 0 {
		return errors.Errorf("scoring.batchConcurrency must not be negative: %d", c.Scoring.BatchConcurrency)
	}
	if err := c.Scoring.Rules.Validate(); err != nil {
		return errors.Wrap(err, "invalid scoring.rules")
	}
	for name, table := range map[string]map[string]float64{
		"supplierRisk":            c.Scoring.Priors.SupplierRisk,
		"supplierFrequencyRank":   c.Scoring.Priors.SupplierFrequencyRank,
		"departmentFrequencyRank": c.Scoring.Priors.DepartmentFrequencyRank,
	} {
		for k, v := range table {
			if v < 0 || v > 1 {
				return errors.Errorf("scoring.priors.%s[%s] must be within [0,1]: %v", name, k, v)
			}
		}
	}
	return nil
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	return SaveFile(filepath.Join(dirPath, configFileName), c)
}

// SaveFile writes c to path.
func SaveFile(path string, c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	return Load(path, dirPath)
}

// Load reads the config at path. Missing values keep the defaults for home.
func Load(path, home string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c := Default(home)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "dir", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
