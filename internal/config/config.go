// Package config loads the socrates server configuration.
//
// Settings are layered: built-in defaults, then the user file
// (~/.config/socrates/config.yaml), then the nearest socrates.yaml
// walking up from the working directory, then environment variables.
// Each file only needs the keys it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/conflict"
	"github.com/Nireus79/Socrates2-sub000/internal/maturity"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/pipeline"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/go-playground/validator/v10"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir" validate:"required"`
	// RulesDir overrides the embedded rule tables per file. Empty means
	// the embedded defaults only.
	RulesDir   string           `yaml:"rules_dir,omitempty"`
	Gate       GateConfig       `yaml:"gate"`
	Maturity   MaturityConfig   `yaml:"maturity"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Conflicts  ConflictConfig   `yaml:"conflicts"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// GateConfig sets the required minimum per target phase.
type GateConfig struct {
	Thresholds map[string]float64 `yaml:"thresholds" validate:"dive,gte=0,lte=100"`
}

// MaturityConfig tunes scoring.
type MaturityConfig struct {
	// Weights per category for the overall score; missing categories
	// weigh 1.
	Weights map[string]float64 `yaml:"weights,omitempty" validate:"dive,gte=0"`
	// ConfidenceFloor overrides the adequacy table's floor when set.
	ConfidenceFloor *float64 `yaml:"confidence_floor,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ClassifierConfig controls the optional contradiction classifier. It is
// only used when enabled and an API key is present.
type ClassifierConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	// Budget caps the time one scan spends waiting on the classifier,
	// across all of its calls.
	Budget    time.Duration `yaml:"budget" validate:"gte=0"`
	Threshold float64       `yaml:"threshold" validate:"gte=0,lte=1"`
	CacheSize int           `yaml:"cache_size" validate:"gte=0"`
	// APIKey comes from OPENAI_API_KEY only and is never written to disk.
	APIKey string `yaml:"-"`
}

// ConflictConfig tunes the conflict families.
type ConflictConfig struct {
	HoursPerWeek float64 `yaml:"hours_per_week" validate:"gt=0,lte=168"`
	// ConcurrencyThreshold overrides the technology table when non-zero.
	ConcurrencyThreshold int `yaml:"concurrency_threshold" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	th := pipeline.DefaultThresholds()
	return &Config{
		DataDir: filepath.Join(home, ".socrates"),
		Gate: GateConfig{
			Thresholds: map[string]float64{
				string(model.PhaseAnalysis):       th[model.PhaseAnalysis],
				string(model.PhaseDesign):         th[model.PhaseDesign],
				string(model.PhaseImplementation): th[model.PhaseImplementation],
			},
		},
		Classifier: ClassifierConfig{
			Enabled:   true,
			Model:     "gpt-4o-mini",
			Timeout:   3 * time.Second,
			Budget:    10 * time.Second,
			Threshold: 0.8,
			CacheSize: 512,
		},
		Conflicts: ConflictConfig{
			HoursPerWeek: 40,
		},
	}
}

// Validate checks field ranges and that every phase and category key
// names a known one.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	for name := range c.Gate.Thresholds {
		p, err := model.ParsePhase(name)
		if err != nil {
			return fmt.Errorf("config: gate.thresholds: %w", err)
		}
		if p == model.PhaseDiscovery {
			return fmt.Errorf("config: gate.thresholds: discovery is the first phase and has no gate")
		}
	}
	for name := range c.Maturity.Weights {
		if _, err := model.ParseCategory(name); err != nil {
			return fmt.Errorf("config: maturity.weights: %w", err)
		}
	}
	return nil
}

// LoadFromFile reads path over a copy of the defaults. Strict decoding
// rejects unknown keys so a typo does not silently fall back.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes path on top of c: keys present in the file replace
// the current values, absent keys keep them.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes the configuration atomically, creating the parent
// directory if needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ─── Domain settings ─────────────────────────────────────────────────────────

// Thresholds returns the gate thresholds keyed by phase.
func (c *Config) Thresholds() pipeline.Thresholds {
	th := pipeline.DefaultThresholds()
	for name, v := range c.Gate.Thresholds {
		if p, err := model.ParsePhase(name); err == nil {
			th[p] = v
		}
	}
	return th
}

// Weights returns the category weights for the overall score.
func (c *Config) Weights() maturity.Weights {
	if len(c.Maturity.Weights) == 0 {
		return nil
	}
	w := make(maturity.Weights, len(c.Maturity.Weights))
	for name, v := range c.Maturity.Weights {
		if cat, err := model.ParseCategory(name); err == nil {
			w[cat] = v
		}
	}
	return w
}

// ConflictSettings returns the numbers the conflict families read.
func (c *Config) ConflictSettings() conflict.Settings {
	return conflict.Settings{
		HoursPerWeek:        c.Conflicts.HoursPerWeek,
		ConcurrencyOverride: c.Conflicts.ConcurrencyThreshold,
		ClassifierThreshold: c.Classifier.Threshold,
		ClassifierBudget:    c.Classifier.Budget,
	}
}

// ApplyRules writes table overrides from the config into t. It is called
// on every load and reload of the rule tables.
func (c *Config) ApplyRules(t *rules.Tables) {
	if c.Maturity.ConfidenceFloor != nil {
		t.Adequacy.ConfidenceFloor = *c.Maturity.ConfidenceFloor
	}
}

// ClassifierActive reports whether a real classifier should be built.
func (c *Config) ClassifierActive() bool {
	return c.Classifier.Enabled && c.Classifier.APIKey != ""
}
