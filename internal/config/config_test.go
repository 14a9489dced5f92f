package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	"github.com/google/go-cmp/cmp"
)

// testLoader returns a loader rooted at a fake home and working
// directory with the given environment.
func testLoader(t *testing.T, home, work string, env map[string]string) *Loader {
	t.Helper()
	l := NewLoader(nil)
	l.homeDir = func() (string, error) { return home, nil }
	l.workDir = func() (string, error) { return work, nil }
	l.getenv = func(k string) string { return env[k] }
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// --- DefaultConfig ---

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Conflicts.HoursPerWeek != 40 {
		t.Errorf("HoursPerWeek = %v, want 40", cfg.Conflicts.HoursPerWeek)
	}
	th := cfg.Thresholds()
	if th[model.PhaseAnalysis] != 60 || th[model.PhaseDesign] != 100 || th[model.PhaseImplementation] != 100 {
		t.Errorf("thresholds = %v, want 60/100/100", th)
	}
	if cfg.Weights() != nil {
		t.Errorf("weights = %v, want nil (all 1)", cfg.Weights())
	}
	if cfg.ClassifierActive() {
		t.Error("classifier must be inactive without an API key")
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	floor := 1.5
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "DataDir"},
		{"threshold above 100", func(c *Config) { c.Gate.Thresholds["design"] = 120 }, "Thresholds"},
		{"unknown phase", func(c *Config) { c.Gate.Thresholds["review"] = 50 }, "gate.thresholds"},
		{"discovery gate", func(c *Config) { c.Gate.Thresholds["discovery"] = 10 }, "first phase"},
		{"unknown category weight", func(c *Config) { c.Maturity.Weights = map[string]float64{"vibes": 2} }, "maturity.weights"},
		{"negative weight", func(c *Config) { c.Maturity.Weights = map[string]float64{"goals": -1} }, "Weights"},
		{"floor out of range", func(c *Config) { c.Maturity.ConfidenceFloor = &floor }, "ConfidenceFloor"},
		{"zero hours", func(c *Config) { c.Conflicts.HoursPerWeek = 0 }, "HoursPerWeek"},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }, "Addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

// --- Loader ---

func TestLoad_DefaultsOnly(t *testing.T) {
	home := t.TempDir()
	l := testLoader(t, home, t.TempDir(), nil)

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, ".socrates"); cfg.DataDir != want {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, want)
	}
}

func TestLoad_Layering(t *testing.T) {
	home := t.TempDir()
	root := t.TempDir()
	work := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
data_dir: /from/user
gate:
  thresholds:
    analysis: 50
classifier:
  model: user-model
  timeout: 5s
  budget: 20s
`)
	writeFile(t, filepath.Join(root, ProjectConfigFile), `
gate:
  thresholds:
    design: 90
maturity:
  weights:
    goals: 2
conflicts:
  hours_per_week: 30
`)

	l := testLoader(t, home, work, map[string]string{
		EnvDataDir: "/from/env",
		EnvAPIKey:  "sk-test",
		EnvModel:   "env-model",
	})
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/from/env" {
		t.Errorf("DataDir = %s, env should win", cfg.DataDir)
	}
	want := map[string]float64{"analysis": 50, "design": 90, "implementation": 100}
	if diff := cmp.Diff(want, cfg.Gate.Thresholds); diff != "" {
		t.Errorf("thresholds (-want +got):\n%s", diff)
	}
	if cfg.Classifier.Model != "env-model" {
		t.Errorf("Model = %s, want env-model", cfg.Classifier.Model)
	}
	if cfg.Classifier.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s from the user file", cfg.Classifier.Timeout)
	}
	if got := cfg.ConflictSettings().ClassifierBudget; got != 20*time.Second {
		t.Errorf("ClassifierBudget = %s, want 20s from the user file", got)
	}
	if !cfg.ClassifierActive() {
		t.Error("classifier should be active with an API key")
	}
	if got := cfg.Weights()[model.CategoryGoals]; got != 2 {
		t.Errorf("goals weight = %v, want 2", got)
	}
	if got := cfg.ConflictSettings().HoursPerWeek; got != 30 {
		t.Errorf("HoursPerWeek = %v, want 30", got)
	}
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ProjectConfigFile), "treshold: 10\n")

	_, err := testLoader(t, t.TempDir(), work, nil).Load()
	if err == nil || !strings.Contains(err.Error(), "project config") {
		t.Fatalf("err = %v, want project config parse error", err)
	}
}

func TestLoad_InvalidValueFails(t *testing.T) {
	home := t.TempDir()
	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), "conflicts:\n  hours_per_week: 500\n")

	if _, err := testLoader(t, home, t.TempDir(), nil).Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ProjectConfigFile), "")

	cfg, err := testLoader(t, t.TempDir(), work, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Conflicts.HoursPerWeek != 40 {
		t.Errorf("HoursPerWeek = %v, want default 40", cfg.Conflicts.HoursPerWeek)
	}
}

// --- InitUserConfig ---

func TestInitUserConfig(t *testing.T) {
	home := t.TempDir()
	l := testLoader(t, home, t.TempDir(), map[string]string{EnvAPIKey: "sk-secret"})

	path, err := l.InitUserConfig(false)
	if err != nil {
		t.Fatalf("InitUserConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("API key must never be written to disk")
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.DataDir != filepath.Join(home, ".socrates") {
		t.Errorf("DataDir = %s", loaded.DataDir)
	}

	if _, err := l.InitUserConfig(false); err == nil {
		t.Error("second init without force should fail")
	}
	if _, err := l.InitUserConfig(true); err != nil {
		t.Errorf("init with force: %v", err)
	}
}

// --- Domain settings ---

func TestApplyRules(t *testing.T) {
	tables, err := rules.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.ApplyRules(tables)
	if tables.Adequacy.ConfidenceFloor != 0.3 {
		t.Errorf("floor changed without an override: %v", tables.Adequacy.ConfidenceFloor)
	}

	floor := 0.6
	cfg.Maturity.ConfidenceFloor = &floor
	cfg.ApplyRules(tables)
	if tables.Adequacy.ConfidenceFloor != 0.6 {
		t.Errorf("floor = %v, want 0.6", tables.Adequacy.ConfidenceFloor)
	}
}

func TestConflictSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conflicts.ConcurrencyThreshold = 25
	cfg.Classifier.Threshold = 0.9
	got := cfg.ConflictSettings()
	if got.ConcurrencyOverride != 25 || got.ClassifierThreshold != 0.9 || got.HoursPerWeek != 40 {
		t.Errorf("settings = %+v", got)
	}
}
