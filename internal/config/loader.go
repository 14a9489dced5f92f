package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "socrates.yaml"
	// UserConfigDir is the user-level config directory, relative to home.
	UserConfigDir = ".config/socrates"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Environment variables read after the files.
const (
	EnvDataDir     = "SOCRATES_DATA_DIR"
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvModel       = "OPENAI_MODEL"
	EnvRulesDir    = "SOCRATES_RULES_DIR"
	EnvMetricsAddr = "SOCRATES_METRICS_ADDR"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger

	homeDir func() (string, error)
	workDir func() (string, error)
	getenv  func(string) string
}

// NewLoader creates a loader reading the real home, working directory
// and environment.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
		getenv:  os.Getenv,
	}
}

// Load applies, in order:
//  1. defaults
//  2. user config (~/.config/socrates/config.yaml)
//  3. project config (socrates.yaml in the working or a parent directory)
//  4. environment variables
//
// A file that exists but does not parse is an error; a missing file is
// skipped.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	if home, err := l.homeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".socrates")
	}

	if path := l.UserConfigPath(); path != "" {
		switch err := cfg.mergeFile(path); {
		case err == nil:
			l.logger.Debug("loaded user config", slog.String("path", path))
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: user config: %w", err)
		}
	}

	if path := l.findProjectConfig(); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("config: project config: %w", err)
		}
		l.logger.Debug("loaded project config", slog.String("path", path))
	} else {
		l.logger.Debug("no project config found")
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := l.getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := l.getenv(EnvRulesDir); v != "" {
		cfg.RulesDir = v
	}
	if v := l.getenv(EnvModel); v != "" {
		cfg.Classifier.Model = v
	}
	if v := l.getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}
	cfg.Classifier.APIKey = l.getenv(EnvAPIKey)
}

// InitUserConfig writes the default config to the user config path.
// An existing file is left alone unless force is set.
func (l *Loader) InitUserConfig(force bool) (string, error) {
	path := l.UserConfigPath()
	if path == "" {
		return "", errors.New("config: cannot determine home directory")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("config: %s already exists (use --force to overwrite)", path)
		}
	}
	cfg := DefaultConfig()
	if home, err := l.homeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".socrates")
	}
	if err := cfg.SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("wrote default config", slog.String("path", path))
	return path, nil
}

// UserConfigPath returns the user config file path, or "" when the home
// directory is unknown.
func (l *Loader) UserConfigPath() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for socrates.yaml in the working directory
// and its parents.
func (l *Loader) findProjectConfig() string {
	dir, err := l.workDir()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
