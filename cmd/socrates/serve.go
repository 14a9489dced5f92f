package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/classifier"
	"github.com/Nireus79/Socrates2-sub000/internal/config"
	"github.com/Nireus79/Socrates2-sub000/internal/engine"
	"github.com/Nireus79/Socrates2-sub000/internal/metrics"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	sserver "github.com/Nireus79/Socrates2-sub000/internal/server"
	"github.com/Nireus79/Socrates2-sub000/internal/store"
	"github.com/Nireus79/Socrates2-sub000/internal/updater"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func serveCmd(newLogger func() *slog.Logger) *cobra.Command {
	var (
		metricsAddr string
		noUpdate    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.NewLoader(logger).Load()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			return serve(cmd.Context(), cfg, logger, !noUpdate)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	cmd.Flags().BoolVar(&noUpdate, "no-update-check", false, "Skip the background release check")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, logger *slog.Logger, checkUpdates bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := rules.Load(cfg.RulesDir)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	cfg.ApplyRules(tables)

	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	cls, err := buildClassifier(cfg, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(st, tables, engine.Options{
		Logger:     logger,
		Classifier: cls,
		Weights:    cfg.Weights(),
		Thresholds: cfg.Thresholds(),
		Conflict:   cfg.ConflictSettings(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if cfg.RulesDir != "" {
		go func() {
			err := rules.Watch(ctx, cfg.RulesDir, logger, func(t *rules.Tables) {
				cfg.ApplyRules(t)
				eng.ReloadRules(t)
			})
			if err != nil {
				logger.Warn("rules watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if checkUpdates {
		go checkForUpdates(ctx, logger)
	}

	logger.Info("socrates ready",
		slog.String("version", sserver.Version),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("classifier", cls != nil))

	s := sserver.New(eng)
	errLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)

	done := make(chan error, 1)
	go func() { done <- server.ServeStdio(s, server.WithErrorLogger(errLog)) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}

// buildClassifier returns nil when no classifier is configured; the
// engine then runs on keyword rules alone.
func buildClassifier(cfg *config.Config, logger *slog.Logger) (classifier.Classifier, error) {
	if !cfg.ClassifierActive() {
		if cfg.Classifier.Enabled {
			logger.Info("classifier disabled: " + config.EnvAPIKey + " is not set")
		}
		return nil, nil
	}
	cls, err := classifier.NewOpenAIFromKey(cfg.Classifier.APIKey, classifier.Config{
		Model:        cfg.Classifier.Model,
		Timeout:      cfg.Classifier.Timeout,
		CacheMaxSize: cfg.Classifier.CacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating classifier: %w", err)
	}
	return cls, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// checkForUpdates logs a notice when a newer release exists. Failures are
// only logged at debug level.
func checkForUpdates(ctx context.Context, logger *slog.Logger) {
	res, err := updater.New(logger).Check(ctx, sserver.Version)
	if err != nil {
		logger.Debug("update check failed", slog.String("error", err.Error()))
		return
	}
	if res.UpdateAvailable {
		logger.Info("update available",
			slog.String("current", res.CurrentVersion),
			slog.String("latest", res.LatestVersion),
			slog.String("release", res.ReleaseURL),
			slog.String("run", "socrates update"))
	}
}
