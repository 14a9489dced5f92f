package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Nireus79/Socrates2-sub000/internal/config"
	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
	sserver "github.com/Nireus79/Socrates2-sub000/internal/server"
	"github.com/Nireus79/Socrates2-sub000/internal/updater"
	"github.com/spf13/cobra"
)

func rulesCmd(newLogger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [dir]",
		Short: "Load and validate a rules directory (default: the configured one, else the built-in tables)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else if cfg, err := config.NewLoader(newLogger()).Load(); err == nil {
				dir = cfg.RulesDir
			}
			t, err := rules.Load(dir)
			if err != nil {
				return err
			}
			source := dir
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d categories, %d technologies, %d contradiction concepts, %d bias patterns)\n",
				source, len(t.Adequacy.Categories), len(t.Technology.Technologies),
				len(t.Contradictions.Concepts), len(t.Bias.Patterns))
			if missing := missingCategories(t); len(missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "note: no checklist for %v; these score on spec count only\n", missing)
			}
			return nil
		},
	})
	return cmd
}

func missingCategories(t *rules.Tables) []model.Category {
	var out []model.Category
	for _, c := range model.Categories {
		if _, ok := t.Adequacy.Categories[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func configCmd(newLogger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to ~/.config/socrates/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(newLogger()).InitUserConfig(force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	cmd.AddCommand(initCmd, &cobra.Command{
		Use:   "check",
		Short: "Load the layered config and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(newLogger()).Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "data dir: %s\nclassifier active: %v\n", cfg.DataDir, cfg.ClassifierActive())
			return nil
		},
	})
	return cmd
}

func updateCmd(newLogger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.ErrOrStderr()
			fmt.Fprintln(out, "Checking for updates...")
			res, err := updater.New(newLogger()).Apply(cmd.Context(), sserver.Version)
			switch {
			case errors.Is(err, updater.ErrUpToDate):
				fmt.Fprintf(out, "Already at the latest version (v%s)\n", res.CurrentVersion)
				return nil
			case err != nil:
				if res != nil && res.ReleaseURL != "" {
					fmt.Fprintf(out, "You can download manually from:\n  %s\n", res.ReleaseURL)
				}
				return fmt.Errorf("update failed: %w", err)
			}
			fmt.Fprintf(out, "Updated v%s -> v%s. Restart socrates to use the new version.\n", res.CurrentVersion, res.LatestVersion)
			return nil
		},
	}
}
