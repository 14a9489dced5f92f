// Socrates: specification maturity, conflict detection and phase-gate
// engine, served over MCP.
//
// Usage:
//
//	socrates serve            # Start MCP server (stdio transport)
//	socrates rules validate   # Check a rules directory
//	socrates config init      # Write the default user config
//	socrates update           # Update to the latest version
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	sserver "github.com/Nireus79/Socrates2-sub000/internal/server"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "socrates",
		Short: "Specification maturity and quality-gate MCP server",
		Long: `Socrates scores how complete a project's specifications are, detects
conflicts between them, and gates phase transitions on both.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "socrates": {
        "command": "socrates",
        "args": ["serve"]
      }
    }
  }`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	logger := func() *slog.Logger { return newLogger(logLevel) }

	cmd.AddCommand(
		serveCmd(logger),
		rulesCmd(logger),
		configCmd(logger),
		updateCmd(logger),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "socrates v%s\n", sserver.Version)
			},
		},
	)
	return cmd
}

// newLogger writes to stderr; stdout belongs to the MCP stdio channel.
func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
