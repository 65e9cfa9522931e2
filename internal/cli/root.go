// Package cli implements the stardis operator CLI.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/stardis/internal/config"
	"github.com/me/stardis/internal/logging"
	"github.com/me/stardis/internal/store"
)

var (
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the stardis CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultCLIConfig()

	root := &cobra.Command{
		Use:   "stardis",
		Short: "stardis — distributed model-computation dispatch",
		Long:  "stardis serializes compute tasks, launches them on local, slurm or torque backends, and merges the synthetic results back.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", defaults.DBPath, "Path to the job ledger database")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", defaults.LogFormat, "Log format (text, json)")

	root.AddCommand(
		newDispatchCmd(),
		newJobsCmd(),
		newStatusCmd(),
		newServeCmd(),
		newWorkerCheckCmd(),
	)

	return root
}

// openStore opens the job ledger at the --db path, creating the parent
// directory on first use.
func openStore() (*store.SQLiteStore, error) {
	if flagDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(flagDB), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return store.NewSQLiteStore(flagDB, logger)
}
