// Package cli implements progressctl, the operator command line for the
// progression engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/babysteps/progression/internal/app"
	"github.com/babysteps/progression/internal/infra"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "progressctl",
	Short: "Operate the BabySteps progression engine",
	Long: `progressctl runs schema migrations, loads the starter catalog, runs the
scheduled jobs on demand and verifies user ledgers.

Configuration is read from the same environment variables as the services.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := cfg.Calendar(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withRuntime connects to the database, runs fn and closes the connections.
func withRuntime(ctx context.Context, fn func(rt *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
