package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/storage"
)

// Version is set via ldflags during build.
var Version = "dev"

// Global flags, bound on the root command.
var (
	configPath string
	dbPath     string
	verbose    bool
)

// ExitError carries a process exit code. Commands return it when the run
// itself completed but did not converge; the summary is already printed.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parity",
		Short: "Visual parity and design review harness",
		Long: `parity captures a web UI across routes, states and viewports, judges the
captures with DOM heuristics or a vision model, and iterates until the UI
converges on its design targets.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Harness config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", storage.DefaultConfig().Path, `Run history database ("" disables history)`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(parityCmd())
	rootCmd.AddCommand(historyCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			if exitErr.Message != "" {
				fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the harness config named by --config.
func loadConfig() (config.HarnessConfig, error) {
	return config.Load(configPath)
}

// openHistory opens the run history store named by --db. An empty path
// disables history.
func openHistory(ctx context.Context) (storage.History, error) {
	if dbPath == "" {
		return storage.Nop{}, nil
	}
	history, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return history, nil
}

func closeHistory(history storage.History) {
	if err := history.Close(); err != nil {
		slog.Warn("failed to close run history", "error", err)
	}
}
