package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/parity/internal/capture/chrome"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/progress"
	"github.com/steveyegge/parity/internal/report"
	"github.com/steveyegge/parity/internal/review"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run heuristic design-review passes over a route matrix",
		Long: `Capture every route, state and viewport in the route matrix, judge each
capture with the DOM heuristics, and repeat until a pass clears the gate or
the pass budget runs out.

Exits 0 when the final pass clears the gate, 1 otherwise.`,
		Args: cobra.NoArgs,
		RunE: runReview,
	}

	cmd.Flags().String("matrix", "route-matrix.json", "Route matrix file (JSON or YAML)")
	cmd.Flags().Int("max-passes", 3, "Maximum number of review passes")
	cmd.Flags().String("stop-on-pass", "true", "Stop after the first passing pass (true/false)")
	cmd.Flags().String("viewports", "all", `Viewports to capture: "all" or a comma list of ids`)
	cmd.Flags().Int("port", 0, "Serve port of the local app (overrides the matrix base URL)")
	cmd.Flags().StringP("out", "o", "artifacts/design-review", "Output directory")
	cmd.Flags().Int("top", 0, "Issues listed in the report (0 = config default)")
	cmd.Flags().String("notes", "", "Optional YAML file of fix notes per pass")
	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	matrixPath, _ := cmd.Flags().GetString("matrix")
	maxPasses, _ := cmd.Flags().GetInt("max-passes")
	stopOnPassRaw, _ := cmd.Flags().GetString("stop-on-pass")
	viewportSpec, _ := cmd.Flags().GetString("viewports")
	port, _ := cmd.Flags().GetInt("port")
	outDir, _ := cmd.Flags().GetString("out")
	top, _ := cmd.Flags().GetInt("top")
	notesPath, _ := cmd.Flags().GetString("notes")

	stopOnPass, err := parseBoolString(stopOnPassRaw)
	if err != nil {
		return fmt.Errorf("invalid --stop-on-pass: %w", err)
	}
	if maxPasses <= 0 {
		return fmt.Errorf("--max-passes must be positive (got %d)", maxPasses)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	matrix, err := config.LoadRouteMatrix(matrixPath)
	if err != nil {
		return err
	}
	matrix = config.WithPort(matrix, port)
	viewports, err := cfg.SelectViewports(viewportSpec)
	if err != nil {
		return err
	}
	notes, err := config.LoadFixNotes(notesPath)
	if err != nil {
		return err
	}
	if top <= 0 {
		top = cfg.Report.TopIssues
	}

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeHistory(history)

	logger := slog.Default()
	browser, err := chrome.Launch(ctx, cfg.Capture, logger)
	if err != nil {
		return err
	}
	defer func() { _ = browser.Close() }()

	pm := progress.NewManager(true)
	defer pm.Close()

	collector := iterative.NewInMemoryMetricsCollector()
	writer := report.NewWriter(outDir, top)
	runner, err := review.NewRunner(review.Options{
		Config:    cfg,
		Matrix:    matrix,
		Viewports: viewports,
		Browser:   browser,
		Writer:    writer,
		History:   history,
		Progress:  pm,
		Notes:     notes,
		Logger:    logger,
		Collector: collector,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, iterative.Config{
		Policy:        iterative.PolicyPassStop,
		MaxPasses:     maxPasses,
		StopOnPass:    stopOnPass,
		FocusSchedule: cfg.Schedule.Focus,
		ExtraFocus:    cfg.Schedule.ExtraFocus,
		Detector:      iterative.NewScoreWindowDetector(0, 0),
	})
	pm.Close()

	out := cmd.OutOrStdout()
	printConvergence(out, "Design Review", result, collector, outDir)
	printPasses(out, runner.Passes())
	fmt.Fprintf(out, "  Run: %s\n", runner.RunID())
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return &ExitError{Code: 1, Message: "design review did not clear the gate"}
	}
	return nil
}

// parseBoolString accepts the usual boolean spellings plus yes/no and on/off.
func parseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
