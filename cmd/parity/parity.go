package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/parity/internal/ai"
	"github.com/steveyegge/parity/internal/capture/chrome"
	"github.com/steveyegge/parity/internal/cost"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/parity"
	"github.com/steveyegge/parity/internal/report"
)

func parityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parity",
		Short: "Run vision-judged parity iterations against a reference deployment",
		Long: `Capture the clean, aiOpen and commentsAdd views locally and from the
reference deployment, ask the vision judge whether each pair matches, and
iterate under the minimum-loop policy.

A view whose live reference cannot be captured is judged against its frozen
baseline. Every baseline must exist before the run starts.

Requires ANTHROPIC_API_KEY. The model defaults to PARITY_MODEL when set.
Exits 0 when the final iteration passes and the minimum loop count was
reached, 1 otherwise.`,
		Args: cobra.NoArgs,
		RunE: runParity,
	}

	cmd.Flags().String("factify-url", "", "Reference deployment URL (default: $FACTIFY_URL)")
	cmd.Flags().Int("max-iterations", 7, "Hard ceiling on iterations")
	cmd.Flags().Int("min-loops", 3, "Iterations to run regardless of status")
	cmd.Flags().Bool("stop-after-min", false, "Stop once the minimum loop count is reached, even when failing")
	cmd.Flags().Int("port", 0, "Serve port of the local app (0 = config default)")
	cmd.Flags().String("baselines", "", "Directory holding the frozen baselines (default from config)")
	cmd.Flags().StringP("out", "o", "artifacts/parity", "Output directory")
	return cmd
}

func runParity(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	referenceURL, _ := cmd.Flags().GetString("factify-url")
	maxIterations, _ := cmd.Flags().GetInt("max-iterations")
	minLoops, _ := cmd.Flags().GetInt("min-loops")
	stopAfterMin, _ := cmd.Flags().GetBool("stop-after-min")
	port, _ := cmd.Flags().GetInt("port")
	baselineDir, _ := cmd.Flags().GetString("baselines")
	outDir, _ := cmd.Flags().GetString("out")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if referenceURL != "" {
		cfg.Parity.ReferenceURL = referenceURL
	}
	if port > 0 {
		cfg.Parity.LocalPort = port
	}
	if baselineDir != "" {
		cfg.Parity.BaselineDir = baselineDir
	}

	policy := iterative.Config{
		Policy:            iterative.PolicyMinLoop,
		MinLoops:          minLoops,
		MaxIterations:     maxIterations,
		ContinueUntilPass: !stopAfterMin,
		FocusSchedule:     cfg.Schedule.Focus,
		ExtraFocus:        cfg.Schedule.ExtraFocus,
		Detector:          iterative.NewScoreWindowDetector(0, 0),
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	// Preconditions are checked before the browser starts.
	if _, err := parity.CheckBaselines(cfg); err != nil {
		return err
	}
	logger := slog.Default()
	budget, err := cost.NewTracker(cfg.Parity.Budget, logger)
	if err != nil {
		return err
	}
	judge, err := ai.NewVisionJudge(ai.VisionConfig{
		Model:             cfg.Parity.Model,
		MaxTokens:         cfg.Parity.MaxTokens,
		RequestsPerMinute: cfg.Parity.RequestsPerMinute,
		Ignore:            cfg.Parity.Ignore,
		Logger:            logger,
		Budget:            budget,
	})
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			return fmt.Errorf("the parity loop needs a vision model: %w", err)
		}
		return err
	}
	if cfg.Parity.ReferenceURL == "" {
		logger.Warn("no reference URL set (--factify-url or FACTIFY_URL); every view uses its frozen baseline")
	}

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeHistory(history)

	browser, err := chrome.Launch(ctx, cfg.Capture, logger)
	if err != nil {
		return err
	}
	defer func() { _ = browser.Close() }()

	collector := iterative.NewInMemoryMetricsCollector()
	runner, err := parity.NewRunner(parity.Options{
		Config:       cfg,
		LocalURL:     "http://localhost:" + strconv.Itoa(cfg.Parity.LocalPort),
		ReferenceURL: cfg.Parity.ReferenceURL,
		Browser:      browser,
		Judge:        judge,
		Writer:       report.NewWriter(outDir, cfg.Report.TopIssues),
		History:      history,
		Logger:       logger,
		Collector:    collector,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, policy)

	out := cmd.OutOrStdout()
	printConvergence(out, "Visual Parity", result, collector, outDir)
	printIterations(out, runner.Iterations())
	printBudget(out, budget.GetStats())
	fmt.Fprintf(out, "  Run: %s\n", runner.RunID())
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		msg := "parity not reached"
		if !result.MinLoopsMet {
			msg = fmt.Sprintf("minimum loop count (%d) not reached", minLoops)
		}
		return &ExitError{Code: 1, Message: msg}
	}
	return nil
}
