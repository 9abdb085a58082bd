// Package review runs design-review passes: capture the route matrix,
// judge every capture with the heuristic pool, then aggregate and score.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/judges"
	"github.com/steveyegge/parity/internal/progress"
	"github.com/steveyegge/parity/internal/report"
	"github.com/steveyegge/parity/internal/scoring"
	"github.com/steveyegge/parity/internal/storage"
	"github.com/steveyegge/parity/internal/types"
)

// derivedActions is how many of the previous pass's top issues become fix
// log actions when no notes were provided.
const derivedActions = 5

// Options configures a Runner. Browser, Matrix and Writer are required.
type Options struct {
	Config    config.HarnessConfig
	Matrix    *types.RouteMatrix
	Viewports []types.Viewport
	Browser   capture.Browser
	Writer    *report.Writer
	History   storage.History
	Progress  progress.Manager
	Notes     config.FixNotes
	Logger    *slog.Logger
	RunID     string

	// Collector, if set, receives per-iteration metrics.
	Collector iterative.MetricsCollector

	// Driver overrides the capture driver built from Config.
	Driver *capture.Driver
}

// Runner executes review passes. It implements iterative.Runner.
type Runner struct {
	matrix    *types.RouteMatrix
	viewports []types.Viewport
	browser   capture.Browser
	driver    *capture.Driver
	pool      *judges.Pool
	scorer    *scoring.Scorer
	writer    *report.Writer
	history   storage.History
	progress  progress.Manager
	notes     config.FixNotes
	logger    *slog.Logger
	runID     string
	collector iterative.MetricsCollector

	runs   []types.PassRun
	fixLog []types.FixLogEntry
}

// NewRunner validates opts and builds a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("report writer is required")
	}
	if opts.Matrix == nil {
		return nil, fmt.Errorf("route matrix is required")
	}
	if err := opts.Matrix.Validate(); err != nil {
		return nil, fmt.Errorf("invalid route matrix: %w", err)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := opts.Config.Clone()
	viewports := opts.Viewports
	if len(viewports) == 0 {
		viewports = cfg.Viewports
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	driver := opts.Driver
	if driver == nil {
		driver = capture.NewDriver(cfg, capture.WithLogger(logger))
	}
	history := opts.History
	if history == nil {
		history = storage.Nop{}
	}
	prog := opts.Progress
	if prog == nil {
		prog = progress.NoOpManager{}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Runner{
		matrix:    opts.Matrix,
		viewports: viewports,
		browser:   opts.Browser,
		driver:    driver,
		pool:      judges.NewDefaultPool(cfg),
		scorer:    scoring.NewScorer(cfg.Scoring),
		writer:    opts.Writer,
		history:   history,
		progress:  prog,
		notes:     opts.Notes,
		logger:    logger,
		runID:     runID,
		collector: opts.Collector,
	}, nil
}

// RunID identifies this run in history.
func (r *Runner) RunID() string { return r.runID }

// Passes returns every completed pass in order.
func (r *Runner) Passes() []types.PassRun { return r.runs }

// FixLog returns the fix log so far.
func (r *Runner) FixLog() []types.FixLogEntry { return r.fixLog }

// Run records the run in history, converges under cfg and writes the
// run-level reports, even when a pass failed with an error.
func (r *Runner) Run(ctx context.Context, cfg iterative.Config) (*iterative.ConvergenceResult, error) {
	record := &types.RunRecord{
		ID:        r.runID,
		Kind:      types.RunKindReview,
		Policy:    string(cfg.Policy),
		OutDir:    r.writer.OutDir,
		StartedAt: time.Now(),
	}
	if err := r.history.CreateRun(ctx, record); err != nil {
		r.logger.Warn("failed to record run start", "run", r.runID, "error", err)
	}

	result, runErr := iterative.Converge(ctx, r, cfg, r.collector)

	if err := r.writer.WriteReview(r.runs, r.fixLog); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to write review report: %w", err)
	}

	finished := time.Now()
	record.FinishedAt = &finished
	record.Iterations = len(r.runs)
	if result != nil {
		record.Pass = result.Pass
		record.MinLoopsMet = result.MinLoopsMet
		record.StopReason = string(result.StopReason)
	} else if runErr != nil {
		record.StopReason = "error: " + runErr.Error()
	}
	if err := r.history.FinishRun(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Warn("failed to record run end", "run", r.runID, "error", err)
	}

	return result, runErr
}

// RunIteration runs one review pass.
func (r *Runner) RunIteration(ctx context.Context, it iterative.Iteration) (iterative.Outcome, error) {
	started := time.Now()
	passDir := r.writer.PassDir(it.Number)

	total := len(r.viewports) * len(capture.Expand(r.matrix, "", it.Number))
	task := r.progress.StartTask(fmt.Sprintf("pass %d", it.Number), total)
	r.driver.OnCapture = func(obs capture.Observation) {
		task.Describe(fmt.Sprintf("pass %d %s %s", it.Number, obs.Shot.Viewport, obs.Shot.Route))
		task.Increment(1)
	}
	defer func() {
		r.driver.OnCapture = nil
		task.Complete()
	}()

	manifest, observations, err := r.driver.RunMatrix(ctx, r.browser, r.matrix, r.viewports, it.Number, passDir)
	if err != nil {
		return iterative.Outcome{}, fmt.Errorf("pass %d capture: %w", it.Number, err)
	}

	var candidates []types.Issue
	var warnings []string
	for _, obs := range observations {
		key := obs.Request.Key()
		switch {
		case obs.Shot.Error != "":
			warnings = append(warnings, fmt.Sprintf("%s: capture failed: %s", key, obs.Shot.Error))
		case obs.Signal == nil:
			warnings = append(warnings, fmt.Sprintf("%s: no DOM signal: %v", key, obs.Err))
		default:
			candidates = append(candidates, r.pool.Evaluate(*obs.Signal, obs.Shot)...)
		}
		if obs.Shot.InteractionSkipped {
			warnings = append(warnings, fmt.Sprintf("%s: interaction skipped", key))
		}
	}

	issues, stats := scoring.Dedup(candidates)
	summary := r.scorer.Score(issues)
	if failed := failedCaptures(manifest); failed > 0 && summary.Pass {
		summary.Pass = false
		warnings = append(warnings, fmt.Sprintf("%d captures failed; pass cannot clear the gate", failed))
	}

	run := types.PassRun{
		PassID:     it.Number,
		Focus:      it.Focus,
		Manifest:   manifest,
		Issues:     issues,
		Summary:    summary,
		BySeverity: scoring.BySeverity(issues),
		Warnings:   warnings,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := r.writer.WritePass(run); err != nil {
		return iterative.Outcome{}, fmt.Errorf("pass %d report: %w", it.Number, err)
	}

	r.fixLog = append(r.fixLog, types.FixLogEntry{
		Iteration:     it.Number,
		WeightedScore: summary.WeightedTotal,
		Pass:          summary.Pass,
		Actions:       r.actionsFor(it.Number),
	})
	r.runs = append(r.runs, run)

	if err := r.history.RecordPass(ctx, &types.PassRecord{
		RunID:      r.runID,
		Number:     it.Number,
		Focus:      it.Focus,
		Score:      float64(summary.WeightedTotal),
		Pass:       summary.Pass,
		IssueCount: len(issues),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}); err != nil {
		r.logger.Warn("failed to record pass", "pass", it.Number, "error", err)
	}

	r.logger.Info("pass complete",
		"pass", it.Number,
		"focus", it.Focus,
		"captures", len(manifest),
		"candidates", stats.TotalCandidates,
		"issues", stats.UniqueCount,
		"duplicates", stats.DuplicateCount,
		"weighted", summary.WeightedTotal,
		"pass_gate", summary.Pass,
	)

	return iterative.Outcome{Pass: summary.Pass, Score: float64(summary.WeightedTotal)}, nil
}

// actionsFor returns the operator's notes for pass n, or else the top
// issues of the previous pass as the work that pass n was meant to address.
func (r *Runner) actionsFor(n int) []string {
	if notes := r.notes[n]; len(notes) > 0 {
		return append([]string(nil), notes...)
	}
	if len(r.runs) == 0 {
		return nil
	}
	prev := r.runs[len(r.runs)-1]
	var actions []string
	for _, issue := range scoring.TopIssues(prev.Issues, derivedActions) {
		actions = append(actions, fmt.Sprintf("[%s] %s: %s (%s %s)",
			issue.Severity, issue.Area, issue.Issue, issue.Viewport, issue.Route))
	}
	return actions
}

func failedCaptures(m types.Manifest) int {
	n := 0
	for _, s := range m {
		if s.Error != "" {
			n++
		}
	}
	return n
}
