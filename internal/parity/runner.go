// Package parity runs vision-judged parity iterations: capture each named
// view locally and from the reference deployment, fall back to the frozen
// baseline when the live reference cannot be captured, and ask the vision
// judge whether the two match.
package parity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/steveyegge/parity/internal/ai"
	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/report"
	"github.com/steveyegge/parity/internal/storage"
	"github.com/steveyegge/parity/internal/types"
)

// ErrMissingBaseline is returned before any capture when a view has no
// frozen baseline on disk.
var ErrMissingBaseline = errors.New("missing baseline")

// ErrNoReference is recorded for every view when no reference URL is set.
var ErrNoReference = errors.New("no reference URL configured")

// Judge compares a local and a reference screenshot. *ai.VisionJudge
// implements it.
type Judge interface {
	Compare(ctx context.Context, cmp ai.Comparison) (ai.JudgeResult, error)
}

// Options configures a Runner. Browser, Judge and Writer are required.
type Options struct {
	Config       config.HarnessConfig
	LocalURL     string
	ReferenceURL string
	Viewport     types.Viewport // defaults to the first configured viewport
	Browser      capture.Browser
	Judge        Judge
	Writer       *report.Writer
	History      storage.History
	Logger       *slog.Logger
	RunID        string

	// Collector, if set, receives per-iteration metrics.
	Collector iterative.MetricsCollector

	// Driver overrides the capture driver built from Config.
	Driver *capture.Driver
}

// Runner executes parity iterations. It implements iterative.Runner.
type Runner struct {
	views        []config.ViewConfig
	baselines    map[string]string
	floor        int
	localURL     string
	referenceURL string
	viewport     types.Viewport
	browser      capture.Browser
	driver       *capture.Driver
	judge        Judge
	writer       *report.Writer
	history      storage.History
	logger       *slog.Logger
	runID        string
	collector    iterative.MetricsCollector

	iterations []types.IterationResult
}

// CheckBaselines returns the baseline path of every view, or an error
// wrapping ErrMissingBaseline that names each missing file.
func CheckBaselines(cfg config.HarnessConfig) (map[string]string, error) {
	paths := make(map[string]string, len(cfg.Parity.Views))
	var missing []string
	for _, view := range cfg.Parity.Views {
		path := cfg.BaselinePath(view)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			missing = append(missing, path)
			continue
		}
		paths[view.Name] = path
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingBaseline, strings.Join(missing, ", "))
	}
	return paths, nil
}

// NewRunner validates opts, including that every baseline exists.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if opts.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("report writer is required")
	}
	if opts.LocalURL == "" {
		return nil, fmt.Errorf("local URL is required")
	}
	cfg := opts.Config.Clone()
	if len(cfg.Parity.Views) == 0 {
		return nil, fmt.Errorf("no parity views configured")
	}
	baselines, err := CheckBaselines(cfg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	viewport := opts.Viewport
	if viewport.ID == "" {
		if len(cfg.Viewports) == 0 {
			return nil, fmt.Errorf("no viewport configured")
		}
		viewport = cfg.Viewports[0]
	}
	driver := opts.Driver
	if driver == nil {
		driver = capture.NewDriver(cfg, capture.WithLogger(logger))
	}
	history := opts.History
	if history == nil {
		history = storage.Nop{}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Runner{
		views:        cfg.Parity.Views,
		baselines:    baselines,
		floor:        cfg.Parity.ViewPassFloor,
		localURL:     strings.TrimRight(opts.LocalURL, "/"),
		referenceURL: strings.TrimRight(opts.ReferenceURL, "/"),
		viewport:     viewport,
		browser:      opts.Browser,
		driver:       driver,
		judge:        opts.Judge,
		writer:       opts.Writer,
		history:      history,
		logger:       logger,
		runID:        runID,
		collector:    opts.Collector,
	}, nil
}

// RunID identifies this run in history.
func (r *Runner) RunID() string { return r.runID }

// Iterations returns every completed iteration in order.
func (r *Runner) Iterations() []types.IterationResult { return r.iterations }

// Run records the run, converges under cfg and writes run-summary.json,
// even when an iteration failed with an error.
func (r *Runner) Run(ctx context.Context, cfg iterative.Config) (*iterative.ConvergenceResult, error) {
	record := &types.RunRecord{
		ID:        r.runID,
		Kind:      types.RunKindParity,
		Policy:    string(cfg.Policy),
		OutDir:    r.writer.OutDir,
		StartedAt: time.Now(),
	}
	if err := r.history.CreateRun(ctx, record); err != nil {
		r.logger.Warn("failed to record run start", "run", r.runID, "error", err)
	}

	result, runErr := iterative.Converge(ctx, r, cfg, r.collector)

	summary := types.RunSummary{
		RunID:         r.runID,
		MinLoops:      cfg.MinLoops,
		MaxIterations: cfg.Ceiling(),
		Iterations:    r.iterations,
	}
	if result != nil {
		summary.MinLoopsMet = result.MinLoopsMet
		summary.Pass = result.Pass
		summary.StopReason = string(result.StopReason)
	} else if runErr != nil {
		summary.StopReason = "error: " + runErr.Error()
	}
	if err := r.writer.WriteRunSummary(summary); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to write run summary: %w", err)
	}

	finished := time.Now()
	record.FinishedAt = &finished
	record.Iterations = len(r.iterations)
	record.Pass = summary.Pass
	record.MinLoopsMet = summary.MinLoopsMet
	record.StopReason = summary.StopReason
	if err := r.history.FinishRun(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Warn("failed to record run end", "run", r.runID, "error", err)
	}

	return result, runErr
}

// RunIteration captures and judges every view once. Per-view failures are
// recorded in the result and never abort the iteration.
func (r *Runner) RunIteration(ctx context.Context, it iterative.Iteration) (iterative.Outcome, error) {
	dir := r.writer.IterationDir(it.Number)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return iterative.Outcome{}, fmt.Errorf("failed to create iteration directory: %w", err)
	}

	result := types.IterationResult{
		Iteration:       it.Number,
		Focus:           it.Focus,
		ReferenceSource: make(map[string]types.ReferenceSource, len(r.views)),
		ReferenceErrors: make(map[string]string),
		Views:           make(map[string]types.ViewResult, len(r.views)),
		StartedAt:       time.Now(),
	}
	var raw []report.RawResponse

	err := r.withPages(ctx, func(local, reference capture.Page) error {
		for _, view := range r.views {
			if err := ctx.Err(); err != nil {
				return err
			}
			vr, rr := r.runView(ctx, dir, view, local, reference, &result)
			result.Views[view.Name] = vr
			raw = append(raw, rr)
		}
		return nil
	})
	if err != nil {
		return iterative.Outcome{}, fmt.Errorf("iteration %d: %w", it.Number, err)
	}

	result.Pass = true
	var scores []float64
	for _, view := range r.views {
		vr := result.Views[view.Name]
		if !vr.Pass {
			result.Pass = false
		}
		for _, s := range vr.Verdict.Scores.Values() {
			scores = append(scores, float64(s))
		}
	}
	result.FinishedAt = time.Now()
	if len(result.ReferenceErrors) == 0 {
		result.ReferenceErrors = nil
	}

	if err := r.writer.WriteIteration(result); err != nil {
		return iterative.Outcome{}, fmt.Errorf("iteration %d report: %w", it.Number, err)
	}
	if _, err := r.writer.WriteRawResponses(it.Number, raw); err != nil {
		r.logger.Warn("failed to archive raw judge responses", "iteration", it.Number, "error", err)
	}
	r.iterations = append(r.iterations, result)

	score := 0.0
	if len(scores) > 0 {
		score = stat.Mean(scores, nil)
	}
	if err := r.history.RecordPass(ctx, &types.PassRecord{
		RunID:      r.runID,
		Number:     it.Number,
		Focus:      it.Focus,
		Score:      score,
		Pass:       result.Pass,
		IssueCount: countDifferences(result),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}); err != nil {
		r.logger.Warn("failed to record iteration", "iteration", it.Number, "error", err)
	}

	r.logger.Info("iteration complete",
		"iteration", it.Number,
		"focus", it.Focus,
		"pass", result.Pass,
		"score", score,
		"frozen", len(result.ReferenceErrors))

	return iterative.Outcome{Pass: result.Pass, Score: score}, nil
}

// withPages opens the local and reference pages, each its own isolated
// context, and closes both afterwards.
func (r *Runner) withPages(ctx context.Context, fn func(local, reference capture.Page) error) error {
	local, err := r.browser.NewPage(ctx, r.viewport)
	if err != nil {
		return fmt.Errorf("failed to open local page: %w", err)
	}
	defer func() {
		if err := local.Close(); err != nil {
			r.logger.Warn("failed to close local page", "error", err)
		}
	}()

	reference, err := r.browser.NewPage(ctx, r.viewport)
	if err != nil {
		return fmt.Errorf("failed to open reference page: %w", err)
	}
	defer func() {
		if err := reference.Close(); err != nil {
			r.logger.Warn("failed to close reference page", "error", err)
		}
	}()

	return fn(local, reference)
}

func (r *Runner) runView(ctx context.Context, dir string, view config.ViewConfig, local, reference capture.Page, result *types.IterationResult) (types.ViewResult, report.RawResponse) {
	vr := types.ViewResult{View: view.Name}
	rr := report.RawResponse{Iteration: result.Iteration, View: view.Name, At: time.Now()}

	refPNG, source, refErr := r.referenceImage(ctx, view, reference)
	result.ReferenceSource[view.Name] = source
	rr.Reference = source
	if refErr != nil {
		result.ReferenceErrors[view.Name] = refErr.Error()
	}
	if refPNG != nil {
		vr.ReferenceImage = filepath.Join(dir, "reference-"+view.Name+".png")
		if err := os.WriteFile(vr.ReferenceImage, refPNG, 0644); err != nil {
			r.logger.Warn("failed to write reference image", "view", view.Name, "error", err)
		}
	}

	localPNG, err := r.driver.CaptureView(ctx, local, r.localURL+view.Path, view.Steps)
	if err != nil {
		r.logger.Warn("local capture failed", "view", view.Name, "error", err)
		return r.failView(vr, rr, fmt.Errorf("local capture: %w", err))
	}
	vr.LocalImage = filepath.Join(dir, "local-"+view.Name+".png")
	if err := os.WriteFile(vr.LocalImage, localPNG, 0644); err != nil {
		return r.failView(vr, rr, fmt.Errorf("failed to write local image: %w", err))
	}
	if refPNG == nil {
		return r.failView(vr, rr, fmt.Errorf("no reference image"))
	}

	judged, err := r.judge.Compare(ctx, ai.Comparison{View: view.Name, Local: localPNG, Reference: refPNG})
	if err != nil {
		r.logger.Warn("vision judge failed", "view", view.Name, "error", err)
		return r.failView(vr, rr, err)
	}
	rr.Text = judged.Raw
	vr.Verdict = judged.Verdict.Verdict
	if judged.Verdict.Err != nil {
		vr.JudgeError = judged.Verdict.Err.Error()
		rr.Error = vr.JudgeError
	}
	vr.Pass = judged.Verdict.Usable() && ai.IsViewPass(vr.Verdict, r.floor)
	return vr, rr
}

// referenceImage tries a live capture and falls back to the frozen
// baseline. The returned error is the live failure, if any.
func (r *Runner) referenceImage(ctx context.Context, view config.ViewConfig, page capture.Page) ([]byte, types.ReferenceSource, error) {
	var liveErr error
	if r.referenceURL == "" {
		liveErr = ErrNoReference
	} else {
		png, err := r.driver.CaptureView(ctx, page, r.referenceURL+view.Path, view.Steps)
		if err == nil {
			return png, types.ReferenceLive, nil
		}
		liveErr = err
		r.logger.Warn("live reference capture failed, using frozen baseline", "view", view.Name, "error", err)
	}

	png, err := os.ReadFile(r.baselines[view.Name])
	if err != nil {
		return nil, types.ReferenceFrozen, errors.Join(liveErr, fmt.Errorf("reading baseline: %w", err))
	}
	return png, types.ReferenceFrozen, liveErr
}

func (r *Runner) failView(vr types.ViewResult, rr report.RawResponse, err error) (types.ViewResult, report.RawResponse) {
	vr.Verdict = ai.UnusableVerdict(err.Error())
	vr.JudgeError = err.Error()
	vr.Pass = false
	rr.Error = err.Error()
	return vr, rr
}

func countDifferences(result types.IterationResult) int {
	n := 0
	for _, v := range result.Views {
		n += len(v.Verdict.Differences)
	}
	return n
}
