package review

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/capture/capturetest"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/report"
	"github.com/steveyegge/parity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanSignal() types.DomSignal {
	return types.DomSignal{
		BodyFontFamily:    `"Inter", system-ui, sans-serif`,
		HeadingFontFamily: "Inter",
		BodyColor:         "rgb(15, 23, 42)",
		FocusableCount:    3,
		FocusBoxShadow:    "rgb(37, 99, 235) 0px 0px 0px 3px",
		HasDialog:         true,
		DialogRadiusPx:    16,
		BrandToken:        "#2563eb",
		NeutralToken:      "#64748b",
	}
}

// recordingHistory keeps what the runner stores.
type recordingHistory struct {
	mu       sync.Mutex
	created  []*types.RunRecord
	finished []*types.RunRecord
	passes   []*types.PassRecord
}

func (h *recordingHistory) CreateRun(_ context.Context, run *types.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *run
	h.created = append(h.created, &cp)
	return nil
}

func (h *recordingHistory) FinishRun(_ context.Context, run *types.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *run
	h.finished = append(h.finished, &cp)
	return nil
}

func (h *recordingHistory) RecordPass(_ context.Context, pass *types.PassRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *pass
	h.passes = append(h.passes, &cp)
	return nil
}

func (h *recordingHistory) GetRun(context.Context, string) (*types.RunRecord, error) {
	return nil, errors.New("not implemented")
}
func (h *recordingHistory) ListRuns(context.Context, int) ([]*types.RunRecord, error) {
	return nil, nil
}
func (h *recordingHistory) GetPasses(context.Context, string) ([]*types.PassRecord, error) {
	return nil, nil
}
func (h *recordingHistory) Close() error { return nil }

type fixture struct {
	browser *capturetest.Browser
	history *recordingHistory
	writer  *report.Writer
	opts    Options
}

func newFixture(t *testing.T, sig types.DomSignal) *fixture {
	t.Helper()
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Signal = sig
	cfg := config.Default()

	f := &fixture{
		browser: browser,
		history: &recordingHistory{},
		writer:  report.NewWriter(t.TempDir(), 5),
	}
	f.opts = Options{
		Config: cfg,
		Matrix: &types.RouteMatrix{
			BaseURL: "http://localhost:5173",
			Routes:  []types.RouteMatrixEntry{{Path: "/"}, {Path: "/reports", States: []string{"default", "filtered"}}},
		},
		Viewports: cfg.Viewports[:2],
		Browser:   browser,
		Writer:    f.writer,
		History:   f.history,
		RunID:     "run-test",
		Driver:    capture.NewDriver(cfg, capture.WithClock(clock)),
	}
	return f
}

func TestRunner_CleanPassStopsEarly(t *testing.T) {
	f := newFixture(t, cleanSignal())
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), iterative.Config{
		Policy:     iterative.PolicyPassStop,
		MaxPasses:  3,
		StopOnPass: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, 1, result.Iterations)

	passes := runner.Passes()
	require.Len(t, passes, 1)
	assert.Len(t, passes[0].Manifest, 6) // 3 captures x 2 viewports
	assert.Empty(t, passes[0].Issues)
	assert.Equal(t, 100, passes[0].Summary.WeightedTotal)

	for _, name := range []string{
		filepath.Join("pass-1", report.ManifestFile),
		filepath.Join("pass-1", report.PassTrackerFile),
		report.ReviewReportFile,
		report.FixLogFile,
		report.RunTrackerFile,
	} {
		assert.FileExists(t, filepath.Join(f.writer.OutDir, name))
	}

	require.Len(t, f.history.created, 1)
	assert.Equal(t, types.RunKindReview, f.history.created[0].Kind)
	require.Len(t, f.history.passes, 1)
	assert.True(t, f.history.passes[0].Pass)
	require.Len(t, f.history.finished, 1)
	assert.Equal(t, string(iterative.StopPassed), f.history.finished[0].StopReason)
	assert.Equal(t, 1, f.history.finished[0].Iterations)
}

func TestRunner_FailingSignalLogsFixes(t *testing.T) {
	sig := cleanSignal()
	sig.BodyFontFamily = "Arial"
	sig.BrandToken = "#ff0000"
	f := newFixture(t, sig)
	f.opts.Notes = config.FixNotes{3: {"swapped body font stack"}}

	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), iterative.Config{
		Policy:    iterative.PolicyPassStop,
		MaxPasses: 3,
	})
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, 3, result.Iterations)

	first := runner.Passes()[0]
	require.NotEmpty(t, first.Issues)
	total := 0
	for _, n := range first.BySeverity {
		total += n
	}
	assert.Equal(t, len(first.Issues), total)

	log := runner.FixLog()
	require.Len(t, log, 3)
	assert.Empty(t, log[0].Actions)
	require.NotEmpty(t, log[1].Actions)
	assert.LessOrEqual(t, len(log[1].Actions), derivedActions)
	assert.Equal(t, []string{"swapped body font stack"}, log[2].Actions)
}

func TestRunner_SkippedInteractionIsWarning(t *testing.T) {
	f := newFixture(t, cleanSignal())
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	_, err = runner.RunIteration(context.Background(), iterative.Iteration{Number: 1, Focus: "baseline parity sweep"})
	require.NoError(t, err)

	pass := runner.Passes()[0]
	assert.True(t, pass.Summary.Pass)
	assert.Contains(t, pass.Warnings, "pass-1|desktop|/reports|filtered: interaction skipped")
}

func TestRunner_CaptureFailureBlocksGate(t *testing.T) {
	f := newFixture(t, cleanSignal())
	f.browser.Fail["http://localhost:5173/reports"] = errors.New("net::ERR_TIMED_OUT")
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)
	assert.False(t, outcome.Pass)

	pass := runner.Passes()[0]
	assert.Len(t, pass.Manifest, 6)
	assert.NotEmpty(t, pass.Warnings)
}

func TestNewRunner_Validation(t *testing.T) {
	f := newFixture(t, cleanSignal())

	opts := f.opts
	opts.Browser = nil
	_, err := NewRunner(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.Matrix = &types.RouteMatrix{BaseURL: "http://x"}
	_, err = NewRunner(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.RunID = ""
	runner, err := NewRunner(opts)
	require.NoError(t, err)
	assert.Len(t, runner.RunID(), 36)
}
