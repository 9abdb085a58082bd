package parity

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/steveyegge/parity/internal/ai"
	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/capture/capturetest"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/report"
	"github.com/steveyegge/parity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localURL     = "http://localhost:5173"
	referenceURL = "https://reference.example.com"
)

// mockJudge records comparisons and answers with verdictFunc.
type mockJudge struct {
	mu          sync.Mutex
	calls       []ai.Comparison
	verdictFunc func(cmp ai.Comparison) (ai.JudgeResult, error)
}

func (m *mockJudge) Compare(_ context.Context, cmp ai.Comparison) (ai.JudgeResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmp)
	m.mu.Unlock()
	if m.verdictFunc != nil {
		return m.verdictFunc(cmp)
	}
	return matching(), nil
}

func (m *mockJudge) referenceFor(view string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].View == view {
			return m.calls[i].Reference
		}
	}
	return nil
}

func matching() ai.JudgeResult {
	return ai.JudgeResult{
		Raw: `{"match":true}`,
		Verdict: ai.VerdictResult{Verdict: types.JudgeVerdict{
			Match:  true,
			Scores: types.DimensionScores{Layout: 99, Spacing: 99, Typography: 100, Colors: 98, Controls: 99},
		}},
	}
}

type fixture struct {
	browser *capturetest.Browser
	judge   *mockJudge
	writer  *report.Writer
	opts    Options
}

func writeBaselines(t *testing.T, cfg config.HarnessConfig) {
	t.Helper()
	for _, view := range cfg.Parity.Views {
		require.NoError(t, os.WriteFile(cfg.BaselinePath(view), []byte("frozen-"+view.Name), 0644))
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Parity.BaselineDir = t.TempDir()
	writeBaselines(t, cfg)

	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["button"] = []string{"Ask AI", "Comments", "Add comment"}

	f := &fixture{
		browser: browser,
		judge:   &mockJudge{},
		writer:  report.NewWriter(t.TempDir(), 0),
	}
	f.opts = Options{
		Config:       cfg,
		LocalURL:     localURL,
		ReferenceURL: referenceURL,
		Browser:      browser,
		Judge:        f.judge,
		Writer:       f.writer,
		RunID:        "parity-test",
		Driver:       capture.NewDriver(cfg, capture.WithClock(clock)),
	}
	return f
}

func TestRunIteration_AIOpenFallsBackToFrozen(t *testing.T) {
	f := newFixture(t)
	// the reference deployment has no AI affordance
	f.browser.URLControls[referenceURL] = map[string][]string{"button": {"Comments", "Add comment"}}

	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1, Focus: "baseline parity sweep"})
	require.NoError(t, err)
	assert.True(t, outcome.Pass)

	result := runner.Iterations()[0]
	assert.Equal(t, map[string]types.ReferenceSource{
		types.ViewClean:       types.ReferenceLive,
		types.ViewAIOpen:      types.ReferenceFrozen,
		types.ViewCommentsAdd: types.ReferenceLive,
	}, result.ReferenceSource)
	require.Contains(t, result.ReferenceErrors, types.ViewAIOpen)
	assert.Contains(t, result.ReferenceErrors[types.ViewAIOpen], "control not found")
	assert.Len(t, result.ReferenceErrors, 1)

	assert.Equal(t, []byte("frozen-aiOpen"), f.judge.referenceFor(types.ViewAIOpen))
	assert.Equal(t, f.browser.PNG, f.judge.referenceFor(types.ViewClean))

	var persisted types.IterationResult
	data, err := os.ReadFile(filepath.Join(f.writer.IterationDir(1), report.JudgeResultsFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, types.ReferenceFrozen, persisted.ReferenceSource[types.ViewAIOpen])

	raw, err := report.ReadRawResponses(filepath.Join(f.writer.IterationDir(1), report.JudgeRawFile))
	require.NoError(t, err)
	assert.Len(t, raw, 3)

	assert.Zero(t, f.browser.OpenPages())
}

func TestRunIteration_HighDifferenceFailsView(t *testing.T) {
	f := newFixture(t)
	f.judge.verdictFunc = func(cmp ai.Comparison) (ai.JudgeResult, error) {
		res := matching()
		if cmp.View == types.ViewCommentsAdd {
			res.Verdict.Verdict.Differences = []types.Difference{
				{Area: "comment composer", Issue: "missing avatar", Severity: types.SeverityHigh},
			}
		}
		return res, nil
	}
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)
	assert.False(t, outcome.Pass)

	views := runner.Iterations()[0].Views
	assert.True(t, views[types.ViewClean].Pass)
	assert.False(t, views[types.ViewCommentsAdd].Pass)
}

func TestRunIteration_JudgeErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.judge.verdictFunc = func(cmp ai.Comparison) (ai.JudgeResult, error) {
		if cmp.View == types.ViewClean {
			return ai.JudgeResult{}, errors.New("judge clean: circuit breaker is open")
		}
		return matching(), nil
	}
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)
	assert.False(t, outcome.Pass)

	clean := runner.Iterations()[0].Views[types.ViewClean]
	assert.False(t, clean.Pass)
	assert.Contains(t, clean.JudgeError, "circuit breaker")
	assert.False(t, clean.Verdict.Match)
}

func TestRunIteration_UnusableResponseFailsView(t *testing.T) {
	f := newFixture(t)
	f.judge.verdictFunc = func(cmp ai.Comparison) (ai.JudgeResult, error) {
		verdict, perr := ai.ParseVerdict("I cannot compare these images.")
		return ai.JudgeResult{Raw: "I cannot compare these images.", Verdict: ai.VerdictResult{Verdict: verdict, Err: perr}}, nil
	}
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)
	assert.False(t, outcome.Pass)
	for _, vr := range runner.Iterations()[0].Views {
		assert.NotEmpty(t, vr.JudgeError)
	}
}

func TestRunIteration_NoReferenceURLUsesBaselines(t *testing.T) {
	f := newFixture(t)
	f.opts.ReferenceURL = ""
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	_, err = runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)

	result := runner.Iterations()[0]
	for _, view := range f.opts.Config.Parity.Views {
		assert.Equal(t, types.ReferenceFrozen, result.ReferenceSource[view.Name])
		assert.Equal(t, ErrNoReference.Error(), result.ReferenceErrors[view.Name])
	}
}

func TestRunIteration_LocalCaptureFailure(t *testing.T) {
	f := newFixture(t)
	f.browser.URLControls[localURL] = map[string][]string{"button": {"Comments", "Add comment"}}
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	outcome, err := runner.RunIteration(context.Background(), iterative.Iteration{Number: 1})
	require.NoError(t, err)
	assert.False(t, outcome.Pass)

	aiOpen := runner.Iterations()[0].Views[types.ViewAIOpen]
	assert.Contains(t, aiOpen.JudgeError, "local capture")
	assert.Nil(t, f.judge.referenceFor(types.ViewAIOpen))
}

func TestRun_MinLoopWritesSummary(t *testing.T) {
	f := newFixture(t)
	runner, err := NewRunner(f.opts)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), iterative.Config{
		Policy:        iterative.PolicyMinLoop,
		MinLoops:      3,
		MaxIterations: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.Succeeded())

	var summary types.RunSummary
	data, err := os.ReadFile(filepath.Join(f.writer.OutDir, report.RunSummaryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "parity-test", summary.RunID)
	assert.Equal(t, 3, summary.MinLoops)
	assert.Equal(t, 7, summary.MaxIterations)
	assert.True(t, summary.MinLoopsMet)
	assert.True(t, summary.Pass)
	assert.Len(t, summary.Iterations, 3)
	assert.Equal(t, string(iterative.StopMinLoopsDone), summary.StopReason)
}

func TestNewRunner_MissingBaseline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.opts.Config.BaselinePath(f.opts.Config.Parity.Views[1])))

	_, err := NewRunner(f.opts)
	require.ErrorIs(t, err, ErrMissingBaseline)
	assert.Contains(t, err.Error(), "aiOpen.png")
	assert.Empty(t, f.browser.Events())
}

func TestNewRunner_Validation(t *testing.T) {
	f := newFixture(t)

	opts := f.opts
	opts.Judge = nil
	_, err := NewRunner(opts)
	assert.Error(t, err)

	opts = f.opts
	opts.LocalURL = ""
	_, err = NewRunner(opts)
	assert.Error(t, err)
}
