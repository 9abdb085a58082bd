package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/parity/internal/scoring"
	"github.com/steveyegge/parity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePass(id, weighted int, pass bool, issues ...types.Issue) types.PassRun {
	return types.PassRun{
		PassID: id,
		Focus:  "layout and spacing",
		Manifest: types.Manifest{
			{Route: "/", State: "default", Viewport: "desktop", Path: "pass/desktop__root__default.png"},
		},
		Issues: issues,
		Summary: types.ScoreSummary{
			Buckets: map[types.Bucket]int{
				types.BucketVisualHierarchy:  weighted,
				types.BucketTokenConsistency: 100,
			},
			WeightedTotal: weighted,
			Pass:          pass,
		},
		BySeverity: scoring.BySeverity(issues),
		StartedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC),
	}
}

func issue(bucket types.Bucket, area string, sev types.Severity, delta int) types.Issue {
	return types.Issue{
		JudgeID: bucket, Area: area, Issue: area + " drift",
		Expected: "Inter", Actual: "Arial",
		Severity: sev, ScoreDelta: delta,
		Route: "/", State: "default", Viewport: "desktop",
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestWritePass(t *testing.T) {
	w := NewWriter(t.TempDir(), 0)
	assert.Equal(t, 15, w.TopIssues)

	run := samplePass(2, 88, true, issue(types.BucketVisualHierarchy, "heading", types.SeverityHigh, 12))
	require.NoError(t, w.WritePass(run))

	var manifest types.Manifest
	readJSON(t, filepath.Join(w.OutDir, "pass-2", ManifestFile), &manifest)
	assert.Len(t, manifest, 1)

	var tracker PassTracker
	readJSON(t, filepath.Join(w.OutDir, "pass-2", PassTrackerFile), &tracker)
	assert.Equal(t, 2, tracker.PassID)
	assert.Equal(t, 88, tracker.Summary.WeightedTotal)
	assert.Equal(t, 1, tracker.BySeverity[types.SeverityHigh])
	assert.Equal(t, 0, tracker.BySeverity[types.SeverityCritical])
	require.Len(t, tracker.Issues, 1)

	_, err := os.Stat(filepath.Join(w.OutDir, "pass-2", PassTrackerFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestWritePass_EmptyListsAreArrays(t *testing.T) {
	w := NewWriter(t.TempDir(), 5)
	require.NoError(t, w.WritePass(types.PassRun{PassID: 1}))

	data, err := os.ReadFile(filepath.Join(w.OutDir, "pass-1", PassTrackerFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"issues": []`)

	data, err = os.ReadFile(filepath.Join(w.OutDir, "pass-1", ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteReview(t *testing.T) {
	w := NewWriter(t.TempDir(), 1)
	runs := []types.PassRun{
		samplePass(1, 70, false,
			issue(types.BucketVisualHierarchy, "heading", types.SeverityCritical, 22),
			issue(types.BucketTokenConsistency, "brand", types.SeverityMedium, 6)),
		samplePass(2, 90, true,
			issue(types.BucketTokenConsistency, "neutral", types.SeverityLow, 3),
			issue(types.BucketVisualHierarchy, "body | text", types.SeverityMedium, 8)),
	}
	fixLog := []types.FixLogEntry{
		{Iteration: 1, WeightedScore: 70, Pass: false},
		{Iteration: 2, WeightedScore: 90, Pass: true, Actions: []string{"restored brand token"}},
	}
	require.NoError(t, w.WriteReview(runs, fixLog))

	md, err := os.ReadFile(filepath.Join(w.OutDir, ReviewReportFile))
	require.NoError(t, err)
	report := string(md)
	assert.Contains(t, report, "# Design Review Report")
	assert.Contains(t, report, "| 1 | layout and spacing | 1 | 2 | 1 | 0 | 1 | 0 | 70 | FAIL |")
	assert.Contains(t, report, "| 2 | layout and spacing | 1 | 2 | 0 | 0 | 1 | 1 | 90 | PASS |")
	assert.Contains(t, report, "Final result: PASS (weighted 90)")
	assert.Contains(t, report, "mean 80.0")
	assert.Contains(t, report, "## Top issues (1 of 4, all passes)")
	assert.Contains(t, report, "heading drift")
	assert.Contains(t, report, "last seen pass 1")
	assert.NotContains(t, report, "body | text drift")

	log, err := os.ReadFile(filepath.Join(w.OutDir, FixLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(log), "## Iteration 1")
	assert.Contains(t, string(log), "- Actions: none recorded")
	assert.Contains(t, string(log), "  - restored brand token")

	var tracker RunTracker
	readJSON(t, filepath.Join(w.OutDir, RunTrackerFile), &tracker)
	require.Len(t, tracker.Passes, 2)
	assert.Equal(t, 2, tracker.Passes[1].IssueCount)
	assert.Len(t, tracker.LatestIssues, 2)
	assert.Equal(t, 70, tracker.Trend.First)
	assert.Equal(t, 90, tracker.Trend.Last)
}

func TestRenderReview_TopIssuesSpanPasses(t *testing.T) {
	w := NewWriter(t.TempDir(), 0)
	runs := []types.PassRun{
		samplePass(1, 80, false,
			issue(types.BucketTokenConsistency, "brand", types.SeverityMedium, 6),
			issue(types.BucketVisualHierarchy, "heading", types.SeverityHigh, 12)),
		samplePass(2, 85, false,
			issue(types.BucketTokenConsistency, "brand", types.SeverityMedium, 9)),
	}
	report := w.RenderReview(runs)

	assert.Contains(t, report, "## Top issues (2 of 2, all passes)")
	assert.Contains(t, report, "1. **[high] visual_hierarchy** heading")
	assert.Contains(t, report, "delta 12) at desktop //default, last seen pass 1")
	assert.Contains(t, report, "delta 9) at desktop //default, last seen pass 2")
	assert.NotContains(t, report, "delta 6)")
}

func TestRenderReview_NoPasses(t *testing.T) {
	assert.Contains(t, NewWriter("", 0).RenderReview(nil), "No passes were run.")
}

func TestScoreTrend(t *testing.T) {
	assert.Equal(t, Trend{}, ScoreTrend(nil))

	single := ScoreTrend([]types.PassRun{samplePass(1, 80, false)})
	assert.Equal(t, 80.0, single.Mean)
	assert.Zero(t, single.StdDev)

	trend := ScoreTrend([]types.PassRun{samplePass(1, 70, false), samplePass(2, 80, false), samplePass(3, 90, true)})
	assert.Equal(t, 80.0, trend.Mean)
	assert.InDelta(t, 10.0, trend.StdDev, 1e-9)
	assert.False(t, math.IsNaN(trend.StdDev))
}

func TestParityArtifacts(t *testing.T) {
	w := NewWriter(t.TempDir(), 0)
	result := types.IterationResult{
		Iteration:       1,
		Focus:           "baseline parity sweep",
		ReferenceSource: map[string]types.ReferenceSource{"clean": types.ReferenceLive, "aiOpen": types.ReferenceFrozen},
		ReferenceErrors: map[string]string{"aiOpen": "control not found"},
		Views:           map[string]types.ViewResult{"clean": {View: "clean", Pass: true}},
	}
	require.NoError(t, w.WriteIteration(result))

	var got types.IterationResult
	readJSON(t, filepath.Join(w.OutDir, "iteration-1", JudgeResultsFile), &got)
	assert.Equal(t, types.ReferenceFrozen, got.ReferenceSource["aiOpen"])

	require.NoError(t, w.WriteRunSummary(types.RunSummary{RunID: "r", MinLoops: 3}))
	data, err := os.ReadFile(filepath.Join(w.OutDir, RunSummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"iterations": []`)
}

func TestRawResponsesRoundTrip(t *testing.T) {
	w := NewWriter(t.TempDir(), 0)
	responses := []RawResponse{
		{Iteration: 2, View: "clean", Reference: types.ReferenceLive, Text: strings.Repeat(`{"match":true}`, 50)},
		{Iteration: 2, View: "aiOpen", Reference: types.ReferenceFrozen, Error: "rate limited"},
	}
	path, err := w.WriteRawResponses(2, responses)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.OutDir, "iteration-2", JudgeRawFile), path)

	got, err := ReadRawResponses(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, responses[0].Text, got[0].Text)
	assert.Equal(t, "rate limited", got[1].Error)
}
