package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/steveyegge/parity/internal/scoring"
	"github.com/steveyegge/parity/internal/types"
)

// PassTracker is the content of a pass's gaps-tracker.json.
type PassTracker struct {
	PassID     int                  `json:"passId"`
	Focus      string               `json:"focus,omitempty"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Summary    types.ScoreSummary   `json:"summary"`
	BySeverity types.SeverityCounts `json:"bySeverity"`
	Warnings   []string             `json:"warnings,omitempty"`
	Issues     []types.Issue        `json:"issues"`
}

// PassSummary is one pass in the run-level tracker.
type PassSummary struct {
	PassID     int                  `json:"passId"`
	Focus      string               `json:"focus,omitempty"`
	Captures   int                  `json:"captures"`
	IssueCount int                  `json:"issueCount"`
	Summary    types.ScoreSummary   `json:"summary"`
	BySeverity types.SeverityCounts `json:"bySeverity"`
}

// RunTracker is the content of the run-level gaps_tracker.json.
type RunTracker struct {
	Passes       []PassSummary `json:"passes"`
	Trend        Trend         `json:"trend"`
	LatestIssues []types.Issue `json:"latestIssues"`
}

// Trend summarizes weighted totals across passes.
type Trend struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	First  int     `json:"first"`
	Last   int     `json:"last"`
}

// ScoreTrend computes the trend of weighted totals. A single pass has zero
// deviation.
func ScoreTrend(runs []types.PassRun) Trend {
	if len(runs) == 0 {
		return Trend{}
	}
	xs := make([]float64, len(runs))
	for i, r := range runs {
		xs[i] = float64(r.Summary.WeightedTotal)
	}
	t := Trend{
		Mean:  stat.Mean(xs, nil),
		First: runs[0].Summary.WeightedTotal,
		Last:  runs[len(runs)-1].Summary.WeightedTotal,
	}
	if len(xs) > 1 {
		t.StdDev = stat.StdDev(xs, nil)
	}
	return t
}

// WritePass writes the manifest and gaps tracker of one pass.
func (w *Writer) WritePass(run types.PassRun) error {
	dir := w.PassDir(run.PassID)
	manifest := run.Manifest
	if manifest == nil {
		manifest = types.Manifest{}
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}

	issues := run.Issues
	if issues == nil {
		issues = []types.Issue{}
	}
	return writeJSON(filepath.Join(dir, PassTrackerFile), PassTracker{
		PassID:     run.PassID,
		Focus:      run.Focus,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Summary:    run.Summary,
		BySeverity: run.BySeverity,
		Warnings:   run.Warnings,
		Issues:     issues,
	})
}

// WriteReview writes the run-level review report, fix log and tracker.
func (w *Writer) WriteReview(runs []types.PassRun, fixLog []types.FixLogEntry) error {
	if err := writeFile(filepath.Join(w.OutDir, ReviewReportFile), []byte(w.RenderReview(runs))); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(w.OutDir, FixLogFile), []byte(RenderFixLog(fixLog))); err != nil {
		return err
	}

	tracker := RunTracker{
		Passes:       make([]PassSummary, 0, len(runs)),
		Trend:        ScoreTrend(runs),
		LatestIssues: []types.Issue{},
	}
	for _, r := range runs {
		tracker.Passes = append(tracker.Passes, PassSummary{
			PassID:     r.PassID,
			Focus:      r.Focus,
			Captures:   len(r.Manifest),
			IssueCount: len(r.Issues),
			Summary:    r.Summary,
			BySeverity: r.BySeverity,
		})
	}
	if len(runs) > 0 && runs[len(runs)-1].Issues != nil {
		tracker.LatestIssues = runs[len(runs)-1].Issues
	}
	return writeJSON(filepath.Join(w.OutDir, RunTrackerFile), tracker)
}

// RenderReview renders design_review_report.md.
func (w *Writer) RenderReview(runs []types.PassRun) string {
	var b strings.Builder
	b.WriteString("# Design Review Report\n\n")
	if len(runs) == 0 {
		b.WriteString("No passes were run.\n")
		return b.String()
	}

	latest := runs[len(runs)-1]
	fmt.Fprintf(&b, "- Passes: %d\n", len(runs))
	fmt.Fprintf(&b, "- Final result: %s (weighted %d)\n", verdict(latest.Summary.Pass), latest.Summary.WeightedTotal)
	trend := ScoreTrend(runs)
	fmt.Fprintf(&b, "- Score trend: %d -> %d, mean %.1f, stddev %.1f\n\n", trend.First, trend.Last, trend.Mean, trend.StdDev)

	b.WriteString("## Passes\n\n")
	b.WriteString("| Pass | Focus | Captures | Issues | Critical | High | Medium | Low | Weighted | Result |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		sev := r.BySeverity
		if sev == nil {
			sev = scoring.BySeverity(r.Issues)
		}
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %d | %d | %d | %d | %s |\n",
			r.PassID, cell(r.Focus), len(r.Manifest), len(r.Issues),
			sev[types.SeverityCritical], sev[types.SeverityHigh], sev[types.SeverityMedium], sev[types.SeverityLow],
			r.Summary.WeightedTotal, verdict(r.Summary.Pass))
	}

	fmt.Fprintf(&b, "\n## Scorecard (pass %d)\n\n", latest.PassID)
	b.WriteString("| Bucket | Score |\n|---|---|\n")
	for _, bucket := range types.AllBuckets {
		if score, ok := latest.Summary.Buckets[bucket]; ok {
			fmt.Fprintf(&b, "| %s | %d |\n", bucket, score)
		}
	}

	if len(latest.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, warn := range latest.Warnings {
			fmt.Fprintf(&b, "- %s\n", warn)
		}
	}

	all, lastSeen := runIssues(runs)
	top := scoring.TopIssues(all, w.TopIssues)
	fmt.Fprintf(&b, "\n## Top issues (%d of %d, all passes)\n\n", len(top), len(all))
	if len(top) == 0 {
		b.WriteString("None.\n")
	}
	for i, issue := range top {
		fmt.Fprintf(&b, "%d. **[%s] %s** %s: %s (expected `%s`, actual `%s`; delta %d) at %s %s/%s, last seen pass %d\n",
			i+1, issue.Severity, issue.JudgeID, issue.Area, issue.Issue,
			issue.Expected, issue.Actual, issue.ScoreDelta,
			issue.Viewport, issue.Route, issue.State, lastSeen[scoring.SignatureOf(issue)])
	}
	return b.String()
}

// runIssues dedups the issues of every pass into one list and records the
// last pass each signature appeared in.
func runIssues(runs []types.PassRun) ([]types.Issue, map[scoring.Signature]int) {
	var all []types.Issue
	lastSeen := make(map[scoring.Signature]int)
	for _, r := range runs {
		all = append(all, r.Issues...)
		for _, issue := range r.Issues {
			lastSeen[scoring.SignatureOf(issue)] = r.PassID
		}
	}
	unique, _ := scoring.Dedup(all)
	return unique, lastSeen
}

// RenderFixLog renders fix_log.md.
func RenderFixLog(entries []types.FixLogEntry) string {
	var b strings.Builder
	b.WriteString("# Fix Log\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n## Iteration %d\n\n", e.Iteration)
		fmt.Fprintf(&b, "- Weighted score: %d\n", e.WeightedScore)
		fmt.Fprintf(&b, "- Pass: %s\n", verdict(e.Pass))
		if len(e.Actions) == 0 {
			b.WriteString("- Actions: none recorded\n")
			continue
		}
		b.WriteString("- Actions:\n")
		for _, a := range e.Actions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	return b.String()
}

func verdict(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
