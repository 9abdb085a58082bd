// Package scoring merges a pass's issues and turns them into bucket scores
// and a pass/fail verdict.
package scoring

import (
	"cmp"
	"slices"
	"strings"

	"github.com/steveyegge/parity/internal/types"
)

// Signature is the composite key two issues must share to be duplicates.
type Signature struct {
	JudgeID  types.Bucket
	Area     string
	Route    string
	Viewport string
	Severity types.Severity
}

// SignatureOf builds the dedup key. The route loses its query string, so
// path variants that differ only by query collapse together.
func SignatureOf(issue types.Issue) Signature {
	return Signature{
		JudgeID:  issue.JudgeID,
		Area:     issue.Area,
		Route:    NormalizeRoute(issue.Route),
		Viewport: issue.Viewport,
		Severity: issue.Severity,
	}
}

// NormalizeRoute strips the query string and fragment.
func NormalizeRoute(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		return route[:i]
	}
	return route
}

// DedupStats describes one deduplication run.
type DedupStats struct {
	TotalCandidates int
	UniqueCount     int
	DuplicateCount  int
}

// Dedup collapses issues sharing a Signature, keeping the one with the
// larger scoreDelta (the earlier one on ties). Output order is the order in
// which each signature was first seen.
func Dedup(issues []types.Issue) ([]types.Issue, DedupStats) {
	index := make(map[Signature]int, len(issues))
	unique := make([]types.Issue, 0, len(issues))

	for _, issue := range issues {
		sig := SignatureOf(issue)
		if i, seen := index[sig]; seen {
			if issue.ScoreDelta > unique[i].ScoreDelta {
				unique[i] = issue
			}
			continue
		}
		index[sig] = len(unique)
		unique = append(unique, issue)
	}

	return unique, DedupStats{
		TotalCandidates: len(issues),
		UniqueCount:     len(unique),
		DuplicateCount:  len(issues) - len(unique),
	}
}

// BySeverity returns a histogram with every severity present (zero if unused).
func BySeverity(issues []types.Issue) types.SeverityCounts {
	counts := make(types.SeverityCounts, len(types.AllSeverities))
	for _, sev := range types.AllSeverities {
		counts[sev] = 0
	}
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	return counts
}

// TopIssues returns up to n issues ranked by scoreDelta descending. Ties
// keep their original order. n <= 0 returns all of them ranked.
func TopIssues(issues []types.Issue, n int) []types.Issue {
	ranked := slices.Clone(issues)
	slices.SortStableFunc(ranked, func(a, b types.Issue) int {
		return cmp.Compare(b.ScoreDelta, a.ScoreDelta)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
