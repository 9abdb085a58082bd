package scoring

import (
	"math"

	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/types"
)

const (
	minScore = 0
	maxScore = 100
)

// Scorer converts issues into bucket scores and a verdict.
type Scorer struct {
	penalties map[types.Severity]int
	weights   map[types.Bucket]float64
	floor     int
}

// NewScorer creates a scorer from the scoring section of the config.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	c := config.HarnessConfig{Scoring: cfg}.Clone().Scoring
	return &Scorer{
		penalties: c.Penalties,
		weights:   c.Weights,
		floor:     c.BucketFloor,
	}
}

// Score computes the summary for one pass's (already deduplicated) issues.
//
// Every bucket starts at 100 and loses the severity penalty for each of its
// issues, clamped after every subtraction. The weighted total is rounded
// and clamped. A pass needs every bucket at or above the floor and no
// critical issue.
func (s *Scorer) Score(issues []types.Issue) types.ScoreSummary {
	buckets := make(map[types.Bucket]int, len(types.AllBuckets))
	for _, b := range types.AllBuckets {
		buckets[b] = maxScore
	}

	hasCritical := false
	for _, issue := range issues {
		if issue.Severity == types.SeverityCritical {
			hasCritical = true
		}
		current, tracked := buckets[issue.JudgeID]
		if !tracked {
			continue
		}
		buckets[issue.JudgeID] = clamp(current - s.penalties[issue.Severity])
	}

	return s.Summarize(buckets, hasCritical)
}

// Summarize applies the weights and the gate to a set of bucket scores.
func (s *Scorer) Summarize(buckets map[types.Bucket]int, hasCritical bool) types.ScoreSummary {
	out := make(map[types.Bucket]int, len(types.AllBuckets))
	total := 0.0
	pass := !hasCritical
	for _, b := range types.AllBuckets {
		score := clamp(buckets[b])
		out[b] = score
		total += s.weights[b] * float64(score)
		if score < s.floor {
			pass = false
		}
	}

	return types.ScoreSummary{
		Buckets:       out,
		WeightedTotal: clamp(int(math.Round(total))),
		Pass:          pass,
	}
}

func clamp(v int) int {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
