package iterative

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector provides instrumentation for convergence runs. Callers
// can pass nil to Converge to disable collection.
type MetricsCollector interface {
	// RecordIterationStart is called at the beginning of each iteration
	RecordIterationStart(iteration int)

	// RecordIterationEnd is called when an iteration completes successfully
	RecordIterationEnd(iteration int, metrics *IterationMetrics)

	// RecordRunComplete is called once the stop condition fires
	RecordRunComplete(result *ConvergenceResult)

	// GetAggregateMetrics returns rolled-up statistics across all runs
	GetAggregateMetrics() *AggregateMetrics
}

// IterationMetrics captures metrics for a single iteration.
type IterationMetrics struct {
	Iteration int
	Focus     string
	Pass      bool
	Score     float64
	Duration  time.Duration
}

// RunMetrics captures metrics for an entire run.
type RunMetrics struct {
	Policy        Policy
	Iterations    int
	Pass          bool
	MinLoopsMet   bool
	StopReason    StopReason
	Plateaued     bool
	TotalDuration time.Duration

	// FirstScore and FinalScore bracket the score trajectory.
	FirstScore float64
	FinalScore float64

	PerIteration []*IterationMetrics
}

// ScoreGain is the score change from the first to the final iteration.
func (r *RunMetrics) ScoreGain() float64 {
	return r.FinalScore - r.FirstScore
}

// AggregateMetrics provides rolled-up statistics across runs.
type AggregateMetrics struct {
	TotalRuns       int
	SucceededRuns   int
	FailedRuns      int
	PlateauedRuns   int
	TotalIterations int
	MeanIterations  float64

	// P50Iterations and P95Iterations are over passing runs only.
	P50Iterations int
	P95Iterations int

	MeanScoreGain float64
	TotalDuration time.Duration

	ByPolicy map[Policy]*PolicyMetrics
}

// PolicyMetrics aggregates runs of one policy.
type PolicyMetrics struct {
	Count          int
	SucceededCount int
	MeanIterations float64
}

// InMemoryMetricsCollector keeps every run in memory. It is safe for
// concurrent use.
type InMemoryMetricsCollector struct {
	mu sync.Mutex

	runs              []*RunMetrics
	currentIterations []*IterationMetrics
}

// NewInMemoryMetricsCollector creates a new in-memory metrics collector.
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{}
}

// RecordIterationStart implements MetricsCollector.
func (m *InMemoryMetricsCollector) RecordIterationStart(iteration int) {}

// RecordIterationEnd implements MetricsCollector.
func (m *InMemoryMetricsCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentIterations = append(m.currentIterations, metrics)
}

// RecordRunComplete implements MetricsCollector.
func (m *InMemoryMetricsCollector) RecordRunComplete(result *ConvergenceResult) {
	if result == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run := &RunMetrics{
		Policy:        result.Policy,
		Iterations:    result.Iterations,
		Pass:          result.Succeeded(),
		MinLoopsMet:   result.MinLoopsMet,
		StopReason:    result.StopReason,
		Plateaued:     result.Plateaued,
		TotalDuration: result.ElapsedTime,
		PerIteration:  m.currentIterations,
	}
	if n := len(result.Outcomes); n > 0 {
		run.FirstScore = result.Outcomes[0].Score
		run.FinalScore = result.Outcomes[n-1].Score
	}
	m.runs = append(m.runs, run)
	m.currentIterations = nil
}

// GetRuns returns all collected run metrics.
func (m *InMemoryMetricsCollector) GetRuns() []*RunMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RunMetrics(nil), m.runs...)
}

// GetAggregateMetrics implements MetricsCollector.
func (m *InMemoryMetricsCollector) GetAggregateMetrics() *AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &AggregateMetrics{ByPolicy: make(map[Policy]*PolicyMetrics)}
	if len(m.runs) == 0 {
		return agg
	}

	var passingIterations []int
	gainSum := 0.0
	for _, run := range m.runs {
		agg.TotalRuns++
		agg.TotalIterations += run.Iterations
		agg.TotalDuration += run.TotalDuration
		gainSum += run.ScoreGain()

		if run.Pass {
			agg.SucceededRuns++
			passingIterations = append(passingIterations, run.Iterations)
		} else {
			agg.FailedRuns++
		}
		if run.Plateaued {
			agg.PlateauedRuns++
		}

		pm := agg.ByPolicy[run.Policy]
		if pm == nil {
			pm = &PolicyMetrics{}
			agg.ByPolicy[run.Policy] = pm
		}
		pm.Count++
		if run.Pass {
			pm.SucceededCount++
		}
		// incremental mean
		pm.MeanIterations += (float64(run.Iterations) - pm.MeanIterations) / float64(pm.Count)
	}

	agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalRuns)
	agg.MeanScoreGain = gainSum / float64(agg.TotalRuns)

	if len(passingIterations) > 0 {
		sort.Ints(passingIterations)
		agg.P50Iterations = percentile(passingIterations, 50)
		agg.P95Iterations = percentile(passingIterations, 95)
	}
	return agg
}

// percentile calculates the Nth percentile from a sorted slice.
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
