package judges

import (
	"fmt"
	"sync"

	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/types"
)

// Pool holds the registered judges and runs them against a capture.
// Judges run in registration order so issue lists are deterministic.
type Pool struct {
	mu         sync.RWMutex
	judges     []Judge
	byID       map[types.Bucket]Judge
	classifier Classifier
}

// NewPool creates an empty pool using the given severity classifier.
func NewPool(classifier Classifier) *Pool {
	return &Pool{
		byID:       make(map[types.Bucket]Judge),
		classifier: classifier,
	}
}

// NewDefaultPool creates a pool with the five stock judges, configured from cfg.
func NewDefaultPool(cfg config.HarnessConfig) *Pool {
	pool := NewPool(Classifier{
		CriticalAt: cfg.Scoring.CriticalAt,
		HighAt:     cfg.Scoring.HighAt,
		MediumAt:   cfg.Scoring.MediumAt,
	})
	h := cfg.Heuristics
	for _, j := range []Judge{
		NewVisualHierarchyJudge(h),
		NewTokenConsistencyJudge(h),
		NewInteractionFeedbackJudge(h),
		NewDensityReadabilityJudge(h),
		NewAccessibilityQuickJudge(h),
	} {
		// Stock judges have distinct ids; Register cannot fail here.
		_ = pool.Register(j)
	}
	return pool
}

// Register adds a judge. Each bucket can have at most one judge.
func (p *Pool) Register(judge Judge) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := judge.ID()
	if _, exists := p.byID[id]; exists {
		return fmt.Errorf("judge %q already registered", id)
	}
	p.byID[id] = judge
	p.judges = append(p.judges, judge)
	return nil
}

// Get returns a registered judge by id.
func (p *Pool) Get(id types.Bucket) (Judge, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	judge, ok := p.byID[id]
	return judge, ok
}

// IDs returns the registered judge ids in registration order.
func (p *Pool) IDs() []types.Bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]types.Bucket, 0, len(p.judges))
	for _, j := range p.judges {
		ids = append(ids, j.ID())
	}
	return ids
}

// Evaluate runs every judge against one capture and stamps each issue with
// its severity and the capture it came from.
func (p *Pool) Evaluate(sig types.DomSignal, shot types.Screenshot) []types.Issue {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var issues []types.Issue
	for _, judge := range p.judges {
		for _, issue := range judge.Evaluate(sig) {
			issue.JudgeID = judge.ID()
			issue.Severity = p.classifier.Classify(issue.ScoreDelta)
			issue.Route = shot.Route
			issue.State = shot.State
			issue.Viewport = shot.Viewport
			issue.Screenshot = shot.Path
			issues = append(issues, issue)
		}
	}
	return issues
}
