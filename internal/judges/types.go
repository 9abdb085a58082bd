package judges

import (
	"github.com/steveyegge/parity/internal/types"
)

// Judge is a pure heuristic evaluator. Each judge embodies one design
// principle and reports into exactly one scoring bucket.
type Judge interface {
	// ID returns the bucket this judge scores; it doubles as the judge id.
	ID() types.Bucket

	// Philosophy returns the principle the judge checks, for reports.
	Philosophy() string

	// Evaluate inspects one capture's signals and returns zero or more
	// issues. Implementations fill JudgeID, Area, Issue, Expected, Actual
	// and ScoreDelta; the pool stamps severity and capture context.
	Evaluate(sig types.DomSignal) []types.Issue
}

// Classifier maps a scoreDelta to a severity using fixed cutoffs.
type Classifier struct {
	CriticalAt int
	HighAt     int
	MediumAt   int
}

// DefaultClassifier uses the stock cutoffs 15/10/5.
var DefaultClassifier = Classifier{CriticalAt: 15, HighAt: 10, MediumAt: 5}

// Classify ranks an individual issue. This is not the bucket penalty
// table; both live on the same numeric scale for different purposes.
func (c Classifier) Classify(scoreDelta int) types.Severity {
	switch {
	case scoreDelta >= c.CriticalAt:
		return types.SeverityCritical
	case scoreDelta >= c.HighAt:
		return types.SeverityHigh
	case scoreDelta >= c.MediumAt:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// ClassifySeverity classifies with the default cutoffs.
func ClassifySeverity(scoreDelta int) types.Severity {
	return DefaultClassifier.Classify(scoreDelta)
}
