package types

import "time"

// RunKind distinguishes the two run strategies in the history store.
type RunKind string

const (
	RunKindReview RunKind = "review"
	RunKindParity RunKind = "parity"
)

// RunRecord is one harness invocation as stored in run history.
type RunRecord struct {
	ID          string     `json:"id"`
	Kind        RunKind    `json:"kind"`
	Policy      string     `json:"policy"`
	OutDir      string     `json:"outDir"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Iterations  int        `json:"iterations"`
	Pass        bool       `json:"pass"`
	MinLoopsMet bool       `json:"minLoopsMet"`
	StopReason  string     `json:"stopReason,omitempty"`
}

// PassRecord is one pass or iteration of a run.
type PassRecord struct {
	RunID      string    `json:"runId"`
	Number     int       `json:"number"`
	Focus      string    `json:"focus"`
	Score      float64   `json:"score"`
	Pass       bool      `json:"pass"`
	IssueCount int       `json:"issueCount"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
