package types

import "time"

// Logical parity views. Each has a frozen baseline image of the same name.
const (
	ViewClean       = "clean"
	ViewAIOpen      = "aiOpen"
	ViewCommentsAdd = "commentsAdd"
)

// DimensionScores are the vision judge's per-dimension scores, each in [0,100].
type DimensionScores struct {
	Layout     int `json:"layout"`
	Spacing    int `json:"spacing"`
	Typography int `json:"typography"`
	Colors     int `json:"colors"`
	Controls   int `json:"controls"`
}

// Values returns the five scores in a fixed order.
func (d DimensionScores) Values() []int {
	return []int{d.Layout, d.Spacing, d.Typography, d.Colors, d.Controls}
}

// Difference is a single mismatch reported by the vision judge.
type Difference struct {
	Area     string   `json:"area"`
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
	FixHint  string   `json:"fixHint"`
}

// JudgeVerdict is the normalized answer of the vision judge for one view.
type JudgeVerdict struct {
	Match       bool            `json:"match"`
	Scores      DimensionScores `json:"scores"`
	Differences []Difference    `json:"differences"`
}

// ReferenceSource records where a reference image came from.
type ReferenceSource string

const (
	ReferenceLive   ReferenceSource = "live"
	ReferenceFrozen ReferenceSource = "frozen"
)

// ViewResult is the judged outcome for one view in one iteration.
type ViewResult struct {
	View           string       `json:"view"`
	LocalImage     string       `json:"localImage"`
	ReferenceImage string       `json:"referenceImage"`
	Verdict        JudgeVerdict `json:"verdict"`
	Pass           bool         `json:"pass"`
	JudgeError     string       `json:"judgeError,omitempty"`
}

// IterationResult is written as judge-results.json for every parity iteration.
type IterationResult struct {
	Iteration       int                        `json:"iteration"`
	Focus           string                     `json:"focus"`
	ReferenceSource map[string]ReferenceSource `json:"referenceSource"`
	ReferenceErrors map[string]string          `json:"referenceErrors,omitempty"`
	Views           map[string]ViewResult      `json:"views"`
	Pass            bool                       `json:"pass"`
	StartedAt       time.Time                  `json:"startedAt"`
	FinishedAt      time.Time                  `json:"finishedAt"`
}

// RunSummary is written as run-summary.json at the end of a parity run.
type RunSummary struct {
	RunID         string            `json:"runId"`
	MinLoops      int               `json:"minLoops"`
	MaxIterations int               `json:"maxIterations"`
	MinLoopsMet   bool              `json:"minLoopsMet"`
	Pass          bool              `json:"pass"`
	StopReason    string            `json:"stopReason"`
	Iterations    []IterationResult `json:"iterations"`
}
