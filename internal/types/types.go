package types

import (
	"fmt"
	"strings"
	"time"
)

// Issue is a single design defect reported by a judge against one capture.
type Issue struct {
	JudgeID    Bucket   `json:"judgeId"`
	Area       string   `json:"area"`
	Issue      string   `json:"issue"`
	Expected   string   `json:"expected"`
	Actual     string   `json:"actual"`
	Severity   Severity `json:"severity"`
	ScoreDelta int      `json:"scoreDelta"`
	Route      string   `json:"route"`
	State      string   `json:"state"`
	Viewport   string   `json:"viewport"`
	Screenshot string   `json:"screenshot"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if !i.JudgeID.IsValid() {
		return fmt.Errorf("invalid judge id: %s", i.JudgeID)
	}
	if strings.TrimSpace(i.Area) == "" {
		return fmt.Errorf("area is required")
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.ScoreDelta < 0 {
		return fmt.Errorf("scoreDelta cannot be negative (got %d)", i.ScoreDelta)
	}
	return nil
}

// Severity ranks an individual issue or difference.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists severities from most to least severe.
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities: critical=3 ... low=0. Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0
	}
	return -1
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Bucket is a named heuristic scoring category. Each heuristic judge
// reports into exactly one bucket and is identified by it.
type Bucket string

const (
	BucketVisualHierarchy     Bucket = "visual_hierarchy"
	BucketTokenConsistency    Bucket = "token_consistency"
	BucketInteractionFeedback Bucket = "interaction_feedback"
	BucketDensityReadability  Bucket = "density_readability"
	BucketAccessibilityQuick  Bucket = "accessibility_quick"
)

// AllBuckets lists buckets in report order.
var AllBuckets = []Bucket{
	BucketVisualHierarchy,
	BucketTokenConsistency,
	BucketInteractionFeedback,
	BucketDensityReadability,
	BucketAccessibilityQuick,
}

// IsValid checks if the bucket value is valid
func (b Bucket) IsValid() bool {
	switch b {
	case BucketVisualHierarchy, BucketTokenConsistency, BucketInteractionFeedback,
		BucketDensityReadability, BucketAccessibilityQuick:
		return true
	}
	return false
}

// ScoreSummary is the scored outcome of one pass.
type ScoreSummary struct {
	Buckets       map[Bucket]int `json:"buckets"`
	WeightedTotal int            `json:"weightedTotal"`
	Pass          bool           `json:"pass"`
}

// SeverityCounts is a histogram of issues by severity.
type SeverityCounts map[Severity]int

// PassRun is the immutable record of one completed pass.
type PassRun struct {
	PassID     int            `json:"passId"`
	Focus      string         `json:"focus,omitempty"`
	Manifest   Manifest       `json:"manifest"`
	Issues     []Issue        `json:"issues"`
	Summary    ScoreSummary   `json:"summary"`
	BySeverity SeverityCounts `json:"bySeverity"`
	Warnings   []string       `json:"warnings,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// FixLogEntry records what happened between two passes.
type FixLogEntry struct {
	Iteration     int      `json:"iteration"`
	WeightedScore int      `json:"weightedScore"`
	Pass          bool     `json:"pass"`
	Actions       []string `json:"actions"`
}
