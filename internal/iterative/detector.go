package iterative

import (
	"fmt"
	"math"
)

// PlateauDetector decides whether a run has stopped improving.
type PlateauDetector interface {
	// Check inspects every outcome so far and reports a plateau together
	// with a human-readable reason.
	Check(outcomes []Outcome) (stalled bool, reason string)
}

// ScoreWindowDetector flags a plateau when the best score of the last
// Window iterations is no better than the best score before them by at
// least MinGain points.
type ScoreWindowDetector struct {
	Window  int
	MinGain float64
}

// NewScoreWindowDetector creates a detector with defaults of a 2-iteration
// window and a 1-point minimum gain.
func NewScoreWindowDetector(window int, minGain float64) *ScoreWindowDetector {
	if window <= 0 {
		window = 2
	}
	if minGain <= 0 {
		minGain = 1
	}
	return &ScoreWindowDetector{Window: window, MinGain: minGain}
}

// Check implements PlateauDetector.
func (d *ScoreWindowDetector) Check(outcomes []Outcome) (bool, string) {
	if len(outcomes) <= d.Window {
		return false, ""
	}
	split := len(outcomes) - d.Window

	before := math.Inf(-1)
	for _, o := range outcomes[:split] {
		before = math.Max(before, o.Score)
	}
	recent := math.Inf(-1)
	for _, o := range outcomes[split:] {
		recent = math.Max(recent, o.Score)
	}

	if recent-before < d.MinGain {
		return true, fmt.Sprintf("best score %.1f over the last %d iterations vs %.1f before (gain below %.1f)",
			recent, d.Window, before, d.MinGain)
	}
	return false, ""
}
