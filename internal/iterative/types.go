// Package iterative drives multi-pass runs until a stop condition fires.
//
// The controller owns the loop mechanics (counting, focus labels, stop
// conditions, metrics) while a pluggable Runner does the actual work of a
// pass: capture, judge, score and report.
//
// Example usage:
//
//	cfg := Config{
//	    Policy:            PolicyMinLoop,
//	    MinLoops:          3,
//	    MaxIterations:     7,
//	    ContinueUntilPass: true,
//	    FocusSchedule:     []string{"baseline parity sweep", "layout and spacing"},
//	}
//
//	result, err := Converge(ctx, runner, cfg, collector)
//	if !result.Succeeded() { ... }
package iterative

import (
	"context"
	"fmt"
	"time"
)

// Policy selects the stop rule.
type Policy string

const (
	// PolicyPassStop runs up to MaxPasses, stopping early on a pass when
	// StopOnPass is set.
	PolicyPassStop Policy = "pass-stop"

	// PolicyMinLoop runs at least MinLoops iterations and then continues
	// only while ContinueUntilPass is set and the run is still failing, up
	// to MaxIterations.
	PolicyMinLoop Policy = "min-loop"
)

// DefaultExtraFocus labels iterations beyond the focus schedule.
const DefaultExtraFocus = "extra refinement"

// StopReason explains why a run ended.
type StopReason string

const (
	StopPassed         StopReason = "passed"
	StopPassBudget     StopReason = "pass budget exhausted"
	StopMinLoopsDone   StopReason = "minimum loops completed"
	StopCeilingReached StopReason = "iteration ceiling reached"
)

// Config controls the iteration behaviour.
type Config struct {
	Policy Policy

	// PolicyPassStop
	MaxPasses  int
	StopOnPass bool

	// PolicyMinLoop
	MinLoops          int
	MaxIterations     int
	ContinueUntilPass bool

	// FocusSchedule labels iterations in order; ExtraFocus (or
	// DefaultExtraFocus) labels the rest.
	FocusSchedule []string
	ExtraFocus    string

	// Timeout bounds the whole run. Zero means no timeout.
	Timeout time.Duration

	// Detector, if set, is consulted after every iteration. It is advisory:
	// a plateau is reported on the result but never stops the run.
	Detector PlateauDetector
}

// Validate checks the config for the selected policy.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyPassStop:
		if c.MaxPasses <= 0 {
			return fmt.Errorf("MaxPasses must be positive (got %d)", c.MaxPasses)
		}
	case PolicyMinLoop:
		if c.MinLoops < 0 {
			return fmt.Errorf("MinLoops cannot be negative: %d", c.MinLoops)
		}
		if c.MaxIterations <= 0 {
			return fmt.Errorf("MaxIterations must be positive (got %d)", c.MaxIterations)
		}
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// Ceiling is the hard iteration limit for the policy.
func (c Config) Ceiling() int {
	if c.Policy == PolicyPassStop {
		return c.MaxPasses
	}
	return c.MaxIterations
}

// FocusFor returns the focus label of a 1-based iteration.
func (c Config) FocusFor(iteration int) string {
	if iteration >= 1 && iteration <= len(c.FocusSchedule) {
		return c.FocusSchedule[iteration-1]
	}
	if c.ExtraFocus != "" {
		return c.ExtraFocus
	}
	return DefaultExtraFocus
}

// Iteration identifies one pass handed to a Runner.
type Iteration struct {
	Number int
	Focus  string
}

// Outcome is what a Runner reports for one iteration.
type Outcome struct {
	Iteration int
	Focus     string
	Pass      bool
	// Score is a 0-100 summary used for metrics and plateau detection
	// (weighted total for review passes, mean view score for parity).
	Score    float64
	Duration time.Duration
}

// Runner performs one pass or iteration.
type Runner interface {
	RunIteration(ctx context.Context, it Iteration) (Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, it Iteration) (Outcome, error)

// RunIteration implements Runner.
func (f RunnerFunc) RunIteration(ctx context.Context, it Iteration) (Outcome, error) {
	return f(ctx, it)
}

// ConvergenceResult captures the outcome of a run.
type ConvergenceResult struct {
	Policy      Policy
	Iterations  int
	Pass        bool // verdict of the final iteration
	MinLoopsMet bool // always true for PolicyPassStop
	StopReason  StopReason
	Plateaued   bool
	Outcomes    []Outcome
	ElapsedTime time.Duration
}

// Succeeded reports whether the run should exit 0: the final iteration
// passed and, for PolicyMinLoop, the minimum-loop floor was reached.
func (r *ConvergenceResult) Succeeded() bool {
	if r == nil || !r.Pass {
		return false
	}
	return r.Policy != PolicyMinLoop || r.MinLoopsMet
}
