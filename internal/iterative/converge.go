package iterative

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Converge runs iterations until the policy's stop condition fires.
//
// PolicyPassStop:
//  1. Runs up to MaxPasses iterations
//  2. Stops after a passing iteration when StopOnPass is set
//
// PolicyMinLoop:
//  1. Runs MinLoops iterations unconditionally
//  2. After the floor, stops unless ContinueUntilPass is set and the last
//     iteration failed
//  3. Never exceeds MaxIterations; if that is below MinLoops the floor is
//     reported as unmet
//
// Runner errors abort the run immediately. Cancellation is only observed
// between iterations. Pass nil to disable metrics collection.
func Converge(ctx context.Context, runner Runner, config Config, collector MetricsCollector) (*ConvergenceResult, error) {
	startTime := time.Now()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid convergence config: %w", err)
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	result := &ConvergenceResult{
		Policy:      config.Policy,
		MinLoopsMet: config.Policy == PolicyPassStop,
	}
	ceiling := config.Ceiling()

	for i := 1; i <= ceiling; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled after %d iterations: %w", i-1, err)
		}

		it := Iteration{Number: i, Focus: config.FocusFor(i)}
		if collector != nil {
			collector.RecordIterationStart(i)
		}
		slog.Info("iteration starting", "iteration", i, "ceiling", ceiling, "focus", it.Focus)

		iterationStart := time.Now()
		outcome, err := runner.RunIteration(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("iteration %d failed: %w", i, err)
		}
		outcome.Iteration = i
		outcome.Focus = it.Focus
		outcome.Duration = time.Since(iterationStart)

		result.Outcomes = append(result.Outcomes, outcome)
		result.Iterations = i
		result.Pass = outcome.Pass

		if collector != nil {
			collector.RecordIterationEnd(i, &IterationMetrics{
				Iteration: i,
				Focus:     it.Focus,
				Pass:      outcome.Pass,
				Score:     outcome.Score,
				Duration:  outcome.Duration,
			})
		}
		slog.Info("iteration finished",
			"iteration", i,
			"pass", outcome.Pass,
			"score", outcome.Score,
			"duration", outcome.Duration)

		if config.Detector != nil && !result.Plateaued {
			if stalled, reason := config.Detector.Check(result.Outcomes); stalled {
				result.Plateaued = true
				slog.Warn("scores have plateaued", "iteration", i, "reason", reason)
			}
		}

		if config.Policy == PolicyMinLoop && i >= config.MinLoops {
			result.MinLoopsMet = true
		}

		if reason, stop := shouldStop(config, i, outcome.Pass); stop {
			result.StopReason = reason
			break
		}
	}

	if result.StopReason == "" {
		// loop ran to the ceiling without an earlier stop
		if config.Policy == PolicyPassStop {
			result.StopReason = StopPassBudget
		} else {
			result.StopReason = StopCeilingReached
		}
	}
	result.ElapsedTime = time.Since(startTime)

	if collector != nil {
		collector.RecordRunComplete(result)
	}
	return result, nil
}

// shouldStop evaluates the early-stop rule after iteration i.
func shouldStop(config Config, i int, pass bool) (StopReason, bool) {
	switch config.Policy {
	case PolicyPassStop:
		if pass && config.StopOnPass {
			return StopPassed, true
		}
	case PolicyMinLoop:
		if i < config.MinLoops {
			return "", false
		}
		if !config.ContinueUntilPass {
			return StopMinLoopsDone, true
		}
		if pass {
			return StopPassed, true
		}
	}
	return "", false
}
