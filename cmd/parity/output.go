package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/parity/internal/cost"
	"github.com/steveyegge/parity/internal/iterative"
	"github.com/steveyegge/parity/internal/types"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func verdict(pass bool) string {
	if pass {
		return green("PASS")
	}
	return red("FAIL")
}

// printConvergence prints the run-level outcome shared by both loops.
func printConvergence(w io.Writer, title string, result *iterative.ConvergenceResult, collector *iterative.InMemoryMetricsCollector, outDir string) {
	fmt.Fprintf(w, "\n%s\n", cyan("=== "+title+" ==="))
	if result == nil {
		fmt.Fprintf(w, "  %s\n\n", red("run did not complete"))
		return
	}

	fmt.Fprintf(w, "  Result:     %s\n", verdict(result.Succeeded()))
	fmt.Fprintf(w, "  Iterations: %d\n", result.Iterations)
	fmt.Fprintf(w, "  Stopped:    %s\n", result.StopReason)
	if result.Policy == iterative.PolicyMinLoop && !result.MinLoopsMet {
		fmt.Fprintf(w, "  %s\n", yellow("minimum loop count not reached"))
	}
	if result.Plateaued {
		fmt.Fprintf(w, "  %s\n", yellow("score plateaued"))
	}

	if collector != nil {
		if runs := collector.GetRuns(); len(runs) > 0 {
			last := runs[len(runs)-1]
			fmt.Fprintf(w, "  Score:      %.1f → %.1f (%+.1f)\n", last.FirstScore, last.FinalScore, last.ScoreGain())
			fmt.Fprintf(w, "  Duration:   %s\n", last.TotalDuration.Round(time.Millisecond))
		}
	}
	fmt.Fprintf(w, "  Artifacts:  %s\n\n", outDir)
}

// printPasses lists every review pass with its weighted score and warnings.
func printPasses(w io.Writer, passes []types.PassRun) {
	for _, p := range passes {
		fmt.Fprintf(w, "  %s pass %d %s weighted %d, %d issues\n",
			verdict(p.Summary.Pass), p.PassID, gray("("+p.Focus+")"), p.Summary.WeightedTotal, len(p.Issues))
		if verbose {
			for _, warning := range p.Warnings {
				fmt.Fprintf(w, "      %s %s\n", yellow("⚠"), warning)
			}
		}
	}
}

// printIterations lists every parity iteration with per-view verdicts.
func printIterations(w io.Writer, iterations []types.IterationResult) {
	for _, it := range iterations {
		fmt.Fprintf(w, "  %s iteration %d %s\n", verdict(it.Pass), it.Iteration, gray("("+it.Focus+")"))
		views := make([]string, 0, len(it.Views))
		for name := range it.Views {
			views = append(views, name)
		}
		slices.Sort(views)
		for _, name := range views {
			vr := it.Views[name]
			source := it.ReferenceSource[name]
			line := fmt.Sprintf("      %-12s %s ref=%s", name, verdict(vr.Pass), source)
			if vr.JudgeError != "" {
				line += " " + gray(vr.JudgeError)
			}
			fmt.Fprintln(w, line)
		}
	}
}

// printBudget reports vision judge spend for the run.
func printBudget(w io.Writer, stats cost.BudgetStats) {
	status := green(stats.Status.String())
	switch stats.Status {
	case cost.BudgetWarning:
		status = yellow(stats.Status.String())
	case cost.BudgetExceeded:
		status = red(stats.Status.String())
	}
	fmt.Fprintf(w, "  Vision budget: %s  %d calls, %d tokens, ~$%.2f\n",
		status, stats.Calls, stats.TokensUsed, stats.CostUsed)
}
