package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/parity/internal/storage"
	"github.com/steveyegge/parity/internal/types"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs, or the passes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	if dbPath == "" {
		return fmt.Errorf("run history is disabled (--db is empty)")
	}

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeHistory(history)

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return showRun(cmd, history, args[0])
	}

	runs, err := history.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", cyan("=== Run History ==="))
	if len(runs) == 0 {
		fmt.Fprintf(out, "  %s\n\n", gray("No runs recorded"))
		return nil
	}
	for _, run := range runs {
		printRunLine(out, run)
	}
	fmt.Fprintln(out)
	return nil
}

func showRun(cmd *cobra.Command, history storage.History, id string) error {
	ctx := cmd.Context()
	run, err := history.GetRun(ctx, id)
	if err != nil {
		return err
	}
	passes, err := history.GetPasses(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load passes: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", cyan("=== Run "+run.ID+" ==="))
	printRunLine(out, run)
	fmt.Fprintf(out, "    Output:  %s\n", run.OutDir)
	fmt.Fprintf(out, "    Stopped: %s\n\n", run.StopReason)
	for _, p := range passes {
		fmt.Fprintf(out, "  %s %2d  score %5.1f  %3d issues  %s %s\n",
			verdict(p.Pass), p.Number, p.Score, p.IssueCount,
			p.FinishedAt.Sub(p.StartedAt).Round(time.Millisecond), gray(p.Focus))
	}
	fmt.Fprintln(out)
	return nil
}

func printRunLine(w io.Writer, run *types.RunRecord) {
	status := yellow("RUNNING")
	if run.FinishedAt != nil {
		status = verdict(run.Pass)
	}
	fmt.Fprintf(w, "  %s %s  %-6s %-9s %2d iterations  %s\n",
		status, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Kind, run.Policy, run.Iterations, gray(run.ID))
}
