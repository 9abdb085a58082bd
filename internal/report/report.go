// Package report writes pass, iteration and run artifacts to the output
// directory. Every file is rewritten whole, so a crash leaves the previous
// complete version in place.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names, relative to the output directory.
const (
	ManifestFile        = "screenshot-manifest.json"
	PassTrackerFile     = "gaps-tracker.json"
	ReviewReportFile    = "design_review_report.md"
	FixLogFile          = "fix_log.md"
	RunTrackerFile      = "gaps_tracker.json"
	JudgeResultsFile    = "judge-results.json"
	JudgeRawFile        = "judge-raw.jsonl.zst"
	RunSummaryFile      = "run-summary.json"
	defaultTopIssues    = 15
	passDirPattern      = "pass-%d"
	iterationDirPattern = "iteration-%d"
)

// Writer writes artifacts under OutDir.
type Writer struct {
	OutDir    string
	TopIssues int
}

// NewWriter creates a writer. topIssues <= 0 uses the default of 15.
func NewWriter(outDir string, topIssues int) *Writer {
	if topIssues <= 0 {
		topIssues = defaultTopIssues
	}
	return &Writer{OutDir: outDir, TopIssues: topIssues}
}

// PassDir is the directory of pass n.
func (w *Writer) PassDir(n int) string {
	return filepath.Join(w.OutDir, fmt.Sprintf(passDirPattern, n))
}

// IterationDir is the directory of parity iteration n.
func (w *Writer) IterationDir(n int) string {
	return filepath.Join(w.OutDir, fmt.Sprintf(iterationDirPattern, n))
}

// writeJSON writes v indented through a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
