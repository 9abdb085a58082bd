// Package progress shows capture progress on an interactive terminal and
// stays silent everywhere else.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Manager starts progress tasks.
type Manager interface {
	StartTask(description string, total int) Task
	IsInteractive() bool
	Close()
}

// Task is one progress bar.
type Task interface {
	Increment(n int)
	Describe(description string)
	Complete()
}

// NewManager returns a bar-drawing manager when enabled and stderr is a
// terminal outside CI, and a no-op manager otherwise.
func NewManager(enabled bool) Manager {
	if enabled && IsInteractiveEnvironment() {
		return NewBarManager(os.Stderr)
	}
	return NoOpManager{}
}

// IsInteractiveEnvironment reports whether stderr is a terminal and the
// process is not running under CI.
func IsInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// BarManager draws progress bars to a writer.
type BarManager struct {
	writer io.Writer
	tasks  []*progressbar.ProgressBar
}

// NewBarManager draws bars to w regardless of the environment.
func NewBarManager(w io.Writer) *BarManager {
	return &BarManager{writer: w}
}

// StartTask creates a bar with a description and total count.
func (pm *BarManager) StartTask(description string, total int) Task {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(pm.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(18),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
	pm.tasks = append(pm.tasks, bar)
	return &barTask{bar: bar}
}

func (pm *BarManager) IsInteractive() bool { return true }

// Close finishes every bar still open.
func (pm *BarManager) Close() {
	for _, bar := range pm.tasks {
		_ = bar.Finish()
	}
	pm.tasks = nil
}

type barTask struct {
	bar *progressbar.ProgressBar
}

func (t *barTask) Increment(n int)             { _ = t.bar.Add(n) }
func (t *barTask) Describe(description string) { t.bar.Describe(description) }
func (t *barTask) Complete()                   { _ = t.bar.Finish() }

// NoOpManager implements Manager with no output.
type NoOpManager struct{}

func (NoOpManager) StartTask(string, int) Task { return NoOpTask{} }
func (NoOpManager) IsInteractive() bool        { return false }
func (NoOpManager) Close()                     {}

// NoOpTask implements Task with no output.
type NoOpTask struct{}

func (NoOpTask) Increment(int)   {}
func (NoOpTask) Describe(string) {}
func (NoOpTask) Complete()       {}
