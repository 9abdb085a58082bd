// Package cost tracks vision judge token usage against a per-run budget.
package cost

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a request would run past the budget.
var ErrBudgetExceeded = errors.New("vision budget exceeded")

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates usage past the alert threshold
	BudgetWarning
	// BudgetExceeded indicates a budget limit has been reached
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Tracker tracks token usage and enforces the configured limits. It is safe
// for concurrent use.
type Tracker struct {
	config Config
	logger *slog.Logger
	mu     sync.RWMutex

	tokensUsed int64
	costUsed   float64
	calls      int
	viewTokens map[string]int64
	started    time.Time
	updated    time.Time

	warningLogged  bool
	exceededLogged bool
}

// NewTracker creates a tracker for one run.
func NewTracker(cfg Config, logger *slog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budget config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Tracker{
		config:     cfg,
		logger:     logger,
		viewTokens: make(map[string]int64),
		started:    now,
		updated:    now,
	}, nil
}

// RecordUsage records the tokens of one judge call and returns the budget
// status afterwards.
func (t *Tracker) RecordUsage(view string, inputTokens, outputTokens int64) BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := inputTokens + outputTokens
	cost := t.calculateCost(inputTokens, outputTokens)
	t.tokensUsed += total
	t.costUsed += cost
	t.calls++
	if view != "" {
		t.viewTokens[view] += total
	}
	t.updated = time.Now()

	if !t.config.Enabled {
		return BudgetHealthy
	}
	status := t.statusLocked()
	t.logStatusLocked(status)
	return status
}

// CheckBudget returns the current budget status without recording usage.
func (t *Tracker) CheckBudget() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statusLocked()
}

// CanProceed reports whether another call for view fits in the budget,
// and if not, which limit stops it.
func (t *Tracker) CanProceed(view string) (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.runTokensExceeded() {
		return false, fmt.Sprintf("run token budget exceeded (%d/%d tokens used)",
			t.tokensUsed, t.config.MaxTokensPerRun)
	}
	if t.runCostExceeded() {
		return false, fmt.Sprintf("run cost budget exceeded ($%.2f/$%.2f used)",
			t.costUsed, t.config.MaxCostPerRun)
	}
	if view != "" && t.viewExceeded(view) {
		return false, fmt.Sprintf("token budget exceeded for view %s (%d/%d tokens used)",
			view, t.viewTokens[view], t.config.MaxTokensPerView)
	}
	return true, ""
}

// Check returns an error wrapping ErrBudgetExceeded when CanProceed fails.
func (t *Tracker) Check(view string) error {
	if ok, reason := t.CanProceed(view); !ok {
		return fmt.Errorf("%w: %s", ErrBudgetExceeded, reason)
	}
	return nil
}

// BudgetStats contains budget statistics
type BudgetStats struct {
	Status     BudgetStatus     `json:"status"`
	Calls      int              `json:"calls"`
	TokensUsed int64            `json:"tokens_used"`
	CostUsed   float64          `json:"cost_used"`
	ViewTokens map[string]int64 `json:"view_tokens"`
	StartedAt  time.Time        `json:"started_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Config     Config           `json:"config"`
}

// GetStats returns current budget statistics
func (t *Tracker) GetStats() BudgetStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := BudgetHealthy
	if t.config.Enabled {
		status = t.statusLocked()
	}
	return BudgetStats{
		Status:     status,
		Calls:      t.calls,
		TokensUsed: t.tokensUsed,
		CostUsed:   t.costUsed,
		ViewTokens: maps.Clone(t.viewTokens),
		StartedAt:  t.started,
		UpdatedAt:  t.updated,
		Config:     t.config,
	}
}

// statusLocked must be called with mu held.
func (t *Tracker) statusLocked() BudgetStatus {
	if t.runTokensExceeded() || t.runCostExceeded() {
		return BudgetExceeded
	}
	if t.config.MaxTokensPerRun > 0 &&
		float64(t.tokensUsed)/float64(t.config.MaxTokensPerRun) >= t.config.AlertThreshold {
		return BudgetWarning
	}
	if t.config.MaxCostPerRun > 0 && t.costUsed/t.config.MaxCostPerRun >= t.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}

func (t *Tracker) runTokensExceeded() bool {
	return t.config.MaxTokensPerRun > 0 && t.tokensUsed >= t.config.MaxTokensPerRun
}

func (t *Tracker) runCostExceeded() bool {
	return t.config.MaxCostPerRun > 0 && t.costUsed >= t.config.MaxCostPerRun
}

func (t *Tracker) viewExceeded(view string) bool {
	return t.config.MaxTokensPerView > 0 && t.viewTokens[view] >= t.config.MaxTokensPerView
}

// calculateCost calculates the cost in USD for given token usage
func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * t.config.InputTokenCost / 1_000_000
	outputCost := float64(outputTokens) * t.config.OutputTokenCost / 1_000_000
	return inputCost + outputCost
}

// logStatusLocked logs each threshold crossing once.
func (t *Tracker) logStatusLocked(status BudgetStatus) {
	switch status {
	case BudgetWarning:
		if !t.warningLogged {
			t.warningLogged = true
			t.logger.Warn("vision budget approaching limit",
				"tokens", t.tokensUsed, "cost", fmt.Sprintf("$%.2f", t.costUsed),
				"threshold", t.config.AlertThreshold)
		}
	case BudgetExceeded:
		if !t.exceededLogged {
			t.exceededLogged = true
			t.logger.Warn("vision budget exceeded; further judge calls are refused",
				"tokens", t.tokensUsed, "cost", fmt.Sprintf("$%.2f", t.costUsed))
		}
	}
}
