package cost

import "fmt"

// Config holds vision judge budgeting configuration.
type Config struct {
	// Enabled controls whether budgeting is active.
	// Default: true
	Enabled bool `mapstructure:"enabled"`

	// MaxTokensPerRun caps input + output tokens across a whole run.
	// 0 = unlimited
	// Default: 400000 (seven iterations of three views with headroom)
	MaxTokensPerRun int64 `mapstructure:"max_tokens_per_run"`

	// MaxTokensPerView caps the tokens spent judging any one view.
	// 0 = unlimited
	MaxTokensPerView int64 `mapstructure:"max_tokens_per_view"`

	// MaxCostPerRun caps the estimated spend of a run in USD.
	// 0.0 = unlimited (use token limits instead)
	MaxCostPerRun float64 `mapstructure:"max_cost_per_run"`

	// AlertThreshold is the fraction of a limit that triggers a warning.
	// Default: 0.80
	AlertThreshold float64 `mapstructure:"alert_threshold"`

	// InputTokenCost is the cost per 1M input tokens (USD).
	InputTokenCost float64 `mapstructure:"input_token_cost"`

	// OutputTokenCost is the cost per 1M output tokens (USD).
	OutputTokenCost float64 `mapstructure:"output_token_cost"`
}

// DefaultConfig returns default budgeting configuration, priced for
// Claude Sonnet 4.5.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxTokensPerRun:  400000,
		MaxTokensPerView: 160000,
		MaxCostPerRun:    3.00,
		AlertThreshold:   0.80,
		InputTokenCost:   3.00,
		OutputTokenCost:  15.00,
	}
}

// Validate checks that the configuration has safe and reasonable values.
func (c Config) Validate() error {
	if c.MaxTokensPerRun < 0 {
		return fmt.Errorf("max_tokens_per_run must be non-negative, got %d", c.MaxTokensPerRun)
	}
	if c.MaxTokensPerView < 0 {
		return fmt.Errorf("max_tokens_per_view must be non-negative, got %d", c.MaxTokensPerView)
	}
	if c.MaxCostPerRun < 0 {
		return fmt.Errorf("max_cost_per_run must be non-negative, got %.2f", c.MaxCostPerRun)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.InputTokenCost < 0 {
		return fmt.Errorf("input_token_cost must be non-negative, got %.2f", c.InputTokenCost)
	}
	if c.OutputTokenCost < 0 {
		return fmt.Errorf("output_token_cost must be non-negative, got %.2f", c.OutputTokenCost)
	}
	return nil
}
