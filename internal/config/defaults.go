package config

import (
	"time"

	"github.com/steveyegge/parity/internal/cost"
	"github.com/steveyegge/parity/internal/types"
)

// Default returns a fresh configuration with the stock tuning constants.
//
// The numbers (severity cutoffs, bucket weights, the 85 and 98 floors) are
// tuning defaults. They carry no meaning beyond what the scorer encodes.
func Default() HarnessConfig {
	return HarnessConfig{
		Viewports: []types.Viewport{
			{ID: "desktop", Width: 1440, Height: 900},
			{ID: "tablet", Width: 1024, Height: 768},
			{ID: "mobile", Width: 390, Height: 844},
		},
		Capture: CaptureConfig{
			SettleDelay:        700 * time.Millisecond,
			NavigationTimeout:  30 * time.Second,
			InteractionTimeout: 2500 * time.Millisecond,
			PollInterval:       100 * time.Millisecond,
			Headless:           true,
		},
		Heuristics: HeuristicConfig{
			BodyFontFamily:    "Inter",
			HeadingFontFamily: "Inter",
			BrandTokenName:    "--color-brand",
			NeutralTokenName:  "--color-neutral",
			BrandHex:          "#2563eb",
			NeutralHex:        "#64748b",
			FocusRingMarker:   "3px",
			MinDialogRadiusPx: 12,
			Penalties: JudgePenalties{
				FontFamily:   10,
				BrandToken:   12,
				NeutralToken: 6,
				FocusRing:    6,
				BodyColor:    8,
				DialogRadius: 5,
			},
		},
		Scoring: ScoringConfig{
			CriticalAt: 15,
			HighAt:     10,
			MediumAt:   5,
			Penalties: map[types.Severity]int{
				types.SeverityLow:      3,
				types.SeverityMedium:   7,
				types.SeverityHigh:     14,
				types.SeverityCritical: 22,
			},
			Weights: map[types.Bucket]float64{
				types.BucketVisualHierarchy:     0.25,
				types.BucketTokenConsistency:    0.25,
				types.BucketInteractionFeedback: 0.2,
				types.BucketDensityReadability:  0.2,
				types.BucketAccessibilityQuick:  0.1,
			},
			BucketFloor: 85,
		},
		Parity: ParityConfig{
			LocalPort:   5173,
			BaselineDir: "baselines",
			Views: []ViewConfig{
				{Name: types.ViewClean, Path: "/", Baseline: "clean.png"},
				{
					Name: types.ViewAIOpen, Path: "/", Baseline: "aiOpen.png",
					Steps: []Interaction{{Role: "button", Name: `ask ai|ai assistant|^ai$`, Action: ActionClick}},
				},
				{
					Name: types.ViewCommentsAdd, Path: "/", Baseline: "commentsAdd.png",
					Steps: []Interaction{
						{Role: "button", Name: `comments?`, Action: ActionClick},
						{Role: "button", Name: `add comment|new comment`, Action: ActionClick},
					},
				},
			},
			ViewPassFloor:     98,
			Model:             "claude-sonnet-4-5-20250929",
			MaxTokens:         2048,
			RequestsPerMinute: 20,
			Ignore: []string{
				"decorative background overlays and gradients",
				"document/page content inside the viewer",
				"browser chrome, scrollbars and OS window decorations",
			},
			Budget: cost.DefaultConfig(),
		},
		Schedule: ScheduleConfig{
			Focus: []string{
				"baseline parity sweep",
				"layout and spacing",
				"typography",
				"color tokens",
				"controls and interaction states",
			},
			ExtraFocus: "extra refinement",
		},
		Report: ReportConfig{
			TopIssues: 15,
		},
		Interactions: map[string]Interaction{
			"drawer-open":   {Role: "button", Name: `menu|drawer|navigation`, Action: ActionClick},
			"modal-open":    {Role: "button", Name: `new|create|upload`, Action: ActionClick},
			"filtered":      {Role: "textbox", Name: `search|filter`, Action: ActionFill, Text: "report"},
			"dragover":      {Role: "region", Name: `drop|upload`, Action: ActionDragOver},
			"ai-open":       {Role: "button", Name: `ask ai|ai assistant`, Action: ActionClick},
			"comments-open": {Role: "button", Name: `comments?`, Action: ActionClick},
		},
	}
}
