package judges

import (
	"fmt"
	"strings"

	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/types"
)

// VisualHierarchyJudge checks that body and heading text use the reference
// font families.
type VisualHierarchyJudge struct {
	BodyFamily    string
	HeadingFamily string
	Penalty       int
}

// NewVisualHierarchyJudge creates the judge from heuristic config.
func NewVisualHierarchyJudge(cfg config.HeuristicConfig) *VisualHierarchyJudge {
	return &VisualHierarchyJudge{
		BodyFamily:    cfg.BodyFontFamily,
		HeadingFamily: cfg.HeadingFontFamily,
		Penalty:       cfg.Penalties.FontFamily,
	}
}

// ID implements Judge.
func (j *VisualHierarchyJudge) ID() types.Bucket { return types.BucketVisualHierarchy }

// Philosophy implements Judge.
func (j *VisualHierarchyJudge) Philosophy() string {
	return "Typography establishes hierarchy; headings and body text use the system's type families."
}

// Evaluate implements Judge.
func (j *VisualHierarchyJudge) Evaluate(sig types.DomSignal) []types.Issue {
	var issues []types.Issue
	if !sameFamily(sig.BodyFontFamily, j.BodyFamily) {
		issues = append(issues, types.Issue{
			Area:       "body typography",
			Issue:      "body font family does not match the design system",
			Expected:   j.BodyFamily,
			Actual:     orUnset(sig.BodyFontFamily),
			ScoreDelta: j.Penalty,
		})
	}
	// Pages without headings have nothing to compare.
	if sig.HeadingFontFamily != "" && !sameFamily(sig.HeadingFontFamily, j.HeadingFamily) {
		issues = append(issues, types.Issue{
			Area:       "heading typography",
			Issue:      "heading font family does not match the design system",
			Expected:   j.HeadingFamily,
			Actual:     sig.HeadingFontFamily,
			ScoreDelta: j.Penalty,
		})
	}
	return issues
}

// TokenConsistencyJudge checks brand and neutral tokens against reference values.
type TokenConsistencyJudge struct {
	BrandHex       string
	NeutralHex     string
	BrandPenalty   int
	NeutralPenalty int
}

// NewTokenConsistencyJudge creates the judge from heuristic config.
func NewTokenConsistencyJudge(cfg config.HeuristicConfig) *TokenConsistencyJudge {
	return &TokenConsistencyJudge{
		BrandHex:       cfg.BrandHex,
		NeutralHex:     cfg.NeutralHex,
		BrandPenalty:   cfg.Penalties.BrandToken,
		NeutralPenalty: cfg.Penalties.NeutralToken,
	}
}

// ID implements Judge.
func (j *TokenConsistencyJudge) ID() types.Bucket { return types.BucketTokenConsistency }

// Philosophy implements Judge.
func (j *TokenConsistencyJudge) Philosophy() string {
	return "Color comes from tokens; a drifted token drifts every surface that uses it."
}

// Evaluate implements Judge.
func (j *TokenConsistencyJudge) Evaluate(sig types.DomSignal) []types.Issue {
	var issues []types.Issue
	if NormalizeColor(sig.BrandToken) != NormalizeColor(j.BrandHex) {
		issues = append(issues, types.Issue{
			Area:       "brand token",
			Issue:      "brand color token drifted from the reference value",
			Expected:   j.BrandHex,
			Actual:     orUnset(sig.BrandToken),
			ScoreDelta: j.BrandPenalty,
		})
	}
	if NormalizeColor(sig.NeutralToken) != NormalizeColor(j.NeutralHex) {
		issues = append(issues, types.Issue{
			Area:       "neutral token",
			Issue:      "neutral color token drifted from the reference value",
			Expected:   j.NeutralHex,
			Actual:     orUnset(sig.NeutralToken),
			ScoreDelta: j.NeutralPenalty,
		})
	}
	return issues
}

// InteractionFeedbackJudge checks that focused controls show a visible ring.
type InteractionFeedbackJudge struct {
	RingMarker string
	Penalty    int
}

// NewInteractionFeedbackJudge creates the judge from heuristic config.
func NewInteractionFeedbackJudge(cfg config.HeuristicConfig) *InteractionFeedbackJudge {
	return &InteractionFeedbackJudge{
		RingMarker: cfg.FocusRingMarker,
		Penalty:    cfg.Penalties.FocusRing,
	}
}

// ID implements Judge.
func (j *InteractionFeedbackJudge) ID() types.Bucket { return types.BucketInteractionFeedback }

// Philosophy implements Judge.
func (j *InteractionFeedbackJudge) Philosophy() string {
	return "Every interactive element acknowledges focus visibly."
}

// Evaluate implements Judge.
func (j *InteractionFeedbackJudge) Evaluate(sig types.DomSignal) []types.Issue {
	if sig.FocusableCount == 0 || sig.HasFocusVisible {
		return nil
	}
	if j.RingMarker != "" && strings.Contains(sig.FocusBoxShadow, j.RingMarker) {
		return nil
	}
	return []types.Issue{{
		Area:       "focus ring",
		Issue:      "no visible focus indicator on focusable controls",
		Expected:   fmt.Sprintf(":focus-visible box-shadow rule or a %s ring", j.RingMarker),
		Actual:     orUnset(sig.FocusBoxShadow),
		ScoreDelta: j.Penalty,
	}}
}

// DensityReadabilityJudge checks that body text has an explicit color.
type DensityReadabilityJudge struct {
	Penalty int
}

// NewDensityReadabilityJudge creates the judge from heuristic config.
func NewDensityReadabilityJudge(cfg config.HeuristicConfig) *DensityReadabilityJudge {
	return &DensityReadabilityJudge{Penalty: cfg.Penalties.BodyColor}
}

// ID implements Judge.
func (j *DensityReadabilityJudge) ID() types.Bucket { return types.BucketDensityReadability }

// Philosophy implements Judge.
func (j *DensityReadabilityJudge) Philosophy() string {
	return "Text is readable only when its color is deliberate."
}

// Evaluate implements Judge.
func (j *DensityReadabilityJudge) Evaluate(sig types.DomSignal) []types.Issue {
	if !isTransparent(sig.BodyColor) {
		return nil
	}
	return []types.Issue{{
		Area:       "body text color",
		Issue:      "body text color is unset or transparent",
		Expected:   "an opaque text color token",
		Actual:     orUnset(sig.BodyColor),
		ScoreDelta: j.Penalty,
	}}
}

// AccessibilityQuickJudge checks dialog corner radius against a floor.
type AccessibilityQuickJudge struct {
	MinRadiusPx float64
	Penalty     int
}

// NewAccessibilityQuickJudge creates the judge from heuristic config.
func NewAccessibilityQuickJudge(cfg config.HeuristicConfig) *AccessibilityQuickJudge {
	return &AccessibilityQuickJudge{
		MinRadiusPx: cfg.MinDialogRadiusPx,
		Penalty:     cfg.Penalties.DialogRadius,
	}
}

// ID implements Judge.
func (j *AccessibilityQuickJudge) ID() types.Bucket { return types.BucketAccessibilityQuick }

// Philosophy implements Judge.
func (j *AccessibilityQuickJudge) Philosophy() string {
	return "Modal surfaces read as distinct layers."
}

// Evaluate implements Judge.
func (j *AccessibilityQuickJudge) Evaluate(sig types.DomSignal) []types.Issue {
	if !sig.HasDialog || sig.DialogRadiusPx >= j.MinRadiusPx {
		return nil
	}
	return []types.Issue{{
		Area:       "dialog radius",
		Issue:      "dialog corner radius is below the minimum",
		Expected:   fmt.Sprintf(">= %gpx", j.MinRadiusPx),
		Actual:     fmt.Sprintf("%gpx", sig.DialogRadiusPx),
		ScoreDelta: j.Penalty,
	}}
}

func orUnset(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unset)"
	}
	return s
}
