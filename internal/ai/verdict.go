package ai

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/steveyegge/parity/internal/types"
)

const (
	placeholderArea  = "unspecified area"
	placeholderIssue = "unspecified difference"
)

// ParseError means a judge response held no recoverable JSON object.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "unusable judge response: " + e.Reason
}

// VerdictResult pairs a verdict with the parse error that produced it, if
// any. When Err is set the verdict is the failing stand-in from
// UnusableVerdict.
type VerdictResult struct {
	Verdict types.JudgeVerdict
	Err     error
}

// Usable reports whether the verdict came from the judge's own output.
func (r VerdictResult) Usable() bool {
	return r.Err == nil
}

// ParseVerdict reads a judge response into a JudgeVerdict. Malformed but
// readable responses are normalized: missing or non-numeric scores become
// 0 and are clamped to [0,100], unknown severities become medium, and
// missing text becomes a placeholder. Only a response with no JSON object
// at all is an error, returned as *ParseError alongside UnusableVerdict.
func ParseVerdict(text string) (types.JudgeVerdict, error) {
	result := Parse[map[string]any](text, ParseOptions{Context: "vision verdict"})
	if !result.Success || result.Data == nil {
		reason := result.Error
		if reason == "" {
			reason = "response is not a JSON object"
		}
		return UnusableVerdict(reason), &ParseError{Reason: reason, Raw: text}
	}
	return normalizeVerdict(result.Data), nil
}

// UnusableVerdict is the failing stand-in for a response that could not be
// read: no match, zero scores and a single high difference.
func UnusableVerdict(reason string) types.JudgeVerdict {
	return types.JudgeVerdict{
		Match: false,
		Differences: []types.Difference{{
			Area:     "judge response",
			Issue:    "judge output could not be parsed: " + reason,
			Severity: types.SeverityHigh,
			FixHint:  "re-run the judge for this view",
		}},
	}
}

func normalizeVerdict(raw map[string]any) types.JudgeVerdict {
	verdict := types.JudgeVerdict{
		Match:       boolValue(raw["match"]),
		Differences: []types.Difference{},
	}

	if scores, ok := raw["scores"].(map[string]any); ok {
		verdict.Scores = types.DimensionScores{
			Layout:     scoreValue(scores["layout"]),
			Spacing:    scoreValue(scores["spacing"]),
			Typography: scoreValue(scores["typography"]),
			Colors:     scoreValue(scores["colors"]),
			Controls:   scoreValue(scores["controls"]),
		}
	}

	diffs, _ := raw["differences"].([]any)
	for _, d := range diffs {
		m, ok := d.(map[string]any)
		if !ok {
			if s, isString := d.(string); isString && strings.TrimSpace(s) != "" {
				m = map[string]any{"issue": s}
			} else {
				continue
			}
		}
		verdict.Differences = append(verdict.Differences, types.Difference{
			Area:     stringValue(m["area"], placeholderArea),
			Issue:    stringValue(m["issue"], placeholderIssue),
			Severity: NormalizeSeverity(m["severity"]),
			FixHint:  stringValue(m["fixHint"], ""),
		})
	}

	return verdict
}

// NormalizeSeverity maps a judge-provided severity onto the known levels.
// Anything unrecognized is medium.
func NormalizeSeverity(v any) types.Severity {
	s, ok := v.(string)
	if !ok {
		return types.SeverityMedium
	}
	sev := types.Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return types.SeverityMedium
	}
	return sev
}

func scoreValue(v any) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(f))))
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

func stringValue(v any, placeholder string) string {
	switch s := v.(type) {
	case string:
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	case nil:
	default:
		return fmt.Sprint(s)
	}
	return placeholder
}

// IsViewPass is the per-view gate: the judge must report a match, every
// dimension score must reach floor, and no difference may be high or
// critical.
func IsViewPass(v types.JudgeVerdict, floor int) bool {
	if !v.Match {
		return false
	}
	for _, score := range v.Scores.Values() {
		if score < floor {
			return false
		}
	}
	for _, d := range v.Differences {
		if d.Severity.AtLeast(types.SeverityHigh) {
			return false
		}
	}
	return true
}
