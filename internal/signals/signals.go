// Package signals reads computed style and design-token facts out of a
// rendered page. Extraction is a single in-page script: it only reads,
// apart from moving focus to the first button and back.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steveyegge/parity/internal/types"
)

// Evaluator runs a script in the page and decodes its JSON result into out.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// TokenNames names the root custom properties holding the design tokens.
type TokenNames struct {
	Brand   string
	Neutral string
}

// extractScript is an IIFE. %s receives the JSON-encoded token names.
const extractScript = `(() => {
  const tokens = %s;
  const css = (el, prop) => el ? getComputedStyle(el).getPropertyValue(prop).trim() : "";
  const out = {
    bodyFontFamily: css(document.body, "font-family"),
    headingFontFamily: css(document.querySelector("h1, h2, h3"), "font-family"),
    bodyColor: css(document.body, "color"),
    focusableCount: document.querySelectorAll("button, a[href], input, select, textarea, [tabindex]:not([tabindex='-1'])").length,
    focusOutline: "",
    focusBoxShadow: "",
    hasFocusVisibleRule: false,
    hasDialog: false,
    dialogRadiusPx: 0,
    brandToken: "",
    neutralToken: "",
    skippedSheets: 0
  };

  const button = document.querySelector("button");
  if (button) {
    const previous = document.activeElement;
    button.focus();
    out.focusOutline = css(button, "outline");
    out.focusBoxShadow = css(button, "box-shadow");
    if (previous && previous !== document.body && typeof previous.focus === "function") {
      previous.focus();
    } else {
      button.blur();
    }
  }

  const scan = (rules) => {
    for (const rule of rules) {
      if (rule.cssRules && scan(rule.cssRules)) return true;
      const text = rule.cssText || "";
      if (text.includes(":focus-visible") && text.includes("box-shadow")) return true;
    }
    return false;
  };
  for (const sheet of Array.from(document.styleSheets)) {
    let rules;
    try {
      rules = sheet.cssRules;
    } catch (e) {
      out.skippedSheets++;
      continue;
    }
    if (rules && scan(rules)) {
      out.hasFocusVisibleRule = true;
      break;
    }
  }

  const dialog = document.querySelector("[role='dialog']");
  if (dialog) {
    out.hasDialog = true;
    out.dialogRadiusPx = parseFloat(css(dialog, "border-top-left-radius")) || 0;
  }

  const root = document.documentElement;
  if (tokens.brand) out.brandToken = css(root, tokens.brand);
  if (tokens.neutral) out.neutralToken = css(root, tokens.neutral);
  return out;
})()`

// Script returns the extraction script for the given token names.
func Script(tokens TokenNames) string {
	encoded, _ := json.Marshal(map[string]string{
		"brand":   tokens.Brand,
		"neutral": tokens.Neutral,
	})
	return fmt.Sprintf(extractScript, encoded)
}

// Extract evaluates the extraction script and normalizes the result.
func Extract(ctx context.Context, ev Evaluator, tokens TokenNames) (types.DomSignal, error) {
	var sig types.DomSignal
	if err := ev.Evaluate(ctx, Script(tokens), &sig); err != nil {
		return types.DomSignal{}, fmt.Errorf("extracting dom signals: %w", err)
	}
	return Normalize(sig), nil
}

// Normalize trims whitespace and lower-cases token values so judges compare
// like with like.
func Normalize(sig types.DomSignal) types.DomSignal {
	sig.BodyFontFamily = strings.TrimSpace(sig.BodyFontFamily)
	sig.HeadingFontFamily = strings.TrimSpace(sig.HeadingFontFamily)
	sig.BodyColor = strings.TrimSpace(sig.BodyColor)
	sig.FocusOutline = strings.TrimSpace(sig.FocusOutline)
	sig.FocusBoxShadow = strings.TrimSpace(sig.FocusBoxShadow)
	sig.BrandToken = strings.ToLower(strings.TrimSpace(sig.BrandToken))
	sig.NeutralToken = strings.ToLower(strings.TrimSpace(sig.NeutralToken))
	if sig.DialogRadiusPx < 0 {
		sig.DialogRadiusPx = 0
	}
	return sig
}
