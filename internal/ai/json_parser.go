// Package ai holds the vision judge used by parity runs: the Anthropic
// client wrapper, retry and circuit breaking around it, and tolerant
// parsing of the model's JSON verdicts.
package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled so each verdict parse doesn't pay for compilation.
var (
	// Matches ```json\n{...}\n```, ```{...}``` and similar, newlines optional.
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)(^|[,{\[])\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Greedy so nested structures are captured whole.
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseResult is the outcome of a tolerant JSON parse.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// ParseOptions configures Parse.
type ParseOptions struct {
	Context        string // prefixed to error messages
	DisableCleanup bool   // only try a direct parse
	Quiet          bool   // suppress debug logging of failed strategies
	MaxInputSize   int    // bytes; 0 uses the 10MB default
}

const defaultMaxInputSize = 10 * 1024 * 1024

// Parse attempts to decode JSON from model output, falling back through
// progressively more forgiving strategies:
//  1. Direct parse
//  2. Strip markdown code fences
//  3. Fix trailing commas, unquoted keys and comments
//  4. Extract the first object or array from mixed prose
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	var options ParseOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	maxSize := options.MaxInputSize
	if maxSize == 0 {
		maxSize = defaultMaxInputSize
	}

	if maxSize > 0 && len(text) > maxSize {
		return createError[T](
			fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxSize),
			truncate(text, 1000),
			options.Context,
		)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return createError[T]("empty input", text, options.Context)
	}

	result, err := tryDirectParse[T](trimmed)
	if err == nil {
		return success(result, text)
	}
	if options.DisableCleanup {
		return createError[T](err.Error(), text, options.Context)
	}

	if !options.Quiet {
		slog.Debug("direct JSON parse failed, trying cleanup strategies",
			"error", err.Error(),
			"textPreview", truncate(text, 100),
			"context", options.Context)
	}

	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](withoutFences); err == nil {
			return success(result, text)
		}
	}

	cleaned := cleanupJSON(withoutFences)
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return success(result, text)
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryDirectParse[T](extracted); err == nil {
			return success(result, text)
		}
		// the extracted span may itself carry trailing commas
		if result, err := tryDirectParse[T](cleanupJSON(extracted)); err == nil {
			return success(result, text)
		}
	}

	return createError[T]("all JSON parsing strategies failed", text, options.Context)
}

func success[T any](data T, text string) ParseResult[T] {
	return ParseResult[T]{Success: true, Data: data, OriginalText: text}
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown code fences, anchored first and then
// anywhere in the text, plus a single wrapping backtick pair.
func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}

	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}

	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes common model formatting slips. Single quotes are left
// alone: converting them would break values containing apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "$1")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls an object or array out of mixed content. The leading
// character decides which, so [{"a":1},{"b":2}] isn't cut down to one object.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		switch trimmed[0] {
		case '[':
			if match := arrayRegex.FindString(text); match != "" {
				return match
			}
		case '{':
			if match := objectRegex.FindString(text); match != "" {
				return match
			}
		}
	}

	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func createError[T any](message, text, context string) ParseResult[T] {
	errorMsg := message
	if context != "" {
		errorMsg = context + ": " + message
	}
	return ParseResult[T]{
		Success:      false,
		Error:        errorMsg,
		OriginalText: text,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
