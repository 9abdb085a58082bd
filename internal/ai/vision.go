package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/steveyegge/parity/internal/cost"
	"github.com/steveyegge/parity/internal/types"
	"golang.org/x/time/rate"
)

// ModelSonnet is the default vision model.
const ModelSonnet = "claude-sonnet-4-5-20250929"

// ErrMissingCredential is returned when no API key is configured.
var ErrMissingCredential = errors.New("ANTHROPIC_API_KEY not set")

// MessageSender is the slice of the Anthropic client the judge needs.
// *anthropic.MessageService satisfies it.
type MessageSender interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// VisionConfig configures a VisionJudge.
type VisionConfig struct {
	APIKey            string // falls back to ANTHROPIC_API_KEY
	Model             string
	MaxTokens         int64
	RequestsPerMinute int // 0 = unlimited
	Ignore            []string
	Retry             RetryConfig
	Logger            *slog.Logger
	Sender            MessageSender // overrides the real client
	Budget            *cost.Tracker // optional; refuses calls once exhausted
}

// VisionJudge compares a local screenshot against a reference screenshot
// with a vision-capable model and returns a normalized verdict.
type VisionJudge struct {
	sender    MessageSender
	model     string
	maxTokens int64
	ignore    []string
	limiter   *rate.Limiter
	retry     *retrier
	budget    *cost.Tracker
	logger    *slog.Logger
}

// NewVisionJudge builds a judge. Without an injected sender it needs an
// API key, from the config or the environment.
func NewVisionJudge(cfg VisionConfig) (*VisionJudge, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sender := cfg.Sender
	if sender == nil {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, ErrMissingCredential
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		sender = &client.Messages
	}

	model := cfg.Model
	if model == "" {
		model = ModelSonnet
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &VisionJudge{
		sender:    sender,
		model:     model,
		maxTokens: maxTokens,
		ignore:    append([]string(nil), cfg.Ignore...),
		limiter:   limiter,
		retry:     newRetrier(retry, logger),
		budget:    cfg.Budget,
		logger:    logger,
	}, nil
}

// Comparison is one judging request.
type Comparison struct {
	View      string
	Local     []byte // PNG
	Reference []byte // PNG
}

// JudgeResult is the judge's answer for one Comparison.
type JudgeResult struct {
	Verdict      VerdictResult
	Raw          string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// Compare sends both screenshots in a single request. A transport failure
// (after retries) is returned as an error; a response that cannot be read
// as a verdict is not, and shows up in Verdict.Err instead.
func (j *VisionJudge) Compare(ctx context.Context, cmp Comparison) (JudgeResult, error) {
	if len(cmp.Local) == 0 || len(cmp.Reference) == 0 {
		return JudgeResult{}, fmt.Errorf("judge %s: both local and reference images are required", cmp.View)
	}

	if j.budget != nil {
		if err := j.budget.Check(cmp.View); err != nil {
			return JudgeResult{}, fmt.Errorf("judge %s: %w", cmp.View, err)
		}
	}
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return JudgeResult{}, fmt.Errorf("judge %s: rate limiter: %w", cmp.View, err)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(j.model),
		MaxTokens: j.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock("LOCAL screenshot (candidate):"),
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(cmp.Local)),
				anthropic.NewTextBlock("REFERENCE screenshot (target):"),
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(cmp.Reference)),
				anthropic.NewTextBlock(BuildPrompt(cmp.View, j.ignore)),
			),
		},
	}

	start := time.Now()
	var response *anthropic.Message
	err := j.retry.do(ctx, "judge "+cmp.View, func(attemptCtx context.Context) error {
		resp, err := j.sender.New(attemptCtx, params)
		if err != nil {
			return err
		}
		response = resp
		return nil
	})
	if err != nil {
		return JudgeResult{}, fmt.Errorf("judge %s: %w", cmp.View, err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	verdict, parseErr := ParseVerdict(text.String())
	if parseErr != nil {
		j.logger.Warn("vision verdict unusable", "view", cmp.View, "error", parseErr)
	}

	result := JudgeResult{
		Verdict:      VerdictResult{Verdict: verdict, Err: parseErr},
		Raw:          text.String(),
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		Duration:     time.Since(start),
	}
	if j.budget != nil {
		j.budget.RecordUsage(cmp.View, result.InputTokens, result.OutputTokens)
	}
	j.logger.Debug("vision verdict",
		"view", cmp.View,
		"match", verdict.Match,
		"differences", len(verdict.Differences),
		"inputTokens", result.InputTokens,
		"outputTokens", result.OutputTokens,
		"duration", result.Duration)
	return result, nil
}

// Judge is Compare for callers that only need the verdict. An unusable
// response yields UnusableVerdict together with a *ParseError.
func (j *VisionJudge) Judge(ctx context.Context, local, reference []byte, view string) (types.JudgeVerdict, string, error) {
	result, err := j.Compare(ctx, Comparison{View: view, Local: local, Reference: reference})
	if err != nil {
		return UnusableVerdict(err.Error()), "", err
	}
	return result.Verdict.Verdict, result.Raw, result.Verdict.Err
}

// BuildPrompt renders the fixed judging contract for one view.
func BuildPrompt(view string, ignore []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a strict visual QA reviewer. Compare the LOCAL screenshot against the REFERENCE screenshot for the %q view.\n\n", view)
	b.WriteString("Judge only layout, spacing, typography, colors and controls. ")
	b.WriteString("The LOCAL screenshot must be a pixel-faithful reproduction of the REFERENCE.\n")
	if len(ignore) > 0 {
		b.WriteString("\nIgnore these differences entirely:\n")
		for _, item := range ignore {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	b.WriteString(`
Respond with ONLY a JSON object, no prose and no code fences, in exactly this shape:
{
  "match": true | false,
  "scores": {"layout": 0-100, "spacing": 0-100, "typography": 0-100, "colors": 0-100, "controls": 0-100},
  "differences": [
    {"area": "where on screen", "issue": "what differs", "severity": "low" | "medium" | "high" | "critical", "fixHint": "how to fix the LOCAL side"}
  ]
}
Set "match" to true only if you would accept the LOCAL screenshot as identical for review purposes.`)
	return b.String()
}
