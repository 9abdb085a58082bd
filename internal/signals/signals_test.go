package signals

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/steveyegge/parity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvaluator decodes a canned JSON payload, the way a browser would.
type fakeEvaluator struct {
	payload string
	err     error
	script  string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, script string, out any) error {
	f.script = script
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func TestScript_EmbedsTokenNames(t *testing.T) {
	script := Script(TokenNames{Brand: "--color-brand", Neutral: "--color-neutral"})
	assert.Contains(t, script, `"brand":"--color-brand"`)
	assert.Contains(t, script, `"neutral":"--color-neutral"`)
	assert.True(t, strings.HasPrefix(script, "(() => {"))
	assert.NotContains(t, script, "%!")
}

func TestExtract_DecodesAndNormalizes(t *testing.T) {
	ev := &fakeEvaluator{payload: `{
		"bodyFontFamily": " Inter, sans-serif ",
		"headingFontFamily": "Inter",
		"bodyColor": "rgb(15, 23, 42)",
		"focusableCount": 4,
		"focusBoxShadow": "rgb(37, 99, 235) 0px 0px 0px 3px",
		"hasFocusVisibleRule": true,
		"hasDialog": true,
		"dialogRadiusPx": 16,
		"brandToken": " #2563EB ",
		"neutralToken": "#64748b",
		"skippedSheets": 1
	}`}

	sig, err := Extract(context.Background(), ev, TokenNames{Brand: "--b", Neutral: "--n"})
	require.NoError(t, err)

	assert.Equal(t, "Inter, sans-serif", sig.BodyFontFamily)
	assert.Equal(t, "#2563eb", sig.BrandToken)
	assert.Equal(t, 4, sig.FocusableCount)
	assert.True(t, sig.HasFocusVisible)
	assert.Equal(t, 16.0, sig.DialogRadiusPx)
	assert.Equal(t, 1, sig.SkippedSheets)
	assert.Contains(t, ev.script, `"--b"`)
}

func TestExtract_PropagatesEvaluatorError(t *testing.T) {
	ev := &fakeEvaluator{err: errors.New("target closed")}
	_, err := Extract(context.Background(), ev, TokenNames{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")
}

func TestNormalize_ClampsNegativeRadius(t *testing.T) {
	sig := Normalize(types.DomSignal{DialogRadiusPx: -4})
	assert.Equal(t, 0.0, sig.DialogRadiusPx)
}
