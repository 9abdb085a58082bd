package capture_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/capture/capturetest"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	desktop = types.Viewport{ID: "desktop", Width: 1440, Height: 900}
	mobile  = types.Viewport{ID: "mobile", Width: 390, Height: 844}
)

func newDriver(t *testing.T, clock *capturetest.Clock) *capture.Driver {
	t.Helper()
	cfg := config.Default()
	return capture.NewDriver(cfg, capture.WithClock(clock))
}

func eventsOf(events []capturetest.Event, op string) []capturetest.Event {
	var out []capturetest.Event
	for _, e := range events {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

func TestRunMatrix_OrderAndSkippedInteraction(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://127.0.0.1:5173",
		Routes:  []types.RouteMatrixEntry{{Path: "/a", States: []string{"default", "open"}}},
	}
	passDir := t.TempDir()

	manifest, observations, err := driver.RunMatrix(context.Background(), browser, matrix,
		[]types.Viewport{desktop, mobile}, 1, passDir)
	require.NoError(t, err)
	require.Len(t, manifest, 4)
	require.Len(t, observations, 4)

	want := []struct{ viewport, state string }{
		{"desktop", "default"},
		{"desktop", "open"},
		{"mobile", "default"},
		{"mobile", "open"},
	}
	for i, w := range want {
		shot := manifest[i]
		assert.Equal(t, "/a", shot.Route)
		assert.Equal(t, w.viewport, shot.Viewport)
		assert.Equal(t, w.state, shot.State)
		assert.Empty(t, shot.Error)
		assert.Equal(t, w.state == "open", shot.InteractionSkipped, "entry %d", i)
		assert.FileExists(t, shot.Path)
		assert.NotNil(t, observations[i].Signal)
	}

	assert.Equal(t, filepath.Join(passDir, "screenshots", "desktop__a__default.png"), manifest[0].Path)
	assert.Zero(t, browser.OpenPages())
	assert.Len(t, eventsOf(browser.Events(), "close"), 2)
}

func TestCapture_SettlesAfterNavigationAndInteraction(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["button"] = []string{"New document"}
	driver := newDriver(t, clock)
	start := clock.Now()

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173/",
		Routes:  []types.RouteMatrixEntry{{Path: "/docs", States: []string{"modal-open"}}},
	}
	manifest, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 2, t.TempDir())
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.False(t, manifest[0].InteractionSkipped)

	events := browser.Events()
	nav := eventsOf(events, "navigate")
	require.Len(t, nav, 1)
	assert.Equal(t, "http://localhost:5173/docs", nav[0].Arg)
	assert.Equal(t, start, nav[0].At)

	clicks := eventsOf(events, "click")
	require.Len(t, clicks, 1)
	assert.Equal(t, "New document", clicks[0].Arg)
	assert.Equal(t, start.Add(700*time.Millisecond), clicks[0].At)

	shots := eventsOf(events, "screenshot")
	require.Len(t, shots, 1)
	assert.Equal(t, start.Add(1400*time.Millisecond), shots[0].At)
}

func TestCapture_SettleStartsAtDOMReady(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["button"] = []string{"New document"}
	browser.LoadDelay = 650 * time.Millisecond
	driver := newDriver(t, clock)
	start := clock.Now()

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes:  []types.RouteMatrixEntry{{Path: "/docs", States: []string{"default", "modal-open"}}},
	}
	_, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)

	events := browser.Events()
	nav := eventsOf(events, "navigate")
	shots := eventsOf(events, "screenshot")
	clicks := eventsOf(events, "click")
	require.Len(t, nav, 2)
	require.Len(t, shots, 2)
	require.Len(t, clicks, 1)

	// default: DOM-ready at +650ms, then a full settle window
	assert.Equal(t, start, nav[0].At)
	assert.Equal(t, start.Add(1350*time.Millisecond), shots[0].At)

	// modal-open: settle after load, click, settle again
	ready := nav[1].At.Add(650 * time.Millisecond)
	assert.Equal(t, ready.Add(700*time.Millisecond), clicks[0].At)
	assert.Equal(t, ready.Add(1400*time.Millisecond), shots[1].At)
}

func TestRunMatrix_ViaSettlesAfterEachLoad(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["link"] = []string{"Settings"}
	browser.LoadDelay = 900 * time.Millisecond
	driver := newDriver(t, clock)
	start := clock.Now()

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes: []types.RouteMatrixEntry{{
			Path: "/settings",
			Via:  &types.NavigationPlan{From: "/", Role: "link", Name: "settings"},
		}},
	}
	_, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)

	events := browser.Events()
	clicks := eventsOf(events, "click")
	shots := eventsOf(events, "screenshot")
	require.Len(t, clicks, 1)
	require.Len(t, shots, 1)
	assert.Equal(t, start.Add(1600*time.Millisecond), clicks[0].At)
	assert.Equal(t, start.Add(2300*time.Millisecond), shots[0].At)
}

func TestRunMatrix_VariantsSkipNavigationPlan(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["link"] = []string{"Settings"}
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes: []types.RouteMatrixEntry{{
			Path:     "/settings",
			Variants: []string{"?tab=billing", "/settings/advanced"},
			Via:      &types.NavigationPlan{From: "/", Role: "link", Name: "settings"},
		}},
	}
	reqs := capture.Expand(matrix, "desktop", 1)
	require.Len(t, reqs, 3)
	require.NotNil(t, reqs[0].Via)
	assert.Equal(t, "http://localhost:5173/", reqs[0].Via.From)
	assert.Nil(t, reqs[1].Via)
	assert.Nil(t, reqs[2].Via)

	manifest, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)
	require.Len(t, manifest, 3)

	var urls []string
	for _, e := range eventsOf(browser.Events(), "navigate") {
		urls = append(urls, e.Arg)
	}
	assert.Equal(t, []string{
		"http://localhost:5173/",
		"http://localhost:5173/settings?tab=billing",
		"http://localhost:5173/settings/advanced",
	}, urls)
	assert.Len(t, eventsOf(browser.Events(), "click"), 1)
}

func TestCapture_PollsUntilControlAppears(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["textbox"] = []string{"Search reports"}
	browser.AppearAfter = 3
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes:  []types.RouteMatrixEntry{{Path: "/", States: []string{"filtered"}}},
	}
	manifest, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)
	assert.False(t, manifest[0].InteractionSkipped)

	fills := eventsOf(browser.Events(), "fill")
	require.Len(t, fills, 1)
	assert.Equal(t, "Search reports=report", fills[0].Arg)
}

func TestCapture_ControlNeverAppears(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	driver := newDriver(t, clock)
	start := clock.Now()

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes:  []types.RouteMatrixEntry{{Path: "/", States: []string{"drawer-open"}}},
	}
	manifest, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.True(t, manifest[0].InteractionSkipped)
	assert.Empty(t, manifest[0].Error)

	// settle, then the whole interaction timeout spent polling
	shots := eventsOf(browser.Events(), "screenshot")
	require.Len(t, shots, 1)
	assert.False(t, shots[0].At.Before(start.Add(700*time.Millisecond+2500*time.Millisecond)))
}

func TestRunMatrix_NavigationFailureIsRecorded(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Fail["http://localhost:5173/broken"] = errors.New("net::ERR_CONNECTION_REFUSED")
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes:  []types.RouteMatrixEntry{{Path: "/broken"}, {Path: "/ok"}},
	}
	manifest, observations, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)
	require.Len(t, manifest, 2)

	assert.Contains(t, manifest[0].Error, "ERR_CONNECTION_REFUSED")
	assert.Empty(t, manifest[0].Path)
	assert.Nil(t, observations[0].Signal)
	assert.Error(t, observations[0].Err)

	assert.Empty(t, manifest[1].Error)
	assert.NotNil(t, observations[1].Signal)
}

func TestRunMatrix_SignalFailureKeepsScreenshot(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.EvaluateErr = errors.New("script threw")
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{BaseURL: "http://localhost:5173", Routes: []types.RouteMatrixEntry{{Path: "/"}}}
	manifest, observations, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, manifest[0].Error)
	assert.FileExists(t, manifest[0].Path)
	assert.Nil(t, observations[0].Signal)
}

func TestRunMatrix_ViaFallsBackToDirectLoad(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes: []types.RouteMatrixEntry{{
			Path: "/settings",
			Via:  &types.NavigationPlan{From: "/", Role: "link", Name: "settings"},
		}},
	}
	_, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)

	nav := eventsOf(browser.Events(), "navigate")
	require.Len(t, nav, 2)
	assert.Equal(t, "http://localhost:5173/", nav[0].Arg)
	assert.Equal(t, "http://localhost:5173/settings", nav[1].Arg)
}

func TestRunMatrix_ViaClicksThrough(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["link"] = []string{"Settings"}
	driver := newDriver(t, clock)

	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes: []types.RouteMatrixEntry{{
			Path: "/settings",
			Via:  &types.NavigationPlan{From: "/", Role: "link", Name: "settings"},
		}},
	}
	_, _, err := driver.RunMatrix(context.Background(), browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	require.NoError(t, err)

	events := browser.Events()
	assert.Len(t, eventsOf(events, "navigate"), 1)
	assert.Len(t, eventsOf(events, "click"), 1)
}

func TestExpand_Variants(t *testing.T) {
	matrix := &types.RouteMatrix{
		BaseURL: "http://localhost:5173/",
		Routes: []types.RouteMatrixEntry{{
			Path:     "/reports",
			States:   []string{"default", "filtered"},
			Variants: []string{"?tab=archived", "/reports/2024", " "},
		}},
	}
	reqs := capture.Expand(matrix, "tablet", 3)
	require.Len(t, reqs, 6)

	var urls []string
	for _, r := range reqs {
		assert.Equal(t, "tablet", r.ViewportID)
		assert.Equal(t, 3, r.PassID)
		urls = append(urls, r.URL+" "+r.State)
	}
	assert.Equal(t, []string{
		"http://localhost:5173/reports default",
		"http://localhost:5173/reports filtered",
		"http://localhost:5173/reports?tab=archived default",
		"http://localhost:5173/reports?tab=archived filtered",
		"http://localhost:5173/reports/2024 default",
		"http://localhost:5173/reports/2024 filtered",
	}, urls)
}

func TestRunMatrix_InvalidMatrix(t *testing.T) {
	clock := capturetest.NewClock()
	driver := newDriver(t, clock)
	_, _, err := driver.RunMatrix(context.Background(), capturetest.NewBrowser(clock), &types.RouteMatrix{}, []types.Viewport{desktop}, 1, t.TempDir())
	assert.Error(t, err)
}

func TestRunMatrix_CanceledContext(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	driver := newDriver(t, clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matrix := &types.RouteMatrix{BaseURL: "http://localhost:5173", Routes: []types.RouteMatrixEntry{{Path: "/"}}}
	_, _, err := driver.RunMatrix(ctx, browser, matrix, []types.Viewport{desktop}, 1, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, browser.OpenPages())
}

func TestCaptureView(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["button"] = []string{"Comments", "Add comment"}
	driver := newDriver(t, clock)

	page, err := browser.NewPage(context.Background(), desktop)
	require.NoError(t, err)
	defer page.Close()

	steps := []config.Interaction{
		{Role: "button", Name: `comments?`, Action: config.ActionClick},
		{Role: "button", Name: `add comment`, Action: config.ActionClick},
	}
	png, err := driver.CaptureView(context.Background(), page, "http://localhost:5173/", steps)
	require.NoError(t, err)
	assert.Equal(t, browser.PNG, png)

	clicks := eventsOf(browser.Events(), "click")
	require.Len(t, clicks, 2)
	assert.Equal(t, "Comments", clicks[0].Arg)
	assert.Equal(t, "Add comment", clicks[1].Arg)
}

func TestCaptureView_SettlesAfterLoad(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	browser.Controls["button"] = []string{"Ask AI"}
	browser.LoadDelay = 700 * time.Millisecond
	driver := newDriver(t, clock)

	page, err := browser.NewPage(context.Background(), desktop)
	require.NoError(t, err)
	defer page.Close()

	start := clock.Now()
	_, err = driver.CaptureView(context.Background(), page, "http://localhost:5173/",
		[]config.Interaction{{Role: "button", Name: "ask ai", Action: config.ActionClick}})
	require.NoError(t, err)

	events := browser.Events()
	clicks := eventsOf(events, "click")
	shots := eventsOf(events, "screenshot")
	require.Len(t, clicks, 1)
	require.Len(t, shots, 1)
	assert.Equal(t, start.Add(1400*time.Millisecond), clicks[0].At)
	assert.Equal(t, start.Add(2100*time.Millisecond), shots[0].At)
}

func TestCaptureView_MissingControl(t *testing.T) {
	clock := capturetest.NewClock()
	browser := capturetest.NewBrowser(clock)
	driver := newDriver(t, clock)

	page, err := browser.NewPage(context.Background(), desktop)
	require.NoError(t, err)
	defer page.Close()

	_, err = driver.CaptureView(context.Background(), page, "http://localhost:5173/",
		[]config.Interaction{{Role: "button", Name: "ask ai", Action: config.ActionClick}})
	assert.ErrorIs(t, err, capture.ErrControlNotFound)
	assert.Empty(t, eventsOf(browser.Events(), "screenshot"))
}

func TestFileName(t *testing.T) {
	tests := []struct {
		req  types.CaptureRequest
		want string
	}{
		{types.CaptureRequest{Route: "/", State: "default", ViewportID: "desktop"}, "desktop__root__default.png"},
		{types.CaptureRequest{Route: "/reports?tab=2", State: "modal-open", ViewportID: "mobile"}, "mobile__reports-tab-2__modal-open.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, capture.FileName(tt.req))
	}
}
