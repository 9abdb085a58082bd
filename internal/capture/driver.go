package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/signals"
	"github.com/steveyegge/parity/internal/types"
)

// ScreenshotDir is the per-pass directory holding PNGs.
const ScreenshotDir = "screenshots"

// Observation is everything known about one capture. Signal is nil when
// the capture or the extraction failed.
type Observation struct {
	Request CaptureRequest
	Shot    types.Screenshot
	Signal  *types.DomSignal
	Err     error
}

// CaptureRequest is a types.CaptureRequest plus how to reach the route.
type CaptureRequest struct {
	types.CaptureRequest
	URL string
	Via *types.NavigationPlan // From already resolved to an absolute URL
}

// Driver performs captures. It is sequential: one page at a time and no
// concurrent captures inside a page.
type Driver struct {
	capture      config.CaptureConfig
	interactions func(state string) (config.Interaction, bool)
	tokens       signals.TokenNames
	clock        Clock
	logger       *slog.Logger

	// OnCapture, if set, is called after every capture attempt.
	OnCapture func(Observation)
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver creates a driver from the harness config.
func NewDriver(cfg config.HarnessConfig, opts ...Option) *Driver {
	cfg = cfg.Clone()
	d := &Driver{
		capture:      cfg.Capture,
		interactions: cfg.InteractionFor,
		tokens: signals.TokenNames{
			Brand:   cfg.Heuristics.BrandTokenName,
			Neutral: cfg.Heuristics.NeutralTokenName,
		},
		clock:  RealClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunMatrix captures every viewport, route, state and path variant, in
// that nesting order, writing PNGs under passDir/screenshots. Each viewport
// gets its own page, closed before the next one opens. Failed captures are
// recorded in the manifest and observations but never abort the pass; only
// a failure to open a page or a canceled context does.
func (d *Driver) RunMatrix(ctx context.Context, browser Browser, matrix *types.RouteMatrix, viewports []types.Viewport, passID int, passDir string) (types.Manifest, []Observation, error) {
	if err := matrix.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid route matrix: %w", err)
	}
	shotDir := filepath.Join(passDir, ScreenshotDir)
	if err := os.MkdirAll(shotDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	var manifest types.Manifest
	var observations []Observation

	for _, vp := range viewports {
		err := d.withPage(ctx, browser, vp, func(page Page) error {
			for _, req := range Expand(matrix, vp.ID, passID) {
				if err := ctx.Err(); err != nil {
					return err
				}
				obs := d.Capture(ctx, page, req, shotDir)
				manifest = append(manifest, obs.Shot)
				observations = append(observations, obs)
				if d.OnCapture != nil {
					d.OnCapture(obs)
				}
			}
			return nil
		})
		if err != nil {
			return manifest, observations, fmt.Errorf("viewport %s: %w", vp.ID, err)
		}
	}

	return manifest, observations, nil
}

// withPage opens a page for vp and guarantees it is closed.
func (d *Driver) withPage(ctx context.Context, browser Browser, vp types.Viewport, fn func(Page) error) error {
	page, err := browser.NewPage(ctx, vp)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			d.logger.Warn("failed to close page", "viewport", vp.ID, "error", cerr)
		}
	}()
	return fn(page)
}

// Expand lists the capture requests of one viewport in capture order:
// routes, then states, then path variants with all of their states.
// Variants always load directly.
func Expand(matrix *types.RouteMatrix, viewportID string, passID int) []CaptureRequest {
	base := strings.TrimRight(matrix.BaseURL, "/")
	var reqs []CaptureRequest
	for _, entry := range matrix.Routes {
		paths := append([]string{entry.Path}, variantPaths(entry)...)
		var plan *types.NavigationPlan
		if entry.Via != nil {
			p := *entry.Via
			p.From = resolve(base, p.From)
			plan = &p
		}
		for i, path := range paths {
			// Variants are addressed by URL; only the route itself is
			// reached through its plan.
			var via *types.NavigationPlan
			if i == 0 {
				via = plan
			}
			for _, state := range entry.StatesOrDefault() {
				reqs = append(reqs, CaptureRequest{
					CaptureRequest: types.CaptureRequest{
						Route:      path,
						State:      state,
						ViewportID: viewportID,
						PassID:     passID,
					},
					URL: resolve(base, path),
					Via: via,
				})
			}
		}
	}
	return reqs
}

// variantPaths turns variants into paths: one starting with "/" replaces
// the route path, anything else ("?tab=2", "#top") is appended to it.
func variantPaths(entry types.RouteMatrixEntry) []string {
	out := make([]string, 0, len(entry.Variants))
	for _, v := range entry.Variants {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
		case strings.HasPrefix(v, "/"):
			out = append(out, v)
		default:
			out = append(out, entry.Path+v)
		}
	}
	return out
}

func resolve(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Capture takes one screenshot and extracts its DOM signal. Navigation and
// screenshot failures are returned in Observation.Err; a missing
// interaction target only sets InteractionSkipped.
func (d *Driver) Capture(ctx context.Context, page Page, req CaptureRequest, shotDir string) Observation {
	obs := Observation{
		Request: req,
		Shot: types.Screenshot{
			Route:    req.Route,
			State:    req.State,
			Viewport: req.ViewportID,
		},
	}
	fail := func(err error) Observation {
		obs.Err = err
		obs.Shot.Error = err.Error()
		obs.Shot.CapturedAt = d.clock.Now()
		d.logger.Warn("capture failed", "key", req.Key(), "error", err)
		return obs
	}

	last, err := d.navigate(ctx, page, req)
	if err != nil {
		return fail(err)
	}

	if req.State != types.DefaultState {
		interaction, ok := d.interactions(req.State)
		if !ok {
			d.logger.Warn("no interaction configured for state, taking default capture", "state", req.State, "key", req.Key())
			obs.Shot.InteractionSkipped = true
		} else {
			if err := d.settle(ctx, last); err != nil {
				return fail(err)
			}
			acted, err := d.interact(ctx, page, interaction)
			switch {
			case err != nil:
				d.logger.Warn("interaction failed, taking default capture", "state", req.State, "key", req.Key(), "error", err)
				obs.Shot.InteractionSkipped = true
			case !acted:
				d.logger.Warn("interaction target not visible, taking default capture", "state", req.State, "key", req.Key(),
					"role", interaction.Role, "name", interaction.Name)
				obs.Shot.InteractionSkipped = true
			default:
				last = d.clock.Now()
			}
		}
	}

	if err := d.settle(ctx, last); err != nil {
		return fail(err)
	}

	png, err := page.Screenshot(ctx)
	if err != nil {
		return fail(fmt.Errorf("screenshot failed: %w", err))
	}
	obs.Shot.CapturedAt = d.clock.Now()

	path := filepath.Join(shotDir, FileName(req.CaptureRequest))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return fail(fmt.Errorf("failed to write screenshot: %w", err))
	}
	obs.Shot.Path = path

	sig, err := signals.Extract(ctx, page, d.tokens)
	if err != nil {
		d.logger.Warn("signal extraction failed", "key", req.Key(), "error", err)
		obs.Err = err
		return obs
	}
	obs.Signal = &sig
	return obs
}

// navigate loads the route directly or through its navigation plan and
// returns the time the page became ready (DOM-ready or the click-through). A plan whose control is
// missing falls back to a direct load.
func (d *Driver) navigate(ctx context.Context, page Page, req CaptureRequest) (time.Time, error) {
	if req.Via != nil {
		if err := d.load(ctx, page, req.Via.From); err != nil {
			return time.Time{}, err
		}
		if err := d.settle(ctx, d.clock.Now()); err != nil {
			return time.Time{}, err
		}
		acted, err := d.interact(ctx, page, config.Interaction{Role: req.Via.Role, Name: req.Via.Name, Action: config.ActionClick})
		if err == nil && acted {
			return d.clock.Now(), nil
		}
		d.logger.Warn("navigation plan failed, loading route directly",
			"key", req.Key(), "from", req.Via.From, "name", req.Via.Name, "error", err)
	}

	if err := d.load(ctx, page, req.URL); err != nil {
		return time.Time{}, err
	}
	return d.clock.Now(), nil
}

func (d *Driver) load(ctx context.Context, page Page, url string) error {
	navCtx := ctx
	if d.capture.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.capture.NavigationTimeout)
		defer cancel()
	}
	if err := page.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// settle blocks until SettleDelay has elapsed since `since`.
func (d *Driver) settle(ctx context.Context, since time.Time) error {
	remaining := d.capture.SettleDelay - d.clock.Now().Sub(since)
	if remaining <= 0 {
		return nil
	}
	return d.clock.Sleep(ctx, remaining)
}

// interact polls for the control until InteractionTimeout and performs the
// action. It reports false, with no error, when the control never showed up.
func (d *Driver) interact(ctx context.Context, page Page, in config.Interaction) (bool, error) {
	control, found, err := d.waitForControl(ctx, page, in.Role, in.Name)
	if err != nil || !found {
		return false, err
	}

	switch in.Action {
	case "", config.ActionClick:
		err = control.Click(ctx)
	case config.ActionFill:
		err = control.Fill(ctx, in.Text)
	case config.ActionPress:
		err = control.Press(ctx, in.Text)
	case config.ActionDragOver:
		err = control.DragOver(ctx)
	default:
		err = fmt.Errorf("unknown interaction action %q", in.Action)
	}
	if err != nil {
		return false, fmt.Errorf("%s on %s: %w", in.Action, control, err)
	}
	return true, nil
}

func (d *Driver) waitForControl(ctx context.Context, page Page, role, name string) (Control, bool, error) {
	deadline := d.clock.Now().Add(d.capture.InteractionTimeout)
	poll := d.capture.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	for {
		control, found, err := page.FindControl(ctx, role, name)
		if err != nil {
			return nil, false, err
		}
		if found {
			return control, true, nil
		}
		if !d.clock.Now().Before(deadline) {
			return nil, false, nil
		}
		if err := d.clock.Sleep(ctx, poll); err != nil {
			return nil, false, err
		}
	}
}

// CaptureView loads url, performs every step and returns a screenshot.
// Unlike matrix captures, steps are required: a step whose control never
// appears fails with ErrControlNotFound.
func (d *Driver) CaptureView(ctx context.Context, page Page, url string, steps []config.Interaction) ([]byte, error) {
	if err := d.load(ctx, page, url); err != nil {
		return nil, err
	}
	last := d.clock.Now()
	for i, step := range steps {
		if err := d.settle(ctx, last); err != nil {
			return nil, err
		}
		acted, err := d.interact(ctx, page, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if !acted {
			return nil, fmt.Errorf("step %d: %w: role=%s name=%q", i+1, ErrControlNotFound, step.Role, step.Name)
		}
		last = d.clock.Now()
	}
	if err := d.settle(ctx, last); err != nil {
		return nil, err
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return png, nil
}

// WithPage opens a page for vp, runs fn and closes the page.
func (d *Driver) WithPage(ctx context.Context, browser Browser, vp types.Viewport, fn func(Page) error) error {
	return d.withPage(ctx, browser, vp, fn)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FileName is the PNG name of a capture, unique within a pass directory.
func FileName(req types.CaptureRequest) string {
	route := strings.Trim(unsafeChars.ReplaceAllString(req.Route, "-"), "-")
	if route == "" {
		route = "root"
	}
	state := strings.Trim(unsafeChars.ReplaceAllString(req.State, "-"), "-")
	return fmt.Sprintf("%s__%s__%s.png", req.ViewportID, route, state)
}
