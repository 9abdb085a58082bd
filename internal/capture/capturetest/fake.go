// Package capturetest provides a scripted in-memory browser and a manual
// clock for driving capture.Driver in tests.
package capturetest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/types"
)

// Clock is a manual clock. Sleep advances it instead of blocking.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Event is one recorded page operation.
type Event struct {
	Viewport string
	Op       string // navigate, click, fill, press, dragover, screenshot, evaluate, close
	Arg      string
	At       time.Time
}

// Browser is a scripted capture.Browser. Controls lists the role/name
// pairs visible on every page unless a URLControls entry whose key prefixes
// the current URL overrides it; Fail maps a URL to the error Navigate
// returns for it.
type Browser struct {
	Clock       *Clock
	Controls    map[string][]string // role -> accessible names
	URLControls map[string]map[string][]string
	Fail        map[string]error
	PNG         []byte
	Signal      types.DomSignal
	EvaluateErr error

	// LoadDelay is how far Navigate advances the clock before the page
	// reports DOM-ready.
	LoadDelay time.Duration

	// AppearAfter delays visibility of every control by this many
	// FindControl calls on a page.
	AppearAfter int

	mu     sync.Mutex
	events []Event
	open   int
	closed bool
}

// NewBrowser returns a browser where nothing is clickable.
func NewBrowser(clock *Clock) *Browser {
	return &Browser{
		Clock:       clock,
		Controls:    map[string][]string{},
		URLControls: map[string]map[string][]string{},
		Fail:        map[string]error{},
		PNG:         []byte("\x89PNG fake"),
	}
}

// Events returns every operation recorded so far.
func (b *Browser) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// OpenPages is the number of pages not yet closed.
func (b *Browser) OpenPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Browser) record(vp, op, arg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{Viewport: vp, Op: op, Arg: arg, At: b.Clock.Now()})
}

func (b *Browser) NewPage(ctx context.Context, vp types.Viewport) (capture.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("browser closed")
	}
	b.open++
	return &page{browser: b, viewport: vp.ID}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type page struct {
	browser  *Browser
	viewport string
	finds    int
	url      string
}

func (p *page) Navigate(ctx context.Context, url string) error {
	p.browser.record(p.viewport, "navigate", url)
	if err := p.browser.Fail[url]; err != nil {
		return err
	}
	p.browser.Clock.Advance(p.browser.LoadDelay)
	p.url = url
	p.finds = 0
	return nil
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	p.browser.record(p.viewport, "screenshot", p.url)
	return p.browser.PNG, nil
}

func (p *page) FindControl(ctx context.Context, role, namePattern string) (capture.Control, bool, error) {
	p.finds++
	if p.finds <= p.browser.AppearAfter {
		return nil, false, nil
	}
	re, err := regexp.Compile("(?i)" + namePattern)
	if err != nil {
		return nil, false, fmt.Errorf("bad name pattern %q: %w", namePattern, err)
	}
	for _, name := range p.controls()[strings.ToLower(role)] {
		if re.MatchString(name) {
			return &control{page: p, role: role, name: name}, true, nil
		}
	}
	return nil, false, nil
}

func (p *page) controls() map[string][]string {
	best := ""
	for prefix := range p.browser.URLControls {
		if strings.HasPrefix(p.url, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return p.browser.URLControls[best]
	}
	return p.browser.Controls
}

func (p *page) Evaluate(ctx context.Context, script string, out any) error {
	p.browser.record(p.viewport, "evaluate", "")
	if p.browser.EvaluateErr != nil {
		return p.browser.EvaluateErr
	}
	data, err := json.Marshal(p.browser.Signal)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *page) Close() error {
	p.browser.record(p.viewport, "close", "")
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.browser.open--
	return nil
}

type control struct {
	page *page
	role string
	name string
}

func (c *control) Click(ctx context.Context) error {
	c.page.browser.record(c.page.viewport, "click", c.name)
	return nil
}

func (c *control) Fill(ctx context.Context, text string) error {
	c.page.browser.record(c.page.viewport, "fill", c.name+"="+text)
	return nil
}

func (c *control) Press(ctx context.Context, key string) error {
	c.page.browser.record(c.page.viewport, "press", key)
	return nil
}

func (c *control) DragOver(ctx context.Context) error {
	c.page.browser.record(c.page.viewport, "dragover", c.name)
	return nil
}

func (c *control) String() string {
	return fmt.Sprintf("%s %q", c.role, c.name)
}
