// Package chrome implements capture.Browser on headless Chrome via chromedp.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/steveyegge/parity/internal/capture"
	"github.com/steveyegge/parity/internal/config"
	"github.com/steveyegge/parity/internal/types"
)

// controlAttr marks elements returned by FindControl so later actions can
// address them with a plain CSS selector.
const controlAttr = "data-parity-control"

// Browser is one Chrome process. Pages are isolated browser contexts.
type Browser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *slog.Logger
}

// Launch starts Chrome according to cfg.
func Launch(ctx context.Context, cfg config.CaptureConfig, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-color-profile", "srgb"),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	// Chrome outlives individual calls; it is bound to Close, not ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	// First Run starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &Browser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewPage opens a fresh browser context sized to vp.
func (b *Browser) NewPage(ctx context.Context, vp types.Viewport) (capture.Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	p := &Page{ctx: tabCtx, cancel: cancel, viewport: vp}

	if err := p.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to size page to %dx%d: %w", vp.Width, vp.Height, err)
	}
	return p, nil
}

// Close terminates Chrome.
func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

// Page is one chromedp target.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	viewport types.Viewport
	nextID   int
}

// run executes actions on the tab while honoring the caller's deadline and
// cancellation. Canceling a child of the tab context leaves the tab open.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// quality 100 yields PNG
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out, awaitPromise))
}

func awaitPromise(params *runtime.EvaluateParams) *runtime.EvaluateParams {
	return params.WithAwaitPromise(true)
}

// findScript tags the first visible element with the given role whose
// accessible name matches the pattern. Arguments: role, pattern, marker id.
const findScript = `((role, pattern, id) => {
  const implicit = {
    button: 'button, input[type=button], input[type=submit], input[type=reset], summary',
    link: 'a[href]',
    textbox: 'input:not([type]), input[type=text], input[type=search], input[type=email], input[type=url], textarea',
    searchbox: 'input[type=search]',
    checkbox: 'input[type=checkbox]',
    dialog: 'dialog',
    region: 'section[aria-label], section[aria-labelledby]',
    navigation: 'nav',
    heading: 'h1, h2, h3, h4, h5, h6',
    tab: '',
    menuitem: '',
  };
  const selector = '[role="' + role + '"]' + (implicit[role] ? ', ' + implicit[role] : '');
  let re;
  try { re = new RegExp(pattern, 'i'); } catch (e) { return ''; }
  const nameOf = (el) => {
    const label = el.getAttribute('aria-label');
    if (label) return label;
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const text = by.split(/\s+/).map((ref) => document.getElementById(ref)?.textContent || '').join(' ').trim();
      if (text) return text;
    }
    if (el.labels && el.labels.length) return el.labels[0].textContent.trim();
    return (el.textContent || el.getAttribute('title') || el.getAttribute('placeholder') || el.value || '').trim();
  };
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    const s = getComputedStyle(el);
    return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
  };
  for (const el of document.querySelectorAll(selector)) {
    if (visible(el) && re.test(nameOf(el))) {
      el.setAttribute('` + controlAttr + `', id);
      el.scrollIntoView({block: 'center'});
      return nameOf(el);
    }
  }
  return '';
})(%s, %s, %s)`

func (p *Page) FindControl(ctx context.Context, role, namePattern string) (capture.Control, bool, error) {
	p.nextID++
	id := fmt.Sprintf("c%d", p.nextID)

	var name string
	script := fmt.Sprintf(findScript, jsString(role), jsString(namePattern), jsString(id))
	if err := p.run(ctx, chromedp.Evaluate(script, &name)); err != nil {
		return nil, false, fmt.Errorf("control lookup failed: %w", err)
	}
	if name == "" {
		return nil, false, nil
	}
	return &Control{
		page:     p,
		selector: fmt.Sprintf(`[%s="%s"]`, controlAttr, id),
		role:     role,
		name:     name,
	}, true, nil
}

func (p *Page) Close() error {
	p.cancel()
	return nil
}

// Control is an element tagged by FindControl.
type Control struct {
	page     *Page
	selector string
	role     string
	name     string
}

func (c *Control) Click(ctx context.Context) error {
	return c.page.run(ctx, chromedp.Click(c.selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *Control) Fill(ctx context.Context, text string) error {
	return c.page.run(ctx,
		chromedp.Clear(c.selector, chromedp.ByQuery),
		chromedp.SendKeys(c.selector, text, chromedp.ByQuery),
	)
}

func (c *Control) Press(ctx context.Context, key string) error {
	return c.page.run(ctx,
		chromedp.Focus(c.selector, chromedp.ByQuery),
		chromedp.KeyEvent(keyFor(key)),
	)
}

// dragScript dispatches dragenter and dragover carrying a single file.
const dragScript = `((sel) => {
  const el = document.querySelector(sel);
  if (!el) return false;
  const dt = new DataTransfer();
  dt.items.add(new File(['parity'], 'document.pdf', {type: 'application/pdf'}));
  for (const type of ['dragenter', 'dragover']) {
    el.dispatchEvent(new DragEvent(type, {bubbles: true, cancelable: true, dataTransfer: dt}));
  }
  return true;
})(%s)`

func (c *Control) DragOver(ctx context.Context) error {
	var ok bool
	if err := c.page.run(ctx, chromedp.Evaluate(fmt.Sprintf(dragScript, jsString(c.selector)), &ok)); err != nil {
		return err
	}
	if !ok {
		return errors.New("drag target detached")
	}
	return nil
}

func (c *Control) String() string {
	return fmt.Sprintf("%s %q", c.role, c.name)
}

// keyFor maps common key names to the sequences chromedp expects. Anything
// else is typed literally.
func keyFor(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "escape", "esc":
		return kb.Escape
	case "tab":
		return kb.Tab
	case "backspace":
		return kb.Backspace
	case "arrowdown", "down":
		return kb.ArrowDown
	case "arrowup", "up":
		return kb.ArrowUp
	case "space":
		return " "
	}
	return key
}

// jsString quotes s as a JavaScript string literal. encoding/json escapes
// U+2028 and U+2029, so its output is valid JS.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
