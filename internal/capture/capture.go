// Package capture drives a browser through a route matrix and writes
// screenshots plus DOM signals for every (viewport, route, state) triple.
//
// The browser itself sits behind the Browser, Page and Control interfaces;
// the chrome subpackage provides the real implementation and
// capturetest a scripted fake.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/parity/internal/types"
)

// ErrControlNotFound is returned when a required control never became
// visible within the interaction timeout.
var ErrControlNotFound = errors.New("control not found")

// Browser owns the browser process. Each NewPage call opens an isolated
// browsing context sized to the viewport.
type Browser interface {
	NewPage(ctx context.Context, vp types.Viewport) (Page, error)
	Close() error
}

// Page is one isolated browsing context.
type Page interface {
	// Navigate loads url and returns once the DOM is ready.
	Navigate(ctx context.Context, url string) error

	// Screenshot returns a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// FindControl looks for a visible element with the given ARIA role whose
	// accessible name matches namePattern (case-insensitive regexp).
	FindControl(ctx context.Context, role, namePattern string) (Control, bool, error)

	// Evaluate runs script and decodes its JSON result into out.
	Evaluate(ctx context.Context, script string, out any) error

	Close() error
}

// Control is an element found by role and accessible name.
type Control interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	// DragOver dispatches dragenter/dragover with a file payload.
	DragOver(ctx context.Context) error
	String() string
}

// Clock abstracts time so settle windows can be tested without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}
