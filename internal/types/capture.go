package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultState is the capture state that needs no interaction.
const DefaultState = "default"

// RouteMatrix is the run input: a base URL and the routes to traverse.
type RouteMatrix struct {
	BaseURL string             `json:"baseUrl" yaml:"baseUrl"`
	Routes  []RouteMatrixEntry `json:"routes" yaml:"routes"`
}

// RouteMatrixEntry is one route plus the states captured on it.
type RouteMatrixEntry struct {
	Path     string          `json:"path" yaml:"path"`
	States   []string        `json:"states,omitempty" yaml:"states,omitempty"`
	Variants []string        `json:"variants,omitempty" yaml:"variants,omitempty"`
	Via      *NavigationPlan `json:"via,omitempty" yaml:"via,omitempty"`
}

// NavigationPlan reaches a route through the application instead of a
// fresh load: open From, then activate the control named by Role/Name.
type NavigationPlan struct {
	From string `json:"from" yaml:"from"`
	Role string `json:"role" yaml:"role"`
	Name string `json:"name" yaml:"name"`
}

// Validate checks if the matrix is usable.
func (m *RouteMatrix) Validate() error {
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("baseUrl is required")
	}
	if len(m.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	for i, r := range m.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %d: path must start with '/' (got %q)", i, r.Path)
		}
		if r.Via != nil && (r.Via.From == "" || r.Via.Name == "") {
			return fmt.Errorf("route %s: via requires from and name", r.Path)
		}
	}
	return nil
}

// StatesOrDefault returns the configured states, or ["default"].
func (e RouteMatrixEntry) StatesOrDefault() []string {
	if len(e.States) == 0 {
		return []string{DefaultState}
	}
	return e.States
}

// CaptureRequest fully determines one capture.
type CaptureRequest struct {
	Route      string `json:"route"`
	State      string `json:"state"`
	ViewportID string `json:"viewport"`
	PassID     int    `json:"passId"`
}

// Key is the correlation key shared by the screenshot, signals and issues
// of a single capture.
func (r CaptureRequest) Key() string {
	return fmt.Sprintf("pass-%d|%s|%s|%s", r.PassID, r.ViewportID, r.Route, r.State)
}

// Screenshot is one manifest record.
type Screenshot struct {
	Route              string    `json:"route"`
	State              string    `json:"state"`
	Viewport           string    `json:"viewport"`
	Path               string    `json:"path"`
	CapturedAt         time.Time `json:"capturedAt"`
	InteractionSkipped bool      `json:"interactionSkipped,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Manifest is the ordered, append-only list of screenshots of a pass.
type Manifest []Screenshot

// Viewport is a named browser window size.
type Viewport struct {
	ID     string `json:"id" yaml:"id" mapstructure:"id"`
	Width  int    `json:"width" yaml:"width" mapstructure:"width"`
	Height int    `json:"height" yaml:"height" mapstructure:"height"`
}

// DomSignal holds the style and token facts read from a rendered page.
// It lives only for the evaluation of one capture.
type DomSignal struct {
	BodyFontFamily    string  `json:"bodyFontFamily"`
	HeadingFontFamily string  `json:"headingFontFamily"`
	BodyColor         string  `json:"bodyColor"`
	FocusableCount    int     `json:"focusableCount"`
	FocusOutline      string  `json:"focusOutline"`
	FocusBoxShadow    string  `json:"focusBoxShadow"`
	HasFocusVisible   bool    `json:"hasFocusVisibleRule"`
	HasDialog         bool    `json:"hasDialog"`
	DialogRadiusPx    float64 `json:"dialogRadiusPx"`
	BrandToken        string  `json:"brandToken"`
	NeutralToken      string  `json:"neutralToken"`
	SkippedSheets     int     `json:"skippedSheets"`
}
