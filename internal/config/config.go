package config

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/steveyegge/parity/internal/cost"
	"github.com/steveyegge/parity/internal/types"
)

// HarnessConfig holds every tuning constant of a run. It is a value type:
// each run or test builds its own copy (see Default and Clone), so runs
// with different configurations never share state.
type HarnessConfig struct {
	// Viewports to capture, in order. The --viewports flag selects a subset.
	Viewports []types.Viewport `mapstructure:"viewports"`

	Capture    CaptureConfig    `mapstructure:"capture"`
	Heuristics HeuristicConfig  `mapstructure:"heuristics"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Parity     ParityConfig     `mapstructure:"parity"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Report     ReportConfig     `mapstructure:"report"`

	// Interactions maps a state id to the UI action that induces it.
	// Keys are lower-case (viper folds keys); see InteractionFor.
	Interactions map[string]Interaction `mapstructure:"interactions"`
}

// CaptureConfig controls browser navigation and stability waits.
type CaptureConfig struct {
	// SettleDelay is the wait after DOM-ready (or after an interaction)
	// before the screenshot. Stability is time-based; no visual diffing.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`

	// InteractionTimeout bounds visibility polling for a scripted control.
	InteractionTimeout time.Duration `mapstructure:"interaction_timeout"`

	// PollInterval is the delay between visibility probes.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Headless runs Chrome without a window. Default: true
	Headless bool `mapstructure:"headless"`

	// ChromePath overrides the Chrome executable (empty = auto-detect).
	ChromePath string `mapstructure:"chrome_path"`
}

// HeuristicConfig holds the reference values the heuristic judges compare against.
type HeuristicConfig struct {
	BodyFontFamily    string `mapstructure:"body_font_family"`
	HeadingFontFamily string `mapstructure:"heading_font_family"`

	// CSS custom properties read from :root.
	BrandTokenName   string `mapstructure:"brand_token_name"`
	NeutralTokenName string `mapstructure:"neutral_token_name"`

	BrandHex   string `mapstructure:"brand_hex"`
	NeutralHex string `mapstructure:"neutral_hex"`

	// FocusRingMarker must appear in an inline focus box-shadow for it to
	// count as a visible ring.
	FocusRingMarker string `mapstructure:"focus_ring_marker"`

	MinDialogRadiusPx float64 `mapstructure:"min_dialog_radius_px"`

	Penalties JudgePenalties `mapstructure:"penalties"`
}

// JudgePenalties are the scoreDelta values each judge attaches to its issues.
type JudgePenalties struct {
	FontFamily   int `mapstructure:"font_family"`
	BrandToken   int `mapstructure:"brand_token"`
	NeutralToken int `mapstructure:"neutral_token"`
	FocusRing    int `mapstructure:"focus_ring"`
	BodyColor    int `mapstructure:"body_color"`
	DialogRadius int `mapstructure:"dialog_radius"`
}

// ScoringConfig drives severity classification, bucket scoring and the gate.
type ScoringConfig struct {
	// Severity cutoffs on scoreDelta: >=Critical, >=High, >=Medium, else low.
	CriticalAt int `mapstructure:"critical_at"`
	HighAt     int `mapstructure:"high_at"`
	MediumAt   int `mapstructure:"medium_at"`

	// Penalties subtracted from a bucket per issue, by severity. Unrelated
	// to the cutoffs above even though both live on the same scale.
	Penalties map[types.Severity]int `mapstructure:"penalties"`

	Weights map[types.Bucket]float64 `mapstructure:"weights"`

	// BucketFloor is the minimum score every bucket needs for a pass.
	BucketFloor int `mapstructure:"bucket_floor"`
}

// ParityConfig configures the vision-judge parity loop.
type ParityConfig struct {
	// ReferenceURL is the external reference deployment (FACTIFY_URL).
	ReferenceURL string `mapstructure:"reference_url"`

	// LocalPort is where the local app is served.
	LocalPort int `mapstructure:"local_port"`

	BaselineDir string `mapstructure:"baseline_dir"`

	Views []ViewConfig `mapstructure:"views"`

	// ViewPassFloor is the minimum for every dimension score.
	ViewPassFloor int `mapstructure:"view_pass_floor"`

	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`

	// RequestsPerMinute paces vision requests (0 = unlimited).
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// Ignore lists cosmetic differences the judge must not report.
	Ignore []string `mapstructure:"ignore"`

	// Budget caps the tokens and estimated spend of one parity run.
	Budget cost.Config `mapstructure:"budget"`
}

// ViewConfig is one logical parity view: where it lives and how to reach it.
type ViewConfig struct {
	Name     string        `mapstructure:"name"`
	Path     string        `mapstructure:"path"`
	Steps    []Interaction `mapstructure:"steps"`
	Baseline string        `mapstructure:"baseline"`
}

// Interaction is a best-effort UI action addressed by role and accessible name.
type Interaction struct {
	Role string `mapstructure:"role" yaml:"role"`
	// Name is a case-insensitive regular expression over the accessible name.
	Name   string `mapstructure:"name" yaml:"name"`
	Action string `mapstructure:"action" yaml:"action"`
	Text   string `mapstructure:"text" yaml:"text"`
}

// Interaction actions.
const (
	ActionClick    = "click"
	ActionFill     = "fill"
	ActionDragOver = "dragover"
	ActionPress    = "press"
)

// ScheduleConfig holds the iteration focus labels.
type ScheduleConfig struct {
	Focus      []string `mapstructure:"focus"`
	ExtraFocus string   `mapstructure:"extra_focus"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	TopIssues int `mapstructure:"top_issues"`
}

// Clone returns a deep copy so callers can hold it without aliasing maps.
func (c HarnessConfig) Clone() HarnessConfig {
	out := c
	out.Viewports = slices.Clone(c.Viewports)
	out.Scoring.Penalties = maps.Clone(c.Scoring.Penalties)
	out.Scoring.Weights = maps.Clone(c.Scoring.Weights)
	out.Parity.Ignore = slices.Clone(c.Parity.Ignore)
	out.Parity.Views = make([]ViewConfig, len(c.Parity.Views))
	for i, v := range c.Parity.Views {
		v.Steps = slices.Clone(v.Steps)
		out.Parity.Views[i] = v
	}
	out.Schedule.Focus = slices.Clone(c.Schedule.Focus)
	out.Interactions = maps.Clone(c.Interactions)
	return out
}

// InteractionFor returns the interaction inducing state, if any.
func (c HarnessConfig) InteractionFor(state string) (Interaction, bool) {
	in, ok := c.Interactions[strings.ToLower(state)]
	return in, ok
}

// SelectViewports resolves the --viewports flag: "all" (or empty) keeps every
// configured viewport, otherwise a comma list of ids in config order.
func (c HarnessConfig) SelectViewports(list string) ([]types.Viewport, error) {
	list = strings.TrimSpace(list)
	if list == "" || list == "all" {
		return slices.Clone(c.Viewports), nil
	}

	wanted := make(map[string]bool)
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		wanted[id] = true
	}

	var selected []types.Viewport
	for _, vp := range c.Viewports {
		if wanted[vp.ID] {
			selected = append(selected, vp)
			delete(wanted, vp.ID)
		}
	}
	if len(wanted) > 0 {
		unknown := slices.Sorted(maps.Keys(wanted))
		return nil, fmt.Errorf("unknown viewport(s): %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

// Validate checks the configuration for values that would break a run.
func (c HarnessConfig) Validate() error {
	if len(c.Viewports) == 0 {
		return fmt.Errorf("at least one viewport is required")
	}
	seen := make(map[string]bool)
	for _, vp := range c.Viewports {
		if vp.ID == "" || vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("invalid viewport %+v", vp)
		}
		if seen[vp.ID] {
			return fmt.Errorf("duplicate viewport id %q", vp.ID)
		}
		seen[vp.ID] = true
	}

	if c.Capture.SettleDelay < 0 {
		return fmt.Errorf("capture.settle_delay cannot be negative")
	}

	s := c.Scoring
	if !(s.CriticalAt > s.HighAt && s.HighAt > s.MediumAt && s.MediumAt > 0) {
		return fmt.Errorf("severity cutoffs must be strictly decreasing and positive (critical=%d high=%d medium=%d)",
			s.CriticalAt, s.HighAt, s.MediumAt)
	}
	for _, sev := range types.AllSeverities {
		if s.Penalties[sev] < 0 {
			return fmt.Errorf("scoring penalty for %s cannot be negative", sev)
		}
	}
	total := 0.0
	for _, b := range types.AllBuckets {
		w, ok := s.Weights[b]
		if !ok {
			return fmt.Errorf("missing scoring weight for %s", b)
		}
		if w < 0 {
			return fmt.Errorf("scoring weight for %s cannot be negative", b)
		}
		total += w
	}
	if math.Abs(total-1.0) > 1e-6 {
		return fmt.Errorf("scoring weights must sum to 1.0 (got %.3f)", total)
	}
	if s.BucketFloor < 0 || s.BucketFloor > 100 {
		return fmt.Errorf("scoring.bucket_floor must be within [0,100] (got %d)", s.BucketFloor)
	}

	if c.Parity.ViewPassFloor < 0 || c.Parity.ViewPassFloor > 100 {
		return fmt.Errorf("parity.view_pass_floor must be within [0,100] (got %d)", c.Parity.ViewPassFloor)
	}
	for _, v := range c.Parity.Views {
		if v.Name == "" || v.Baseline == "" {
			return fmt.Errorf("parity view requires name and baseline: %+v", v)
		}
	}
	if err := c.Parity.Budget.Validate(); err != nil {
		return fmt.Errorf("parity.budget: %w", err)
	}
	return nil
}

// Load builds a configuration from defaults, an optional config file and
// PARITY_* environment overrides. FACTIFY_URL sets parity.reference_url.
func Load(path string) (HarnessConfig, error) {
	cfg := Default()

	// New viper instance per load: no shared global state between runs
	v := viper.New()
	v.SetEnvPrefix("PARITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper knows, so every scalar default is
	// registered up front. Maps and lists come from the file only.
	registerDefaults(v, "", reflect.ValueOf(cfg))
	if err := v.BindEnv("parity.reference_url", "PARITY_REFERENCE_URL", "FACTIFY_URL"); err != nil {
		return cfg, fmt.Errorf("binding FACTIFY_URL: %w", err)
	}
	if err := v.BindEnv("parity.model", "PARITY_MODEL"); err != nil {
		return cfg, fmt.Errorf("binding PARITY_MODEL: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// BindEnv with several names only resolves through Get.
	if url := v.GetString("parity.reference_url"); url != "" {
		cfg.Parity.ReferenceURL = url
	}
	if model := v.GetString("parity.model"); model != "" {
		cfg.Parity.Model = model
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// registerDefaults walks cfg's mapstructure tags and sets a viper default
// for every scalar leaf.
func registerDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			registerDefaults(v, key, fv)
		case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		default:
			v.SetDefault(key, fv.Interface())
		}
	}
}
