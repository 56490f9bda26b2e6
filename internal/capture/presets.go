// internal/capture/presets.go
package capture

import (
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/auth"
	"github.com/xkilldash9x/reportcast/internal/config"
)

// Preset is a named view layout with its default readiness policy.
type Preset struct {
	Name  string
	Views []schemas.View
	// InitialWait applies when wait.seconds is not set.
	InitialWait time.Duration
	// UseMarker enables the configured marker selector heuristic.
	UseMarker bool
	// UseSettle enables the configured settle delay heuristic.
	UseSettle bool
}

const (
	PresetDashboard = "dashboard"
	PresetReport    = "report"
)

const dataFrameSelector = `[data-testid="stDataFrame"]`

var presets = map[string]Preset{
	// Two tabs of a single-page dashboard, captured at viewport size.
	PresetDashboard: {
		Name: PresetDashboard,
		Views: []schemas.View{
			{
				Name:          "soc_hub",
				TabIndex:      0,
				Settle:        2 * time.Second,
				ReadySelector: dataFrameSelector,
				ReadyTimeout:  5 * time.Second,
				ArtifactName:  "dashboard_tab1_soc_hub.png",
			},
			{
				Name:         "report",
				TabIndex:     1,
				Settle:       3 * time.Second,
				ArtifactName: "dashboard_tab2_report.png",
			},
		},
		InitialWait: 5 * time.Second,
		UseMarker:   true,
	},
	// A hosted BI report captured as one full page.
	PresetReport: {
		Name: PresetReport,
		Views: []schemas.View{
			{Name: "report", TabIndex: schemas.NoTab, FullPage: true, ArtifactName: "report.png"},
		},
		InitialWait: 60 * time.Second,
		UseSettle:   true,
	},
}

// PresetNames lists the known presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (known: %v)", name, PresetNames())
	}
	// Callers get their own copy of the views.
	p.Views = append([]schemas.View(nil), p.Views...)
	return p, nil
}

// WaitPolicy combines the preset defaults with the wait configuration.
func (p Preset) WaitPolicy(cfg config.WaitConfig) schemas.WaitPolicy {
	policy := schemas.WaitPolicy{Initial: p.InitialWait}
	if cfg.Seconds > 0 {
		policy.Initial = time.Duration(cfg.Seconds) * time.Second
	}
	if p.UseMarker {
		policy.MarkerSelector = cfg.MarkerSelector
		policy.MarkerTimeout = cfg.MarkerTimeout
	}
	if p.UseSettle {
		policy.Settle = cfg.Settle
	}
	return policy
}

// BuildRequest assembles the immutable capture request for a run.
func BuildRequest(cfg config.Interface) (schemas.CaptureRequest, error) {
	target := cfg.Target()
	if err := config.ValidateHTTPURL("target.url", target.URL); err != nil {
		return schemas.CaptureRequest{}, err
	}
	preset, err := LookupPreset(target.Preset)
	if err != nil {
		return schemas.CaptureRequest{}, err
	}

	b := cfg.Browser()
	return schemas.CaptureRequest{
		TargetURL:   target.URL,
		Credentials: cfg.Credentials(),
		Wait:        preset.WaitPolicy(cfg.Wait()),
		Viewport:    b.Viewport,
		Headless:    b.Headless,
		ProfileDir:  b.ProfileDir,
		TabSelector: target.TabSelector,
		Views:       preset.Views,
	}, nil
}

// BrowserConfig returns the launch settings for req: the request's viewport,
// headless mode and profile directory replace those in base. A zero viewport
// keeps the configured one.
func BrowserConfig(base config.BrowserConfig, req schemas.CaptureRequest) config.BrowserConfig {
	cfg := base
	if req.Viewport.Width > 0 && req.Viewport.Height > 0 {
		cfg.Viewport = req.Viewport
	}
	cfg.Headless = req.Headless
	cfg.ProfileDir = req.ProfileDir
	return cfg
}

// SettingsFromConfig derives orchestrator settings from configuration.
func SettingsFromConfig(cfg config.Interface) Settings {
	return Settings{
		NavigationTimeout: cfg.Browser().NavigationTimeout,
		DetectDelay:       cfg.Auth().DetectDelay,
		ScrollSettle:      500 * time.Millisecond,
		Auth:              auth.OptionsFromConfig(cfg.Auth()),
	}
}
