package schemas

import (
	"time"
)

// NoTab marks a view that is captured without clicking a tab first.
const NoTab = -1

// View describes one screenshot taken from an already loaded page.
type View struct {
	Name string `json:"name"`
	// TabIndex selects the nth element matching the request's TabSelector
	// before capturing. NoTab leaves the page as is.
	TabIndex int `json:"tab_index"`
	// FullPage captures the whole scrollable document instead of the viewport.
	FullPage bool          `json:"full_page"`
	Settle   time.Duration `json:"settle"`
	// ReadySelector is polled (advisory) after the tab click.
	ReadySelector string        `json:"ready_selector,omitempty"`
	ReadyTimeout  time.Duration `json:"ready_timeout"`
	ArtifactName  string        `json:"artifact_name,omitempty"`
}

// CaptureRequest is everything the orchestrator needs for one run. It is
// built once from configuration and is not modified afterwards.
type CaptureRequest struct {
	TargetURL   string      `json:"target_url"`
	Credentials *Credential `json:"credentials,omitempty"`
	Wait        WaitPolicy  `json:"wait"`
	Viewport    Viewport    `json:"viewport"`
	Headless    bool        `json:"headless"`
	ProfileDir  string      `json:"profile_dir,omitempty"`
	TabSelector string      `json:"tab_selector,omitempty"`
	Views       []View      `json:"views"`
}

// CaptureResult is a single PNG produced by the orchestrator.
type CaptureResult struct {
	Name       string    `json:"name"`
	Image      []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
	FinalURL   string    `json:"final_url"`
	// ArtifactLocation is set when the image was persisted for operators.
	ArtifactLocation string `json:"artifact_location,omitempty"`
}
