package schemas

import (
	"time"
)

// -- Common Schemas --

// Credential holds an identifier and secret pair used by the login flow.
type Credential struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"-"`
}

// IsZero reports whether no credentials were supplied.
func (c *Credential) IsZero() bool {
	return c == nil || (c.Identifier == "" && c.Secret == "")
}

// Masked returns the identifier with everything past the first three characters hidden.
func (c *Credential) Masked() string {
	if c == nil || c.Identifier == "" {
		return ""
	}
	if len(c.Identifier) <= 3 {
		return "***"
	}
	return c.Identifier[:3] + "***"
}

// Viewport is the browser window size used for captures.
type Viewport struct {
	Width  int `json:"width" mapstructure:"width" yaml:"width"`
	Height int `json:"height" mapstructure:"height" yaml:"height"`
}

// WaitPolicy parameterizes the readiness heuristics run after navigation.
type WaitPolicy struct {
	// Initial is a fixed sleep right after navigation (and login, if any).
	Initial time.Duration `json:"initial"`
	// MarkerSelector is polled until visible, bounded by MarkerTimeout.
	MarkerSelector string        `json:"marker_selector,omitempty"`
	MarkerTimeout  time.Duration `json:"marker_timeout"`
	// Settle is a final fixed sleep for asynchronous sub-renders.
	Settle time.Duration `json:"settle"`
}
