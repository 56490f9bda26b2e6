package schemas

// -- Browser Persona Schemas --

// Persona encapsulates the properties applied to every browser session so
// captures render the same way regardless of the host.
type Persona struct {
	UserAgent         string   `json:"userAgent"`
	Platform          string   `json:"platform"`
	Languages         []string `json:"languages"`
	Width             int64    `json:"width"`
	Height            int64    `json:"height"`
	DeviceScaleFactor float64  `json:"deviceScaleFactor"`
	Mobile            bool     `json:"mobile"`
	Timezone          string   `json:"timezoneId,omitempty"`
	Locale            string   `json:"locale,omitempty"`
}

// DefaultPersona provides a fallback persona if none is specified.
var DefaultPersona = Persona{
	UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:          "Win32",
	Languages:         []string{"en-US", "en"},
	Width:             1920,
	Height:            1080,
	DeviceScaleFactor: 1,
}

// WithViewport returns a copy of the persona sized to the given viewport.
func (p Persona) WithViewport(v Viewport) Persona {
	if v.Width > 0 {
		p.Width = int64(v.Width)
	}
	if v.Height > 0 {
		p.Height = int64(v.Height)
	}
	return p
}
