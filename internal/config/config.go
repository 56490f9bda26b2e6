// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/reportcast/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Target() TargetConfig
	Wait() WaitConfig
	Auth() AuthConfig
	Webhook() WebhookConfig
	Artifacts() ArtifactsConfig
	BIReport() BIReportConfig
	Database() DatabaseConfig

	// Credentials returns nil when no login credentials are configured.
	Credentials() *schemas.Credential
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	TargetCfg    TargetConfig    `mapstructure:"target" yaml:"target"`
	WaitCfg      WaitConfig      `mapstructure:"wait" yaml:"wait"`
	AuthCfg      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	WebhookCfg   WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	BIReportCfg  BIReportConfig  `mapstructure:"bireport" yaml:"bireport"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Target() TargetConfig       { return c.TargetCfg }
func (c *Config) Wait() WaitConfig           { return c.WaitCfg }
func (c *Config) Auth() AuthConfig           { return c.AuthCfg }
func (c *Config) Webhook() WebhookConfig     { return c.WebhookCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) BIReport() BIReportConfig   { return c.BIReportCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

func (c *Config) Credentials() *schemas.Credential {
	if c.AuthCfg.Identifier == "" && c.AuthCfg.Secret == "" {
		return nil
	}
	return &schemas.Credential{Identifier: c.AuthCfg.Identifier, Secret: c.AuthCfg.Secret}
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// ProfileDir backs the browser with a persistent user-data-dir so cookies
	// survive across runs. Concurrent runs must not share it.
	ProfileDir        string           `mapstructure:"profile_dir" yaml:"profile_dir"`
	ExecPath          string           `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string           `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string         `mapstructure:"args" yaml:"args"`
	Viewport          schemas.Viewport `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration    `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScreenshotTimeout time.Duration    `mapstructure:"screenshot_timeout" yaml:"screenshot_timeout"`
}

// TargetConfig names what is captured.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// Preset selects a view layout ("dashboard" or "report").
	Preset      string `mapstructure:"preset" yaml:"preset"`
	TabSelector string `mapstructure:"tab_selector" yaml:"tab_selector"`
}

// WaitConfig tunes the readiness heuristics.
type WaitConfig struct {
	// Seconds overrides the preset's initial wait. Zero keeps the preset value.
	Seconds        int           `mapstructure:"seconds" yaml:"seconds"`
	MarkerSelector string        `mapstructure:"marker_selector" yaml:"marker_selector"`
	MarkerTimeout  time.Duration `mapstructure:"marker_timeout" yaml:"marker_timeout"`
	Settle         time.Duration `mapstructure:"settle" yaml:"settle"`
}

// AuthConfig drives the login state machine.
type AuthConfig struct {
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
	Secret     string `mapstructure:"secret" yaml:"-"`

	LoginPatterns     []string `mapstructure:"login_patterns" yaml:"login_patterns"`
	ChallengePatterns []string `mapstructure:"challenge_patterns" yaml:"challenge_patterns"`

	IdentifierSelectors     []string `mapstructure:"identifier_selectors" yaml:"identifier_selectors"`
	IdentifierNextSelectors []string `mapstructure:"identifier_next_selectors" yaml:"identifier_next_selectors"`
	PasswordSelectors       []string `mapstructure:"password_selectors" yaml:"password_selectors"`
	PasswordNextSelectors   []string `mapstructure:"password_next_selectors" yaml:"password_next_selectors"`

	DetectDelay  time.Duration `mapstructure:"detect_delay" yaml:"detect_delay"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	StepDelay    time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// WebhookConfig configures the chat webhook delivery.
type WebhookConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MinInterval paces consecutive deliveries of one run. Zero disables pacing.
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// ArtifactsConfig controls where captured images are kept for operators.
type ArtifactsConfig struct {
	// Dir is the local directory for PNG artifacts. Empty disables local writes.
	Dir string   `mapstructure:"dir" yaml:"dir"`
	S3  S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the optional object storage sink.
type S3Config struct {
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	Prefix       string `mapstructure:"prefix" yaml:"prefix"`
	Region       string `mapstructure:"region" yaml:"region"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	// Static keys are optional; the default AWS credential chain is used otherwise.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
}

// BIReportConfig configures the token based BI export client.
type BIReportConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" yaml:"-"`
	APIVersion   string        `mapstructure:"api_version" yaml:"api_version"`
	Format       string        `mapstructure:"format" yaml:"format"`
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig holds the optional run history connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "reportcast")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.screenshot_timeout", "30s")

	// -- Target --
	v.SetDefault("target.url", "http://localhost:8501")
	v.SetDefault("target.preset", "dashboard")
	v.SetDefault("target.tab_selector", `button[data-baseweb="tab"]`)

	// -- Wait --
	v.SetDefault("wait.seconds", 0)
	v.SetDefault("wait.marker_selector", `[data-testid="stAppViewContainer"]`)
	v.SetDefault("wait.marker_timeout", "10s")
	v.SetDefault("wait.settle", "2s")

	// -- Auth --
	v.SetDefault("auth.login_patterns", []string{"accounts.google.com", "signin"})
	// The password step itself lives under /challenge/pwd, so only second
	// factor and rejection pages are listed.
	v.SetDefault("auth.challenge_patterns", []string{
		"/challenge/selection", "/challenge/ipp", "/challenge/totp", "/challenge/az",
		"/challenge/dp", "/challenge/sk", "/challenge/iap", "/challenge/recaptcha",
		"/signin/rejected", "deniedsigninrejected",
	})
	v.SetDefault("auth.identifier_selectors", []string{"#identifierId", `input[type="email"]`, `input[name="identifier"]`})
	v.SetDefault("auth.identifier_next_selectors", []string{"#identifierNext", `button[type="button"]`})
	v.SetDefault("auth.password_selectors", []string{`input[name="password"]`, `input[type="password"]`})
	v.SetDefault("auth.password_next_selectors", []string{"#passwordNext", `button[type="button"]`})
	v.SetDefault("auth.detect_delay", "3s")
	v.SetDefault("auth.probe_timeout", "15s")
	v.SetDefault("auth.step_delay", "3s")
	v.SetDefault("auth.poll_interval", "2s")
	v.SetDefault("auth.max_wait", "30s")

	// -- Webhook --
	v.SetDefault("webhook.timeout", "60s")
	v.SetDefault("webhook.min_interval", "0s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", ".")
	v.SetDefault("artifacts.s3.prefix", "reportcast/")
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.use_path_style", true)

	// -- BI report export --
	v.SetDefault("bireport.api_version", "3.1")
	v.SetDefault("bireport.format", "png")
	v.SetDefault("bireport.login_timeout", "30s")
	v.SetDefault("bireport.timeout", "60s")
}

// bindLegacyEnv maps the environment names used by the original job scripts
// onto configuration keys. The prefixed name always wins.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("target.url", "REPORTCAST_TARGET_URL", "REPORT_URL", "STREAMLIT_URL")
	_ = v.BindEnv("webhook.url", "REPORTCAST_WEBHOOK_URL", "WEBHOOK_URL")
	_ = v.BindEnv("wait.seconds", "REPORTCAST_WAIT_SECONDS", "WAIT_TIME")
	_ = v.BindEnv("browser.headless", "REPORTCAST_BROWSER_HEADLESS", "HEADLESS")
	_ = v.BindEnv("browser.profile_dir", "REPORTCAST_BROWSER_PROFILE_DIR", "USER_DATA_DIR")
	_ = v.BindEnv("auth.identifier", "REPORTCAST_AUTH_IDENTIFIER", "GOOGLE_EMAIL")
	_ = v.BindEnv("auth.secret", "REPORTCAST_AUTH_SECRET", "GOOGLE_PASSWORD")
	_ = v.BindEnv("bireport.base_url", "REPORTCAST_BIREPORT_BASE_URL", "LOOKER_URL")
	_ = v.BindEnv("bireport.client_id", "REPORTCAST_BIREPORT_CLIENT_ID", "LOOKER_CLIENT_ID")
	_ = v.BindEnv("bireport.client_secret", "REPORTCAST_BIREPORT_CLIENT_SECRET", "LOOKER_CLIENT_SECRET")
	_ = v.BindEnv("database.url", "REPORTCAST_DATABASE_URL", "DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	bindLegacyEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive integers")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.WaitCfg.Seconds < 0 {
		return fmt.Errorf("wait.seconds must not be negative")
	}
	if c.WebhookCfg.Timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be a positive duration")
	}
	if c.WebhookCfg.MinInterval < 0 {
		return fmt.Errorf("webhook.min_interval must not be negative")
	}
	if err := c.AuthCfg.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the Auth configuration.
func (a *AuthConfig) Validate() error {
	if (a.Identifier == "") != (a.Secret == "") {
		return fmt.Errorf("identifier and secret must be set together")
	}
	if len(a.LoginPatterns) == 0 {
		return fmt.Errorf("login_patterns must not be empty")
	}
	if a.ProbeTimeout <= 0 || a.PollInterval <= 0 || a.MaxWait <= 0 {
		return fmt.Errorf("probe_timeout, poll_interval and max_wait must be positive durations")
	}
	if a.PollInterval > a.MaxWait {
		return fmt.Errorf("poll_interval must not exceed max_wait")
	}
	if a.Identifier != "" && (len(a.IdentifierSelectors) == 0 || len(a.PasswordSelectors) == 0) {
		return fmt.Errorf("identifier_selectors and password_selectors are required when credentials are set")
	}
	return nil
}

// ValidateDestination checks the webhook URL. It is only required by
// commands that deliver.
func (w WebhookConfig) ValidateDestination() error {
	return ValidateHTTPURL("webhook.url", w.URL)
}

// ValidateHTTPURL checks that raw is an absolute http(s) URL.
func ValidateHTTPURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
