// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/config"
)

const (
	launchTimeout       = 30 * time.Second
	browserCloseTimeout = 10 * time.Second
)

// Manager owns the browser process. Pages are opened as tabs of that process.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	persona schemas.Persona

	// browserCtx is the first chromedp context. The browser process lives
	// exactly as long as it does, and every page is a tab derived from it.
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager resolves the profile directory, launches the browser and checks
// that it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: PersonaFor(cfg),
	}

	if cfg.ProfileDir != "" {
		dir, err := PrepareProfileDir(cfg.ProfileDir)
		if err != nil {
			return nil, err
		}
		m.cfg.ProfileDir = dir
	}

	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// PersonaFor derives the session persona from the browser configuration.
func PersonaFor(cfg config.BrowserConfig) schemas.Persona {
	p := schemas.DefaultPersona.WithViewport(cfg.Viewport)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	return p
}

// PrepareProfileDir expands ~ and creates the persistent profile directory.
func PrepareProfileDir(dir string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand profile dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return "", fmt.Errorf("failed to create profile dir %q: %w", expanded, err)
	}
	return expanded, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Launching browser.",
		zap.Bool("headless", m.cfg.Headless),
		zap.String("profile_dir", m.cfg.ProfileDir),
		zap.Int64("width", m.persona.Width),
		zap.Int64("height", m.persona.Height),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg, m.persona)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	if err := startWithin(ctx, browserCtx, cancelBrowser, launchTimeout); err != nil {
		cancelAlloc()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.allocatorCancel = cancelAlloc
	m.browserCtx, m.browserCancel = browserCtx, cancelBrowser
	m.logger.Info("Browser launched and responsive.")
	return nil
}

// startWithin performs the first chromedp.Run on chromeCtx. That Run binds
// the browser process (or the tab's event loop) to the context it is given,
// so it must run on chromeCtx itself; the timeout is enforced from outside
// by cancelling chromeCtx.
func startWithin(ctx, chromeCtx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(chromeCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			cancel()
		}
		return err
	case <-ctx.Done():
		cancel()
		<-errc
		return ctx.Err()
	case <-timer.C:
		cancel()
		<-errc
		return fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded)
	}
}

// launchFlag is a command line switch passed to the browser process.
type launchFlag struct {
	Name  string
	Value interface{}
}

// launchFlags lists the switches layered on top of chromedp's defaults.
func launchFlags(cfg config.BrowserConfig, goos string) []launchFlag {
	flags := []launchFlag{
		// A false bool removes a default switch; this one advertises automation to the page.
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", cfg.Headless},
		{"hide-scrollbars", true},
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags = append(flags, launchFlag{name, parts[1]})
		} else {
			flags = append(flags, launchFlag{name, true})
		}
	}

	// Container friendly defaults.
	if goos == "linux" {
		flags = append(flags,
			launchFlag{"no-sandbox", true},
			launchFlag{"disable-dev-shm-usage", true},
			launchFlag{"disable-setuid-sandbox", true},
		)
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig, persona schemas.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	for _, f := range launchFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}

	opts = append(opts,
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(int(persona.Width), int(persona.Height)),
	)
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewPage opens an isolated tab with the persona applied.
func (m *Manager) NewPage(ctx context.Context) (Page, error) {
	s := newSession(m.browserCtx, m.cfg, m.logger)
	if err := s.initialize(ctx, m.persona); err != nil {
		return nil, fmt.Errorf("failed to initialize browser page: %w", err)
	}

	m.wg.Add(1)
	s.onClose = m.wg.Done
	return s, nil
}

// Shutdown waits for open pages to close, bounded by ctx, then terminates
// the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel == nil {
		return nil
	}
	m.logger.Info("Shutting down browser process.")

	// A graceful close lets the browser flush the persistent profile.
	closeCtx, cancelClose := context.WithTimeout(m.browserCtx, browserCloseTimeout)
	defer cancelClose()
	err := chromedp.Cancel(closeCtx)
	m.browserCancel()
	m.allocatorCancel()
	m.browserCancel, m.allocatorCancel = nil, nil
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
