// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/config"
)

const (
	defaultActionTimeout     = 15 * time.Second
	defaultScreenshotTimeout = 30 * time.Second
	closeTimeout             = 10 * time.Second
)

// Session is a chromedp backed Page.
type Session struct {
	id                string
	logger            *zap.Logger
	browserCtx        context.Context
	screenshotTimeout time.Duration

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	onClose  func()
	isClosed bool
	mu       sync.Mutex
}

var _ Page = (*Session)(nil)

func newSession(browserCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	timeout := cfg.ScreenshotTimeout
	if timeout <= 0 {
		timeout = defaultScreenshotTimeout
	}
	return &Session{
		id:                id,
		logger:            logger.Named("page").With(zap.String("page_id", id[:8])),
		browserCtx:        browserCtx,
		screenshotTimeout: timeout,
	}
}

func (s *Session) initialize(ctx context.Context, persona schemas.Persona) error {
	s.mu.Lock()
	if s.sessionCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("page already initialized")
	}
	s.sessionCtx, s.sessionCancel = chromedp.NewContext(s.browserCtx)
	s.mu.Unlock()

	if err := startWithin(ctx, s.sessionCtx, s.sessionCancel, defaultActionTimeout); err != nil {
		_ = s.Close(ctx)
		return fmt.Errorf("failed to open tab: %w", err)
	}
	if err := s.run(ctx, defaultActionTimeout, ApplyPersona(persona, s.logger)); err != nil {
		_ = s.Close(ctx)
		return fmt.Errorf("failed to apply persona: %w", err)
	}
	s.logger.Debug("Browser page ready.")
	return nil
}

// ID returns the page identifier used in logs.
func (s *Session) ID() string { return s.id }

// run executes actions in the tab. The tab's context carries the chromedp
// target; ctx only contributes cancellation.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.sessionCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.sessionCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, defaultActionTimeout, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (s *Session) Interactable(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, defaultActionTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, defaultActionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *Session) ClickNth(ctx context.Context, selector string, index int) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, defaultActionTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll)); err != nil {
		return fmt.Errorf("failed to query %q: %w", selector, err)
	}
	if index < 0 || index >= len(nodes) {
		return fmt.Errorf("selector %q matched %d elements, index %d out of range", selector, len(nodes), index)
	}
	return s.run(ctx, defaultActionTimeout, chromedp.MouseClickNode(nodes[index]))
}

func (s *Session) PressEnter(ctx context.Context, selector string) error {
	return s.run(ctx, defaultActionTimeout, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
}

func (s *Session) ScrollTo(ctx context.Context, x, y int) error {
	var ok bool
	return s.run(ctx, defaultActionTimeout,
		chromedp.Evaluate(fmt.Sprintf("window.scrollTo(%d, %d); true", x, y), &ok),
	)
}

func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the output PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, s.screenshotTimeout, action); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("browser returned an empty screenshot")
	}
	return buf, nil
}

// Close terminates the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	sessionCtx, cancel, onClose := s.sessionCtx, s.sessionCancel, s.onClose
	s.mu.Unlock()

	if onClose != nil {
		defer onClose()
	}
	if cancel == nil {
		return nil
	}
	cancel()

	waitCtx, cancelWait := context.WithTimeout(ctx, closeTimeout)
	defer cancelWait()
	select {
	case <-sessionCtx.Done():
		s.logger.Debug("Browser page closed.")
	case <-waitCtx.Done():
		s.logger.Warn("Deadline exceeded waiting for browser page to close.", zap.Error(waitCtx.Err()))
	}
	return nil
}
