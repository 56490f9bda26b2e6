// internal/capture/orchestrator.go
package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/artifacts"
	"github.com/xkilldash9x/reportcast/internal/auth"
	"github.com/xkilldash9x/reportcast/internal/browser"
	"github.com/xkilldash9x/reportcast/internal/readiness"
)

const pageCloseTimeout = 10 * time.Second

// Browser opens pages. *browser.Manager satisfies it.
type Browser interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// Settings holds the orchestrator's timing and login configuration.
type Settings struct {
	NavigationTimeout time.Duration
	// DetectDelay gives the target time to redirect to a login page.
	DetectDelay time.Duration
	// ScrollSettle is waited after scrolling to the top, before the screenshot.
	ScrollSettle time.Duration
	Auth         auth.Options
}

// Orchestrator drives one capture run: navigate, log in if needed, wait for
// rendering, then take one screenshot per view.
type Orchestrator struct {
	browser  Browser
	prober   *readiness.Prober
	sink     artifacts.Sink
	settings Settings
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. sink may be nil.
func NewOrchestrator(b Browser, settings Settings, sink artifacts.Sink, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:  b,
		prober:   readiness.NewProber(logger),
		sink:     sink,
		settings: settings,
		logger:   logger.Named("capture"),
	}
}

// Capture runs the request and returns one result per view, in order. Any
// error aborts the whole run and no result is returned, so a partial capture
// can never be delivered.
func (o *Orchestrator) Capture(ctx context.Context, req schemas.CaptureRequest) ([]schemas.CaptureResult, error) {
	if len(req.Views) == 0 {
		return nil, fmt.Errorf("capture request for %s has no views", req.TargetURL)
	}

	page, err := o.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), pageCloseTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			o.logger.Warn("Failed to close browser page.", zap.Error(err))
		}
	}()

	o.logger.Info("Navigating to target.", zap.String("url", req.TargetURL))
	if err := page.Navigate(ctx, req.TargetURL, o.settings.NavigationTimeout); err != nil {
		return nil, &schemas.NavigationError{URL: req.TargetURL, Err: err}
	}

	stage, err := o.authenticate(ctx, page, req)
	if err != nil {
		return nil, err
	}

	if ready := o.prober.AwaitReady(ctx, page, req.Wait); !ready {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.logger.Warn("Page may not be fully rendered; capturing anyway.")
	}

	results := make([]schemas.CaptureResult, 0, len(req.Views))
	for _, view := range req.Views {
		result, err := o.captureView(ctx, page, req, view, stage)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// authenticate handles a login redirect. It returns the stage the login
// flow ended in.
func (o *Orchestrator) authenticate(ctx context.Context, page browser.Page, req schemas.CaptureRequest) (schemas.AuthStage, error) {
	if err := browser.Pause(ctx, o.settings.DetectDelay); err != nil {
		return schemas.AuthNotStarted, err
	}

	current, err := page.CurrentURL(ctx)
	if err != nil {
		return schemas.AuthNotStarted, &schemas.NavigationError{URL: req.TargetURL, Err: err}
	}
	if !auth.MatchesAny(current, o.settings.Auth.LoginPatterns) {
		return schemas.AuthNotStarted, nil
	}

	if req.Credentials.IsZero() {
		o.logger.Error("Login page shown but no credentials are configured.", zap.String("url", current))
		return schemas.AuthNotStarted, &schemas.AuthenticationError{
			Stage:  schemas.AuthNotStarted,
			URL:    current,
			Reason: "login required but no credentials configured",
		}
	}

	stepper := auth.NewStepper(*req.Credentials, o.settings.Auth, o.logger)
	if err := stepper.Authenticate(ctx, page, req.TargetURL); err != nil {
		return schemas.AuthFailed, err
	}
	return schemas.AuthDone, nil
}

func (o *Orchestrator) captureView(ctx context.Context, page browser.Page, req schemas.CaptureRequest, view schemas.View, stage schemas.AuthStage) (schemas.CaptureResult, error) {
	logger := o.logger.With(zap.String("view", view.Name))

	if view.TabIndex != schemas.NoTab && req.TabSelector != "" {
		if err := page.ClickNth(ctx, req.TabSelector, view.TabIndex); err != nil {
			if ctx.Err() != nil {
				return schemas.CaptureResult{}, ctx.Err()
			}
			logger.Warn("Could not switch tab, capturing current view.", zap.Int("tab", view.TabIndex), zap.Error(err))
		}
	}

	if err := browser.Pause(ctx, view.Settle); err != nil {
		return schemas.CaptureResult{}, err
	}

	if view.ReadySelector != "" {
		o.prober.Run(ctx, page, readiness.SelectorVisible{Selector: view.ReadySelector, Timeout: view.ReadyTimeout})
	}

	if err := page.ScrollTo(ctx, 0, 0); err != nil {
		logger.Warn("Could not scroll to top.", zap.Error(err))
	}
	if err := browser.Pause(ctx, o.settings.ScrollSettle); err != nil {
		return schemas.CaptureResult{}, err
	}

	finalURL, err := o.confirmOffLogin(ctx, page, view, stage)
	if err != nil {
		return schemas.CaptureResult{}, err
	}

	image, err := page.Screenshot(ctx, view.FullPage)
	if err != nil {
		return schemas.CaptureResult{}, &schemas.CaptureError{View: view.Name, Err: err}
	}
	logger.Info("View captured.", zap.Int("bytes", len(image)), zap.Bool("full_page", view.FullPage))

	result := schemas.CaptureResult{
		Name:       view.Name,
		Image:      image,
		CapturedAt: time.Now().UTC(),
		FinalURL:   finalURL,
	}
	result.ArtifactLocation = o.persist(ctx, view, image)
	return result, nil
}

// confirmOffLogin re-reads the URL right before a screenshot so a session
// that expired mid-run is never captured.
func (o *Orchestrator) confirmOffLogin(ctx context.Context, page browser.Page, view schemas.View, stage schemas.AuthStage) (string, error) {
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return "", &schemas.CaptureError{View: view.Name, Err: fmt.Errorf("could not confirm page url: %w", err)}
	}
	if auth.MatchesAny(current, o.settings.Auth.LoginPatterns) || auth.MatchesAny(current, o.settings.Auth.ChallengePatterns) {
		return "", &schemas.AuthenticationError{
			Stage:  stage,
			URL:    current,
			Reason: fmt.Sprintf("page is on a login url before capturing view %q", view.Name),
		}
	}
	return current, nil
}

// persist stores the image through the sink. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, view schemas.View, image []byte) string {
	if o.sink == nil || view.ArtifactName == "" {
		return ""
	}
	loc, err := o.sink.Store(ctx, view.ArtifactName, image)
	if err != nil {
		o.logger.Warn("Failed to persist artifact.", zap.String("artifact", view.ArtifactName), zap.Error(err))
		return ""
	}
	return loc
}
