// internal/auth/stepper.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/browser"
	"github.com/xkilldash9x/reportcast/internal/config"
)

// Options are the probe lists, URL patterns and timing of the login flow.
type Options struct {
	LoginPatterns     []string
	ChallengePatterns []string

	IdentifierSelectors     []string
	IdentifierNextSelectors []string
	PasswordSelectors       []string
	PasswordNextSelectors   []string

	// ProbeTimeout bounds each selector probe.
	ProbeTimeout time.Duration
	// StepDelay is waited after each submit before the next probe.
	StepDelay    time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
}

// OptionsFromConfig maps the auth configuration section to Options.
func OptionsFromConfig(cfg config.AuthConfig) Options {
	return Options{
		LoginPatterns:           cfg.LoginPatterns,
		ChallengePatterns:       cfg.ChallengePatterns,
		IdentifierSelectors:     cfg.IdentifierSelectors,
		IdentifierNextSelectors: cfg.IdentifierNextSelectors,
		PasswordSelectors:       cfg.PasswordSelectors,
		PasswordNextSelectors:   cfg.PasswordNextSelectors,
		ProbeTimeout:            cfg.ProbeTimeout,
		StepDelay:               cfg.StepDelay,
		PollInterval:            cfg.PollInterval,
		MaxWait:                 cfg.MaxWait,
	}
}

// Stepper walks a two step identifier/password login form until the browser
// is redirected back to the target.
//
// NOT_STARTED -> AWAITING_IDENTIFIER -> AWAITING_PASSWORD -> REDIRECTING -> DONE,
// with FAILED reachable from every non-terminal stage. A stepper is used for
// a single login attempt.
type Stepper struct {
	creds   schemas.Credential
	opts    Options
	logger  *zap.Logger
	session schemas.AuthSession
}

// NewStepper creates a stepper for one login attempt.
func NewStepper(creds schemas.Credential, opts Options, logger *zap.Logger) *Stepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{
		creds:   creds,
		opts:    opts,
		logger:  logger.Named("auth"),
		session: schemas.AuthSession{Stage: schemas.AuthNotStarted},
	}
}

// Session returns the current stage and last observed URL.
func (s *Stepper) Session() schemas.AuthSession { return s.session }

func (s *Stepper) advance(stage schemas.AuthStage) {
	s.logger.Info("Login stage.", zap.String("from", string(s.session.Stage)), zap.String("to", string(stage)))
	s.session.Stage = stage
}

// fail moves to FAILED and returns the error describing where it happened.
func (s *Stepper) fail(reason string, err error) error {
	failed := &schemas.AuthenticationError{Stage: s.session.Stage, URL: s.session.URL, Reason: reason, Err: err}
	s.session.Stage = schemas.AuthFailed
	s.logger.Error("Login failed.", zap.String("stage", string(failed.Stage)), zap.String("reason", reason), zap.Error(err))
	return failed
}

// observe refreshes the current URL and fails on a challenge page.
func (s *Stepper) observe(ctx context.Context, page browser.Page) error {
	u, err := page.CurrentURL(ctx)
	if err != nil {
		return s.fail("could not read current url", err)
	}
	s.session.URL = u
	if MatchesAny(u, s.opts.ChallengePatterns) {
		return s.fail("identity provider requires an interactive challenge or rejected the login", nil)
	}
	return nil
}

// Authenticate runs the login flow on page. targetURL is where the browser
// should land afterwards. It returns nil only in stage DONE.
func (s *Stepper) Authenticate(ctx context.Context, page browser.Page, targetURL string) error {
	if s.session.Stage.Terminal() {
		return fmt.Errorf("login attempt already finished in stage %s", s.session.Stage)
	}
	if err := s.observe(ctx, page); err != nil {
		return err
	}
	if !MatchesAny(s.session.URL, s.opts.LoginPatterns) {
		s.logger.Info("No login page detected.", zap.String("url", s.session.URL))
		s.advance(schemas.AuthDone)
		return nil
	}

	s.logger.Info("Login page detected.", zap.String("account", s.creds.Masked()))
	s.advance(schemas.AuthAwaitingIdentifier)
	if err := s.submitField(ctx, page, "identifier", s.creds.Identifier, s.opts.IdentifierSelectors, s.opts.IdentifierNextSelectors); err != nil {
		return err
	}

	s.advance(schemas.AuthAwaitingPassword)
	if err := s.submitField(ctx, page, "password", s.creds.Secret, s.opts.PasswordSelectors, s.opts.PasswordNextSelectors); err != nil {
		return err
	}

	s.advance(schemas.AuthRedirecting)
	if err := s.awaitRedirect(ctx, page, targetURL); err != nil {
		return err
	}
	s.advance(schemas.AuthDone)
	return nil
}

// submitField fills the first interactable input and submits it.
func (s *Stepper) submitField(ctx context.Context, page browser.Page, field, value string, inputs, nexts []string) error {
	input, err := s.firstInteractable(ctx, page, inputs)
	if err != nil {
		return s.fail("probing for "+field+" input", err)
	}
	if input == "" {
		return s.fail(field+" input not found", nil)
	}

	if err := page.Fill(ctx, input, value); err != nil {
		return s.fail("filling "+field, err)
	}
	s.logger.Debug("Field filled.", zap.String("field", field), zap.String("selector", input))

	if err := s.submit(ctx, page, input, nexts); err != nil {
		return s.fail("submitting "+field, err)
	}
	if err := browser.Pause(ctx, s.opts.StepDelay); err != nil {
		return s.fail("waiting after "+field, err)
	}
	return s.observe(ctx, page)
}

// firstInteractable returns the first selector that becomes visible and
// enabled within the probe timeout, or "" if none does.
func (s *Stepper) firstInteractable(ctx context.Context, page browser.Page, selectors []string) (string, error) {
	for _, sel := range selectors {
		ok, err := page.Interactable(ctx, sel, s.opts.ProbeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			s.logger.Debug("Selector probe errored.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if ok {
			return sel, nil
		}
	}
	return "", nil
}

// submit clicks the first available "next" control, or presses Enter in the
// input when there is none.
func (s *Stepper) submit(ctx context.Context, page browser.Page, input string, nexts []string) error {
	for _, sel := range nexts {
		ok, err := page.Interactable(ctx, sel, s.opts.ProbeTimeout)
		if err != nil && ctx.Err() != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := page.Click(ctx, sel); err != nil {
			s.logger.Debug("Next control click failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		return nil
	}
	s.logger.Debug("No next control found, pressing Enter.", zap.String("selector", input))
	return page.PressEnter(ctx, input)
}

// errRedirectTimeout is wrapped when the browser never returns to the target.
var errRedirectTimeout = errors.New("timed out waiting for redirect to target")

func (s *Stepper) awaitRedirect(ctx context.Context, page browser.Page, targetURL string) error {
	deadline := time.Now().Add(s.opts.MaxWait)
	for {
		if err := s.observe(ctx, page); err != nil {
			return err
		}
		if SameHost(targetURL, s.session.URL) && !MatchesAny(s.session.URL, s.opts.LoginPatterns) {
			s.logger.Info("Redirected to target.", zap.String("url", s.session.URL))
			return nil
		}
		if !time.Now().Before(deadline) {
			return s.fail(fmt.Sprintf("still on %s after %s", s.session.URL, s.opts.MaxWait), errRedirectTimeout)
		}
		if err := browser.Pause(ctx, s.opts.PollInterval); err != nil {
			return s.fail("waiting for redirect", err)
		}
	}
}
