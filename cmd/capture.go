// File: cmd/capture.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/internal/capture"
	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/delivery"
	"github.com/xkilldash9x/reportcast/internal/observability"
	"github.com/xkilldash9x/reportcast/internal/pipeline"
)

// newCaptureCmd creates and configures the `capture` command.
func newCaptureCmd(deps Dependencies) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a dashboard or report and deliver the screenshots",
		Long: fmt.Sprintf(`Opens the target in headless Chrome, logs in if the identity provider's login
page appears, waits for the page to render and captures every view of the
preset. Each screenshot is posted to the webhook once. Nothing is delivered
unless every view was captured.

Presets: %v`, capture.PresetNames()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			// Delegate to the testable core logic function.
			return runCapture(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout(), deps)
		},
	}

	flags := captureCmd.Flags()
	flags.String("url", "", "URL of the dashboard or report")
	flags.String("preset", capture.PresetDashboard, "view layout to capture")
	flags.String("webhook", "", "chat webhook URL")
	flags.Int("wait", 0, "initial render wait in seconds (0 uses the preset default)")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.String("profile-dir", "", "persistent Chrome profile directory")

	bindFlag(captureCmd, "url", "target.url")
	bindFlag(captureCmd, "preset", "target.preset")
	bindFlag(captureCmd, "webhook", "webhook.url")
	bindFlag(captureCmd, "wait", "wait.seconds")
	bindFlag(captureCmd, "headless", "browser.headless")
	bindFlag(captureCmd, "profile-dir", "browser.profile_dir")
	return captureCmd
}

// runCapture contains the core, testable logic of a capture run.
func runCapture(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer, deps Dependencies) error {
	webhook := cfg.Webhook()
	if err := webhook.ValidateDestination(); err != nil {
		return err
	}
	req, err := capture.BuildRequest(cfg)
	if err != nil {
		return err
	}

	job := "capture:" + cfg.Target().Preset
	logger.Info("Starting capture run.",
		zap.String("job", job),
		zap.String("url", req.TargetURL),
		zap.String("webhook", delivery.RedactEndpoint(webhook.URL)),
		zap.Int("views", len(req.Views)),
		zap.Bool("headless", req.Headless),
		observability.MaskedCredential("account", req.Credentials),
	)

	recorder, closeStore := openRecorder(ctx, cfg, deps.Stores, logger)
	defer closeStore()

	var capturer pipeline.Capturer
	var createErr error
	if deps.Capturers == nil {
		createErr = fmt.Errorf("no capturer configured")
	} else {
		var closeCapturer func()
		capturer, closeCapturer, createErr = deps.Capturers.Create(ctx, cfg, req, logger)
		if createErr == nil && closeCapturer != nil {
			defer closeCapturer()
		}
	}

	p, err := newPipeline(cfg, capturer, recorder, logger)
	if err != nil {
		return err
	}
	if createErr != nil {
		summary, err := p.Fail(ctx, job, fmt.Errorf("failed to start capture: %w", createErr))
		printSummary(out, summary)
		return err
	}

	summary, err := p.Run(ctx, job, req, webhook.URL)
	printSummary(out, summary)
	return err
}
