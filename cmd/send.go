// File: cmd/send.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/delivery"
	"github.com/xkilldash9x/reportcast/internal/observability"
	"github.com/xkilldash9x/reportcast/internal/pipeline"
)

// newSendCmd creates and configures the `send` command.
func newSendCmd(deps Dependencies) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <image> [image...]",
		Short: "Deliver existing image files to the webhook",
		Long:  `Posts each image file to the webhook once. Useful to check a webhook before scheduling a capture.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runSend(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout(), args, deps)
		},
	}

	sendCmd.Flags().String("webhook", "", "chat webhook URL")
	bindFlag(sendCmd, "webhook", "webhook.url")
	return sendCmd
}

// runSend contains the core, testable logic of the send command.
func runSend(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer, paths []string, deps Dependencies) error {
	webhook := cfg.Webhook()
	if err := webhook.ValidateDestination(); err != nil {
		return err
	}
	logger.Info("Sending image files.", zap.Strings("files", paths), zap.String("webhook", delivery.RedactEndpoint(webhook.URL)))

	recorder, closeStore := openRecorder(ctx, cfg, deps.Stores, logger)
	defer closeStore()
	p, err := newPipeline(cfg, nil, recorder, logger)
	if err != nil {
		return err
	}

	images := make([]pipeline.Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			summary, err := p.Fail(ctx, "send", fmt.Errorf("failed to read image: %w", err))
			printSummary(out, summary)
			return err
		}
		images = append(images, pipeline.Image{Name: filepath.Base(path), Data: data})
	}

	summary, err := p.Deliver(ctx, "send", images, webhook.URL)
	printSummary(out, summary)
	return err
}
