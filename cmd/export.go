// File: cmd/export.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/reportcast/internal/artifacts"
	"github.com/xkilldash9x/reportcast/internal/bireport"
	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/delivery"
	"github.com/xkilldash9x/reportcast/internal/network"
	"github.com/xkilldash9x/reportcast/internal/observability"
	"github.com/xkilldash9x/reportcast/internal/pipeline"
)

// exportConcurrency bounds parallel export requests against the BI API.
const exportConcurrency = 4

type exportOptions struct {
	Kind string
	IDs  []string
}

// newExportCmd creates and configures the `export` command.
func newExportCmd(deps Dependencies) *cobra.Command {
	var opts exportOptions

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export images through the BI REST API and deliver them",
		Long: `Logs in to the BI REST API with client credentials, exports every requested
dashboard, look or query as an image and posts each one to the webhook.
Nothing is delivered unless every export succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runExport(ctx, observability.GetLogger(), cfg, cmd.OutOrStdout(), opts, deps)
		},
	}

	flags := exportCmd.Flags()
	flags.StringVar(&opts.Kind, "kind", string(bireport.KindDashboard), "object kind: dashboard, look or query")
	flags.StringSliceVar(&opts.IDs, "id", nil, "object id (repeatable)")
	_ = exportCmd.MarkFlagRequired("id")
	flags.String("format", "png", "image format: png or jpg")
	flags.String("webhook", "", "chat webhook URL")

	bindFlag(exportCmd, "format", "bireport.format")
	bindFlag(exportCmd, "webhook", "webhook.url")
	return exportCmd
}

// runExport contains the core, testable logic of an export run.
func runExport(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer, opts exportOptions, deps Dependencies) error {
	webhook := cfg.Webhook()
	if err := webhook.ValidateDestination(); err != nil {
		return err
	}
	kind, err := bireport.ParseKind(opts.Kind)
	if err != nil {
		return err
	}
	biCfg := cfg.BIReport()
	format, err := bireport.NormalizeFormat(biCfg.Format)
	if err != nil {
		return err
	}
	if len(opts.IDs) == 0 {
		return fmt.Errorf("at least one --id is required")
	}

	clientCfg := network.NewClientConfig(biCfg.Timeout)
	clientCfg.Logger = logger
	client, err := bireport.NewClient(biCfg, network.NewClient(clientCfg), logger)
	if err != nil {
		return err
	}

	job := "export:" + string(kind)
	logger.Info("Starting export run.",
		zap.String("job", job),
		zap.Strings("ids", opts.IDs),
		zap.String("format", format),
		zap.String("webhook", delivery.RedactEndpoint(webhook.URL)),
	)

	recorder, closeStore := openRecorder(ctx, cfg, deps.Stores, logger)
	defer closeStore()
	p, err := newPipeline(cfg, nil, recorder, logger)
	if err != nil {
		return err
	}

	images, err := exportAll(ctx, client, kind, opts.IDs, format)
	if err != nil {
		summary, err := p.Fail(ctx, job, err)
		printSummary(out, summary)
		return err
	}

	keepArtifacts(ctx, openSink(ctx, cfg, logger), images, format, logger)

	summary, err := p.Deliver(ctx, job, images, webhook.URL)
	printSummary(out, summary)
	return err
}

// exportAll fetches every id concurrently. The images keep the order of ids,
// and the first failure cancels the remaining requests.
func exportAll(ctx context.Context, client *bireport.Client, kind bireport.Kind, ids []string, format string) ([]pipeline.Image, error) {
	images := make([]pipeline.Image, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			data, err := client.Export(gctx, kind, id, format)
			if err != nil {
				return fmt.Errorf("export of %s %s failed: %w", kind, id, err)
			}
			images[i] = pipeline.Image{Name: fmt.Sprintf("%s/%s", kind, id), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// keepArtifacts stores exported images for operator verification.
func keepArtifacts(ctx context.Context, sink artifacts.Sink, images []pipeline.Image, format string, logger *zap.Logger) {
	if sink == nil {
		return
	}
	for _, img := range images {
		name := fmt.Sprintf("export_%s.%s", sanitizeName(img.Name), format)
		if _, err := sink.Store(ctx, name, img.Data); err != nil {
			logger.Warn("Failed to persist export.", zap.String("artifact", name), zap.Error(err))
		}
	}
}

func sanitizeName(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
