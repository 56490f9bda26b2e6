// File: cmd/providers.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/artifacts"
	"github.com/xkilldash9x/reportcast/internal/browser"
	"github.com/xkilldash9x/reportcast/internal/capture"
	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/delivery"
	"github.com/xkilldash9x/reportcast/internal/network"
	"github.com/xkilldash9x/reportcast/internal/pipeline"
	"github.com/xkilldash9x/reportcast/internal/store"
)

const browserShutdownTimeout = 15 * time.Second

// storeProvider creates the run history recorder. This abstraction allows
// tests to inject a mock instead of a live database connection.
type storeProvider interface {
	// Create returns the recorder and a cleanup function. A nil recorder
	// means run history is disabled.
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pipeline.Recorder, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL backed provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pipeline.Recorder, func(), error) {
	if cfg.Database().URL == "" {
		return nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := storeService.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// capturerProvider creates the component that produces screenshots for req.
// The browser is launched with the request's viewport, headless mode and
// profile directory.
type capturerProvider interface {
	Create(ctx context.Context, cfg config.Interface, req schemas.CaptureRequest, logger *zap.Logger) (pipeline.Capturer, func(), error)
}

type defaultCapturerProvider struct{}

// NewCapturerProvider returns the headless Chrome backed provider.
func NewCapturerProvider() capturerProvider {
	return &defaultCapturerProvider{}
}

func (p *defaultCapturerProvider) Create(ctx context.Context, cfg config.Interface, req schemas.CaptureRequest, logger *zap.Logger) (pipeline.Capturer, func(), error) {
	sink := openSink(ctx, cfg, logger)

	manager, err := browser.NewManager(ctx, capture.BrowserConfig(cfg.Browser(), req), logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), browserShutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported an error.", zap.Error(err))
		}
	}
	return capture.NewOrchestrator(manager, capture.SettingsFromConfig(cfg), sink, logger), cleanup, nil
}

// openRecorder returns the run history recorder, or nil when it is disabled
// or unavailable. Run history never blocks a delivery.
func openRecorder(ctx context.Context, cfg config.Interface, provider storeProvider, logger *zap.Logger) (pipeline.Recorder, func()) {
	if provider == nil {
		return nil, func() {}
	}
	recorder, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Run history unavailable, continuing without it.", zap.Error(err))
		return nil, func() {}
	}
	if cleanup == nil {
		cleanup = func() {}
	}
	return recorder, cleanup
}

// openSink builds the artifact sink. Artifacts are best-effort, so a broken
// sink configuration only disables them.
func openSink(ctx context.Context, cfg config.Interface, logger *zap.Logger) artifacts.Sink {
	sink, err := artifacts.FromConfig(ctx, cfg.Artifacts(), logger)
	if err != nil {
		logger.Warn("Artifact storage unavailable, images will not be kept.", zap.Error(err))
		return nil
	}
	return sink
}

// newPipeline wires the webhook delivery client into a pipeline.
func newPipeline(cfg config.Interface, capturer pipeline.Capturer, recorder pipeline.Recorder, logger *zap.Logger) (*pipeline.Pipeline, error) {
	webhook := cfg.Webhook()
	clientCfg := network.NewClientConfig(webhook.Timeout)
	clientCfg.Logger = logger
	deliverer := delivery.NewClient(network.NewClient(clientCfg), logger)

	return pipeline.New(capturer, deliverer, pipeline.Options{
		MinInterval: webhook.MinInterval,
		Recorder:    recorder,
	}, logger)
}
