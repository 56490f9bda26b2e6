// File: internal/pipeline/pipeline.go
// Description: Ties capture and delivery together. Every entry point runs
// through here so the delivery contract and the run summary are the same
// for browser captures, BI exports and file sends.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/delivery"
)

// Capturer produces the images of one run. *capture.Orchestrator satisfies it.
type Capturer interface {
	Capture(ctx context.Context, req schemas.CaptureRequest) ([]schemas.CaptureResult, error)
}

// Recorder persists finished runs. *store.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, summary *schemas.RunSummary) error
}

// Image is one payload to deliver.
type Image struct {
	Name string
	Data []byte
}

// Options configures optional pipeline behavior.
type Options struct {
	// MinInterval spaces consecutive deliveries. Zero disables pacing.
	MinInterval time.Duration
	// Recorder, when set, receives every run summary.
	Recorder Recorder
}

// Pipeline captures images and delivers each of them exactly once.
type Pipeline struct {
	capturer  Capturer
	deliverer delivery.Deliverer
	limiter   *rate.Limiter
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a pipeline. capturer may be nil for deliver-only use.
func New(capturer Capturer, deliverer delivery.Deliverer, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("cannot initialize pipeline without a deliverer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		capturer:  capturer,
		deliverer: deliverer,
		limiter:   newLimiter(opts.MinInterval),
		recorder:  opts.Recorder,
		logger:    logger.Named("pipeline"),
		now:       time.Now,
	}, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Run captures every view of req and, only if all of them succeeded,
// delivers each image to endpoint. The summary is always returned. The error
// is the abort-level capture error, or a *schemas.DeliveryError when at least
// one delivery failed.
func (p *Pipeline) Run(ctx context.Context, job string, req schemas.CaptureRequest, endpoint string) (*schemas.RunSummary, error) {
	summary := p.begin(job)
	if p.capturer == nil {
		return p.abort(ctx, summary, fmt.Errorf("pipeline %s has no capturer", job))
	}

	results, err := p.capturer.Capture(ctx, req)
	if err != nil {
		p.logger.Error("Capture aborted, nothing will be delivered.", zap.String("run_id", summary.RunID), zap.Error(err))
		return p.abort(ctx, summary, err)
	}

	images := make([]Image, 0, len(results))
	for _, r := range results {
		images = append(images, Image{Name: r.Name, Data: r.Image})
	}
	return p.deliverAll(ctx, summary, images, endpoint)
}

// Deliver sends already produced images, one delivery per image.
func (p *Pipeline) Deliver(ctx context.Context, job string, images []Image, endpoint string) (*schemas.RunSummary, error) {
	summary := p.begin(job)
	if len(images) == 0 {
		return p.abort(ctx, summary, fmt.Errorf("nothing to deliver for %s", job))
	}
	return p.deliverAll(ctx, summary, images, endpoint)
}

// Fail records a run that was aborted before it produced any image, so
// failed exports show up in run history next to failed captures.
func (p *Pipeline) Fail(ctx context.Context, job string, cause error) (*schemas.RunSummary, error) {
	return p.abort(ctx, p.begin(job), cause)
}

func (p *Pipeline) begin(job string) *schemas.RunSummary {
	s := &schemas.RunSummary{
		RunID:     uuid.NewString(),
		Job:       job,
		StartedAt: p.now().UTC(),
	}
	p.logger.Info("Run started.", zap.String("run_id", s.RunID), zap.String("job", job))
	return s
}

func (p *Pipeline) abort(ctx context.Context, s *schemas.RunSummary, err error) (*schemas.RunSummary, error) {
	s.Err = err
	p.finish(ctx, s)
	return s, err
}

func (p *Pipeline) deliverAll(ctx context.Context, s *schemas.RunSummary, images []Image, endpoint string) (*schemas.RunSummary, error) {
	var failures []schemas.DeliveryOutcome
	for _, img := range images {
		outcome := p.deliverOne(ctx, img, endpoint)
		s.Record(outcome)
		if !outcome.Success {
			failures = append(failures, outcome)
		}
	}
	p.finish(ctx, s)

	if len(failures) > 0 {
		return s, &schemas.DeliveryError{Succeeded: s.Succeeded, Total: s.Total, Failures: failures}
	}
	return s, nil
}

// deliverOne makes exactly one attempt. A failed delivery never stops the
// remaining ones.
func (p *Pipeline) deliverOne(ctx context.Context, img Image, endpoint string) schemas.DeliveryOutcome {
	logger := p.logger.With(zap.String("image", img.Name))
	if err := p.limiter.Wait(ctx); err != nil {
		logger.Warn("Delivery not attempted.", zap.Error(err))
		return schemas.DeliveryOutcome{Target: img.Name, Error: fmt.Sprintf("not attempted: %v", err)}
	}

	outcome := p.deliverer.Deliver(ctx, img.Data, endpoint)
	outcome.Target = img.Name
	if outcome.Success {
		logger.Info("Delivered.", zap.String("message_id", outcome.MessageID))
	} else {
		logger.Error("Delivery failed.", zap.String("error", outcome.Error), zap.Int("status", outcome.StatusCode))
	}
	return outcome
}

func (p *Pipeline) finish(ctx context.Context, s *schemas.RunSummary) {
	s.FinishedAt = p.now().UTC()
	p.logger.Info("Run finished.",
		zap.String("run_id", s.RunID),
		zap.String("status", s.Status()),
		zap.Stringer("delivered", s),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
	)
	if p.recorder == nil {
		return
	}
	// Recording must not be skipped because the run itself was cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.recorder.RecordRun(recordCtx, s); err != nil {
		p.logger.Warn("Failed to record run history.", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

const recordTimeout = 10 * time.Second
