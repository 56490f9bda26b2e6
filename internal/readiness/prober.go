// internal/readiness/prober.go
package readiness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/browser"
)

// Heuristic is one best-effort check that the page has rendered.
type Heuristic interface {
	Name() string
	Await(ctx context.Context, page browser.Page) error
}

// FixedDelay waits a fixed duration.
type FixedDelay struct {
	Label    string
	Duration time.Duration
}

func (h FixedDelay) Name() string { return h.Label }

func (h FixedDelay) Await(ctx context.Context, _ browser.Page) error {
	return browser.Pause(ctx, h.Duration)
}

// SelectorVisible polls until Selector is visible, bounded by Timeout.
type SelectorVisible struct {
	Selector string
	Timeout  time.Duration
}

func (h SelectorVisible) Name() string { return "marker " + h.Selector }

func (h SelectorVisible) Await(ctx context.Context, page browser.Page) error {
	return page.WaitVisible(ctx, h.Selector, h.Timeout)
}

// Heuristics expands a wait policy into its ordered heuristics: initial
// delay, marker selector, settle delay. Empty steps are omitted.
func Heuristics(policy schemas.WaitPolicy) []Heuristic {
	var hs []Heuristic
	if policy.Initial > 0 {
		hs = append(hs, FixedDelay{Label: "initial delay", Duration: policy.Initial})
	}
	if policy.MarkerSelector != "" {
		hs = append(hs, SelectorVisible{Selector: policy.MarkerSelector, Timeout: policy.MarkerTimeout})
	}
	if policy.Settle > 0 {
		hs = append(hs, FixedDelay{Label: "settle delay", Duration: policy.Settle})
	}
	return hs
}

// Prober runs readiness heuristics.
//
// No heuristic can prove a page finished rendering, so readiness is advisory:
// a failed heuristic is logged and the next one runs. The capture that
// follows may therefore show a partially rendered page.
type Prober struct {
	logger *zap.Logger
}

// NewProber creates a Prober.
func NewProber(logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{logger: logger.Named("readiness")}
}

// AwaitReady runs the policy's heuristics in order and reports whether all of
// them succeeded. Only cancellation of ctx stops it early.
func (p *Prober) AwaitReady(ctx context.Context, page browser.Page, policy schemas.WaitPolicy) bool {
	return p.Run(ctx, page, Heuristics(policy)...)
}

// Run executes heuristics in order with the same advisory semantics as AwaitReady.
func (p *Prober) Run(ctx context.Context, page browser.Page, heuristics ...Heuristic) bool {
	ready := true
	for _, h := range heuristics {
		start := time.Now()
		err := h.Await(ctx, page)
		if err == nil {
			p.logger.Debug("Readiness heuristic satisfied.", zap.String("heuristic", h.Name()), zap.Duration("elapsed", time.Since(start)))
			continue
		}

		ready = false
		if ctx.Err() != nil {
			p.logger.Warn("Readiness wait interrupted.", zap.String("heuristic", h.Name()), zap.Error(ctx.Err()))
			return false
		}
		timeoutErr := &schemas.RenderTimeoutError{Heuristic: h.Name(), Err: err}
		p.logger.Warn("Readiness heuristic did not complete, continuing.", zap.Error(timeoutErr))
	}
	return ready
}
