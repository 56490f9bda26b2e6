// Package browsertest provides a scriptable in-memory browser.Page.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/reportcast/internal/browser"
)

// FakePage records every call and answers from its fields. Hooks run after
// the call is recorded and may change the page state, e.g. to simulate a
// redirect after a click.
type FakePage struct {
	mu sync.Mutex

	url      string
	urlQueue []string
	visible  map[string]bool
	calls    []string
	closed   bool

	NavigateErr   error
	ClickErr      error
	ClickNthErr   error
	ScreenshotErr error
	// Image is returned by Screenshot. Defaults to a PNG signature.
	Image []byte

	// NavigateTo is the URL the page lands on after Navigate. Defaults to the requested URL.
	NavigateTo string

	OnClick func(p *FakePage, selector string)
	OnEnter func(p *FakePage, selector string)
}

var _ browser.Page = (*FakePage)(nil)

// ErrNotVisible is returned by WaitVisible for selectors not marked visible.
var ErrNotVisible = errors.New("browsertest: selector not visible")

// NewFakePage returns a page whose listed selectors are interactable.
func NewFakePage(visible ...string) *FakePage {
	p := &FakePage{visible: map[string]bool{}}
	for _, s := range visible {
		p.visible[s] = true
	}
	return p
}

// SetURL changes the current URL.
func (p *FakePage) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// QueueURLs makes the next CurrentURL calls return urls in order; afterwards
// the last one sticks.
func (p *FakePage) QueueURLs(urls ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlQueue = append(p.urlQueue, urls...)
}

// SetVisible marks selector as interactable or not.
func (p *FakePage) SetVisible(selector string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[selector] = visible
}

// Calls returns the recorded call log.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Count returns how many recorded calls equal call.
func (p *FakePage) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) record(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *FakePage) Navigate(ctx context.Context, url string, _ time.Duration) error {
	p.record("navigate:%s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if p.NavigateTo != "" {
		url = p.NavigateTo
	}
	p.SetURL(url)
	return ctx.Err()
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urlQueue) > 0 {
		p.url = p.urlQueue[0]
		p.urlQueue = p.urlQueue[1:]
	}
	return p.url, ctx.Err()
}

func (p *FakePage) Interactable(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	p.record("probe:%s", selector)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	p.record("wait:%s", selector)
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("%w: %s", ErrNotVisible, selector)
	}
	return nil
}

func (p *FakePage) Fill(_ context.Context, selector, _ string) error {
	// The value is deliberately not recorded; it may be a secret.
	p.record("fill:%s", selector)
	return nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	p.record("click:%s", selector)
	if p.ClickErr != nil {
		return p.ClickErr
	}
	if p.OnClick != nil {
		p.OnClick(p, selector)
	}
	return nil
}

func (p *FakePage) ClickNth(_ context.Context, selector string, index int) error {
	p.record("clicknth:%s:%d", selector, index)
	return p.ClickNthErr
}

func (p *FakePage) PressEnter(_ context.Context, selector string) error {
	p.record("enter:%s", selector)
	if p.OnEnter != nil {
		p.OnEnter(p, selector)
	}
	return nil
}

func (p *FakePage) ScrollTo(_ context.Context, x, y int) error {
	p.record("scroll:%d,%d", x, y)
	return nil
}

func (p *FakePage) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	if fullPage {
		p.record("screenshot:full")
	} else {
		p.record("screenshot:viewport")
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	if p.Image != nil {
		return p.Image, nil
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *FakePage) Close(context.Context) error {
	p.record("close")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
