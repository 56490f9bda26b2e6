// internal/browser/page.go
package browser

import (
	"context"
	"time"
)

// Page is a single browser tab driven by the capture flow. Every method
// blocks until done or until ctx is cancelled.
type Page interface {
	// Navigate loads url and waits for the document body, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// CurrentURL returns the URL the tab is on right now.
	CurrentURL(ctx context.Context) (string, error)
	// Interactable reports whether selector matches a visible, enabled element
	// before timeout elapses. A timeout is not an error.
	Interactable(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the index-th element matching selector.
	ClickNth(ctx context.Context, selector string, index int) error
	// PressEnter sends the Enter key to the element matching selector.
	PressEnter(ctx context.Context, selector string) error
	ScrollTo(ctx context.Context, x, y int) error
	// Screenshot returns a PNG of the viewport, or of the whole page when fullPage is set.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Close(ctx context.Context) error
}
