package schemas

import (
	"fmt"
	"strings"
)

// NavigationError reports that the target could not be reached in time.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// AuthenticationError reports that the login flow could not reach the target.
// A screenshot is never taken after one of these.
type AuthenticationError struct {
	Stage  AuthStage
	URL    string
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed at stage %s (url: %s): %s", e.Stage, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RenderTimeoutError is produced by a readiness heuristic that did not
// complete. It is logged and never aborts a run.
type RenderTimeoutError struct {
	Heuristic string
	Err       error
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("readiness heuristic %s did not complete: %v", e.Heuristic, e.Err)
}

func (e *RenderTimeoutError) Unwrap() error { return e.Err }

// CaptureError reports a failed screenshot for a view.
type CaptureError struct {
	View string
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture of view %q failed: %v", e.View, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// DeliveryError is returned when at least one delivery of a run failed.
type DeliveryError struct {
	Succeeded int
	Total     int
	Failures  []DeliveryOutcome
}

func (e *DeliveryError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.Target, f.Error))
	}
	return fmt.Sprintf("delivered %d/%d (%s)", e.Succeeded, e.Total, strings.Join(reasons, "; "))
}
