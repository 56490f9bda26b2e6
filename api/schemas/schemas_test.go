package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential(t *testing.T) {
	var nilCred *Credential
	assert.True(t, nilCred.IsZero())
	assert.Equal(t, "", nilCred.Masked())
	assert.True(t, (&Credential{}).IsZero())

	c := &Credential{Identifier: "analyst@example.com", Secret: "hunter2"}
	assert.False(t, c.IsZero())
	assert.Equal(t, "ana***", c.Masked())
	assert.Equal(t, "***", (&Credential{Identifier: "ab"}).Masked())

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2", "secrets are never serialized")
}

func TestAuthStageTerminal(t *testing.T) {
	for _, s := range []AuthStage{AuthNotStarted, AuthAwaitingIdentifier, AuthAwaitingPassword, AuthRedirecting} {
		assert.False(t, s.Terminal(), s)
	}
	assert.True(t, AuthDone.Terminal())
	assert.True(t, AuthFailed.Terminal())
}

func TestRunSummary(t *testing.T) {
	s := &RunSummary{}
	assert.Equal(t, "failed", s.Status())

	s.Record(DeliveryOutcome{Target: "a", Error: "boom"})
	s.Record(DeliveryOutcome{Target: "b", Success: true})
	assert.Equal(t, "1/2", s.String())
	assert.Equal(t, "partial", s.Status())
	assert.False(t, s.Complete())

	ok := &RunSummary{}
	ok.Record(DeliveryOutcome{Success: true})
	assert.True(t, ok.Complete())
	assert.Equal(t, "delivered", ok.Status())

	ok.Err = errors.New("interrupted")
	assert.Equal(t, "aborted", ok.Status())
	assert.False(t, ok.Complete())
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_REFUSED")

	var navErr *NavigationError
	wrapped := fmt.Errorf("run: %w", &NavigationError{URL: "http://x", Err: cause})
	require.ErrorAs(t, wrapped, &navErr)
	assert.ErrorIs(t, wrapped, cause)

	authErr := &AuthenticationError{Stage: AuthAwaitingPassword, URL: "https://idp/challenge/totp", Reason: "challenge"}
	assert.Contains(t, authErr.Error(), "AWAITING_PASSWORD")
	assert.NotContains(t, authErr.Error(), ": <nil>")

	capErr := &CaptureError{View: "report", Err: cause}
	assert.ErrorIs(t, capErr, cause)
	assert.Contains(t, capErr.Error(), `"report"`)

	rt := &RenderTimeoutError{Heuristic: `marker [data-testid="stApp"]`, Err: cause}
	assert.ErrorIs(t, rt, cause)
	assert.Equal(t, `readiness heuristic marker [data-testid="stApp"] did not complete: net::ERR_CONNECTION_REFUSED`, rt.Error())

	delErr := &DeliveryError{Succeeded: 1, Total: 3, Failures: []DeliveryOutcome{
		{Target: "a", Error: "status 500"},
		{Target: "b", Error: "code 19001"},
	}}
	assert.Equal(t, "delivered 1/3 (a: status 500; b: code 19001)", delErr.Error())
}

func TestPersonaWithViewport(t *testing.T) {
	p := DefaultPersona.WithViewport(Viewport{Width: 800, Height: 600})
	assert.Equal(t, int64(800), p.Width)
	assert.Equal(t, int64(600), p.Height)
	assert.NotEmpty(t, p.UserAgent)
}
