// internal/browser/integration_test.go
package browser_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/auth"
	"github.com/xkilldash9x/reportcast/internal/browser"
	"github.com/xkilldash9x/reportcast/internal/capture"
	"github.com/xkilldash9x/reportcast/internal/config"
)

// These tests drive a real Chrome and only run when REPORTCAST_BROWSER_TESTS=1.

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const dashboardHTML = `<html><body>
<div data-testid="stAppViewContainer">
  <button data-baseweb="tab" onclick="show('a')">Hub</button>
  <button data-baseweb="tab" onclick="show('b')">Report</button>
  <div id="a"><div data-testid="stDataFrame">rows</div></div>
  <div id="b" style="display:none">report</div>
</div>
<div style="height:3000px"></div>
<script>function show(id){for(const x of ['a','b'])document.getElementById(x).style.display=x===id?'block':'none';document.title=id;}</script>
</body></html>`

const loginHTML = `<html><body>
<div id="step1"><input id="identifierId" type="email"><button id="identifierNext" onclick="next()">Next</button></div>
<div id="step2" style="display:none"><input name="password" type="password"><button id="passwordNext" onclick="done()">Next</button></div>
<script>
function next(){document.getElementById('step1').style.display='none';document.getElementById('step2').style.display='block';}
function done(){document.cookie='session=ok; path=/';setTimeout(function(){location.href='/';},100);}
</script>
</body></html>`

// testFixture holds the environment for browser integration tests.
type testFixture struct {
	Manager *browser.Manager
	Logger  *zap.Logger
	Config  *config.Config
}

func setupBrowserManager(t *testing.T) *testFixture {
	t.Helper()
	if os.Getenv("REPORTCAST_BROWSER_TESTS") != "1" {
		t.Skip("set REPORTCAST_BROWSER_TESTS=1 to run tests against a real Chrome")
	}
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.Viewport = schemas.Viewport{Width: 1024, Height: 768}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	mgr, err := browser.NewManager(ctx, cfg.Browser(), logger)
	if err != nil {
		cancel()
		t.Fatalf("Failed to initialize Browser Manager. Ensure Chrome/Chromium is installed: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			t.Logf("Error during Browser Manager shutdown: %v", err)
		}
		cancel()
	})
	return &testFixture{Manager: mgr, Logger: logger, Config: cfg}
}

// createTestServer starts a site with a dashboard behind a two step login.
func createTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginHTML)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		fmt.Fprint(w, dashboardHTML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSession_PageOperations(t *testing.T) {
	f := setupBrowserManager(t)
	server := createTestServer(t)
	ctx := context.Background()

	page, err := f.Manager.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close(ctx)

	require.NoError(t, page.Navigate(ctx, server.URL, 30*time.Second))
	current, err := page.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/login", current)

	ok, err := page.Interactable(ctx, "#identifierId", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = page.Interactable(ctx, `input[name="password"]`, 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "hidden inputs are not interactable")

	require.NoError(t, page.Fill(ctx, "#identifierId", "ops@example.com"))
	require.NoError(t, page.Click(ctx, "#identifierNext"))
	require.NoError(t, page.WaitVisible(ctx, `input[name="password"]`, 5*time.Second))

	shot, err := page.Screenshot(ctx, false)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(shot, pngSignature))

	assert.Error(t, page.ClickNth(ctx, "#identifierNext", 3))
	require.NoError(t, page.ScrollTo(ctx, 0, 0))
}

func TestOrchestrator_LoginAndCapture(t *testing.T) {
	f := setupBrowserManager(t)
	server := createTestServer(t)

	settings := capture.SettingsFromConfig(f.Config)
	settings.DetectDelay = 500 * time.Millisecond
	settings.ScrollSettle = 0
	settings.Auth.LoginPatterns = []string{"/login"}
	settings.Auth.ProbeTimeout = 2 * time.Second
	settings.Auth.StepDelay = 300 * time.Millisecond
	settings.Auth.PollInterval = 200 * time.Millisecond
	settings.Auth.MaxWait = 10 * time.Second
	settings.Auth.IdentifierNextSelectors = []string{"#identifierNext"}
	settings.Auth.PasswordNextSelectors = []string{"#passwordNext"}

	preset, err := capture.LookupPreset(capture.PresetDashboard)
	require.NoError(t, err)
	for i := range preset.Views {
		preset.Views[i].Settle = 200 * time.Millisecond
	}
	req := schemas.CaptureRequest{
		TargetURL:   server.URL + "/",
		Credentials: &schemas.Credential{Identifier: "ops@example.com", Secret: "hunter2"},
		Wait:        schemas.WaitPolicy{MarkerSelector: `[data-testid="stAppViewContainer"]`, MarkerTimeout: 5 * time.Second},
		TabSelector: `button[data-baseweb="tab"]`,
		Views:       append(preset.Views, schemas.View{Name: "full", TabIndex: schemas.NoTab, FullPage: true}),
	}

	o := capture.NewOrchestrator(f.Manager, settings, nil, f.Logger)
	results, err := o.Capture(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, bytes.HasPrefix(r.Image, pngSignature), r.Name)
		assert.False(t, auth.MatchesAny(r.FinalURL, settings.Auth.LoginPatterns), r.Name)
	}
}
