// internal/capture/orchestrator_test.go
package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reportcast/api/schemas"
	"github.com/xkilldash9x/reportcast/internal/auth"
	"github.com/xkilldash9x/reportcast/internal/browser/browsertest"
	"github.com/xkilldash9x/reportcast/internal/config"
	"github.com/xkilldash9x/reportcast/internal/mocks"
)

const (
	dashboardURL = "http://dashboard.internal:8501/"
	reportURL    = "https://lookerstudio.google.com/reporting/abc"
	loginURL     = "https://accounts.google.com/v3/signin/identifier?continue=x"
	tabSelector  = `button[data-baseweb="tab"]`
	marker       = `[data-testid="stAppViewContainer"]`
)

func testSettings() Settings {
	opts := auth.OptionsFromConfig(config.NewDefaultConfig().AuthCfg)
	opts.ProbeTimeout = time.Millisecond
	opts.StepDelay = 0
	opts.PollInterval = time.Millisecond
	opts.MaxWait = 20 * time.Millisecond
	return Settings{NavigationTimeout: time.Second, Auth: opts}
}

// dashboardRequest uses the dashboard preset with the delays removed.
func dashboardRequest(t *testing.T) schemas.CaptureRequest {
	t.Helper()
	p, err := LookupPreset(PresetDashboard)
	require.NoError(t, err)
	for i := range p.Views {
		p.Views[i].Settle = 0
	}
	return schemas.CaptureRequest{
		TargetURL:   dashboardURL,
		Wait:        schemas.WaitPolicy{MarkerSelector: marker},
		TabSelector: tabSelector,
		Views:       p.Views,
	}
}

func reportRequest(creds *schemas.Credential) schemas.CaptureRequest {
	return schemas.CaptureRequest{
		TargetURL:   reportURL,
		Credentials: creds,
		Views:       []schemas.View{{Name: "report", TabIndex: schemas.NoTab, FullPage: true, ArtifactName: "report.png"}},
	}
}

func browserFor(page *browsertest.FakePage) *mocks.MockBrowser {
	b := new(mocks.MockBrowser)
	b.On("NewPage", mock.Anything).Return(page, nil)
	return b
}

func TestCapture_Dashboard(t *testing.T) {
	page := browsertest.NewFakePage(marker, dataFrameSelector)
	sink := new(mocks.MockSink)
	sink.On("Store", mock.Anything, "dashboard_tab1_soc_hub.png", mock.Anything).Return("/out/dashboard_tab1_soc_hub.png", nil)
	sink.On("Store", mock.Anything, "dashboard_tab2_report.png", mock.Anything).Return("/out/dashboard_tab2_report.png", nil)

	o := NewOrchestrator(browserFor(page), testSettings(), sink, zaptest.NewLogger(t))
	results, err := o.Capture(context.Background(), dashboardRequest(t))
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "soc_hub", results[0].Name)
	assert.Equal(t, "/out/dashboard_tab1_soc_hub.png", results[0].ArtifactLocation)
	assert.Equal(t, "report", results[1].Name)
	assert.Equal(t, dashboardURL, results[1].FinalURL)
	assert.NotEmpty(t, results[1].Image)
	assert.False(t, results[0].CapturedAt.IsZero())

	assert.Equal(t, []string{
		"navigate:" + dashboardURL,
		"wait:" + marker,
		"clicknth:" + tabSelector + ":0",
		"wait:" + dataFrameSelector,
		"scroll:0,0",
		"screenshot:viewport",
		"clicknth:" + tabSelector + ":1",
		"scroll:0,0",
		"screenshot:viewport",
		"close",
	}, page.Calls())
	sink.AssertExpectations(t)
}

func TestCapture_NavigationFailure(t *testing.T) {
	page := browsertest.NewFakePage()
	page.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := NewOrchestrator(browserFor(page), testSettings(), nil, nil).Capture(context.Background(), dashboardRequest(t))

	var navErr *schemas.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, dashboardURL, navErr.URL)
	assert.Zero(t, page.Count("screenshot:viewport"))
	assert.True(t, page.Closed())
}

func TestCapture_LoginWithoutCredentials(t *testing.T) {
	page := browsertest.NewFakePage("#identifierId")
	page.NavigateTo = loginURL

	_, err := NewOrchestrator(browserFor(page), testSettings(), nil, nil).Capture(context.Background(), reportRequest(nil))

	var authErr *schemas.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, schemas.AuthNotStarted, authErr.Stage)
	assert.Equal(t, loginURL, authErr.URL)
	assert.Equal(t, []string{"navigate:" + reportURL, "close"}, page.Calls(), "the login flow must not start")
}

func TestCapture_LoginThenCapture(t *testing.T) {
	page := browsertest.NewFakePage("#identifierId", "#identifierNext")
	page.NavigateTo = loginURL
	page.OnClick = func(p *browsertest.FakePage, sel string) {
		switch sel {
		case "#identifierNext":
			p.SetVisible(`input[name="password"]`, true)
			p.SetVisible("#passwordNext", true)
		case "#passwordNext":
			p.SetURL(reportURL)
		}
	}
	creds := &schemas.Credential{Identifier: "ops@example.com", Secret: "hunter2"}

	results, err := NewOrchestrator(browserFor(page), testSettings(), nil, zaptest.NewLogger(t)).
		Capture(context.Background(), reportRequest(creds))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, reportURL, results[0].FinalURL)
	assert.Empty(t, results[0].ArtifactLocation)
	assert.Equal(t, 1, page.Count("screenshot:full"))
	assert.Zero(t, page.Count("clicknth:"+tabSelector+":-1"), "views without a tab are not clicked")
}

func TestCapture_ChallengeNeverScreenshots(t *testing.T) {
	page := browsertest.NewFakePage("#identifierId", "#identifierNext")
	page.NavigateTo = loginURL
	page.OnClick = func(p *browsertest.FakePage, sel string) {
		p.SetURL("https://accounts.google.com/v3/signin/challenge/totp?TL=1")
	}
	creds := &schemas.Credential{Identifier: "ops@example.com", Secret: "hunter2"}

	results, err := NewOrchestrator(browserFor(page), testSettings(), nil, nil).Capture(context.Background(), reportRequest(creds))

	var authErr *schemas.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Nil(t, results)
	assert.Zero(t, page.Count("screenshot:full"))
	assert.True(t, page.Closed())
}

func TestCapture_SessionLostBetweenViews(t *testing.T) {
	page := browsertest.NewFakePage(marker, dataFrameSelector)
	// One read after the detect delay, then one before each screenshot.
	page.QueueURLs(dashboardURL, dashboardURL, loginURL)

	results, err := NewOrchestrator(browserFor(page), testSettings(), nil, nil).Capture(context.Background(), dashboardRequest(t))

	var authErr *schemas.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, `"report"`)
	assert.Nil(t, results, "no partial result set may escape")
	assert.Equal(t, 1, page.Count("screenshot:viewport"))
}

func TestCapture_ScreenshotFailureAborts(t *testing.T) {
	page := browsertest.NewFakePage(marker)
	page.ScreenshotErr = errors.New("target closed")

	_, err := NewOrchestrator(browserFor(page), testSettings(), nil, nil).Capture(context.Background(), dashboardRequest(t))

	var capErr *schemas.CaptureError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "soc_hub", capErr.View)
	assert.Equal(t, 1, page.Count("screenshot:viewport"))
}

func TestCapture_AdvisoryFailuresContinue(t *testing.T) {
	// Neither the marker nor the data frame ever shows up and tab clicks fail.
	page := browsertest.NewFakePage()
	page.ClickNthErr = errors.New("index out of range")
	sink := new(mocks.MockSink)
	sink.On("Store", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("read-only file system"))

	results, err := NewOrchestrator(browserFor(page), testSettings(), sink, zaptest.NewLogger(t)).
		Capture(context.Background(), dashboardRequest(t))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].ArtifactLocation)
	assert.Equal(t, 2, page.Count("screenshot:viewport"))
}

func TestCapture_Setup(t *testing.T) {
	t.Run("no views", func(t *testing.T) {
		b := new(mocks.MockBrowser)
		_, err := NewOrchestrator(b, testSettings(), nil, nil).Capture(context.Background(), schemas.CaptureRequest{TargetURL: dashboardURL})
		assert.Error(t, err)
		b.AssertNotCalled(t, "NewPage", mock.Anything)
	})

	t.Run("page cannot be opened", func(t *testing.T) {
		b := new(mocks.MockBrowser)
		b.On("NewPage", mock.Anything).Return(nil, errors.New("browser crashed"))
		_, err := NewOrchestrator(b, testSettings(), nil, nil).Capture(context.Background(), dashboardRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser crashed")
	})
}
