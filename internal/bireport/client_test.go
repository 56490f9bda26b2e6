// File: internal/bireport/client_test.go
package bireport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reportcast/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

// fakeAPI serves a minimal BI API and counts logins.
type fakeAPI struct {
	logins  atomic.Int32
	mu      sync.Mutex
	paths   []string
	badAuth bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/3.1/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		var body map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodPost || body["client_id"] != "id" || body["client_secret"] != "secret" {
			http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/3.1/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		if f.badAuth || r.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, `{"message":"Requires authentication."}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := config.BIReportConfig{
		BaseURL:      srv.URL + "/",
		ClientID:     "id",
		ClientSecret: "secret",
		APIVersion:   "3.1",
		LoginTimeout: 5 * time.Second,
		Timeout:      5 * time.Second,
	}
	c, err := NewClient(cfg, srv.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestExport(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	for _, tc := range []struct {
		kind     Kind
		id       string
		format   string
		wantPath string
	}{
		{KindDashboard, "42", "png", "/api/3.1/dashboards/42/export/png"},
		{KindLook, "7", "jpeg", "/api/3.1/looks/7/run/jpg"},
		{KindQuery, "abc", "PNG", "/api/3.1/queries/abc/run/png"},
	} {
		image, err := c.Export(context.Background(), tc.kind, tc.id, tc.format)
		require.NoError(t, err, tc.wantPath)
		assert.Equal(t, pngBytes, image)
		assert.Equal(t, tc.wantPath, api.paths[len(api.paths)-1])
	}
	assert.Equal(t, int32(1), api.logins.Load(), "the token is reused across exports")
}

func TestExport_ConcurrentLoginOnce(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Export(context.Background(), KindDashboard, "1", "png")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), api.logins.Load())
}

func TestExport_Errors(t *testing.T) {
	t.Run("rejected credentials", func(t *testing.T) {
		api := &fakeAPI{}
		srv := httptest.NewServer(api.handler(t))
		defer srv.Close()

		cfg := config.BIReportConfig{BaseURL: srv.URL, ClientID: "id", ClientSecret: "wrong", APIVersion: "3.1"}
		c, err := NewClient(cfg, srv.Client(), nil)
		require.NoError(t, err)

		_, err = c.Export(context.Background(), KindDashboard, "1", "png")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		assert.Equal(t, "login", statusErr.Op)
		assert.NotContains(t, err.Error(), "wrong")
	})

	t.Run("unauthorized export", func(t *testing.T) {
		api := &fakeAPI{badAuth: true}
		srv := httptest.NewServer(api.handler(t))
		defer srv.Close()

		_, err := newTestClient(t, srv).Export(context.Background(), KindLook, "9", "png")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
		assert.Contains(t, statusErr.Body, "Requires authentication")
	})

	t.Run("empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/3.1/login" {
				_, _ = w.Write([]byte(`{"access_token":"t"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).Export(context.Background(), KindDashboard, "1", "png")
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("login reply without token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).Login(context.Background())
		assert.ErrorContains(t, err, "access_token")
	})

	t.Run("cancelled context", func(t *testing.T) {
		api := &fakeAPI{}
		srv := httptest.NewServer(api.handler(t))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestClient(t, srv).Export(ctx, KindDashboard, "1", "png")
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("invalid input never reaches the network", func(t *testing.T) {
		api := &fakeAPI{}
		srv := httptest.NewServer(api.handler(t))
		defer srv.Close()
		c := newTestClient(t, srv)

		_, err := c.Export(context.Background(), KindDashboard, "1", "pdf")
		assert.Error(t, err)
		_, err = c.Export(context.Background(), KindDashboard, " ", "png")
		assert.Error(t, err)
		_, err = c.Export(context.Background(), Kind("board"), "1", "png")
		assert.Error(t, err)
		assert.Zero(t, api.logins.Load())
	})
}

func TestNewClientValidation(t *testing.T) {
	valid := config.BIReportConfig{BaseURL: "https://bi.example.com", ClientID: "id", ClientSecret: "s", APIVersion: "3.1"}

	_, err := NewClient(valid, nil, nil)
	assert.NoError(t, err)

	noURL := valid
	noURL.BaseURL = ""
	_, err = NewClient(noURL, nil, nil)
	assert.Error(t, err)

	noSecret := valid
	noSecret.ClientSecret = ""
	_, err = NewClient(noSecret, nil, nil)
	assert.Error(t, err)

	noVersion := valid
	noVersion.APIVersion = ""
	_, err = NewClient(noVersion, nil, nil)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Dashboard ")
	require.NoError(t, err)
	assert.Equal(t, KindDashboard, k)

	_, err = ParseKind("tile")
	assert.Error(t, err)
}
