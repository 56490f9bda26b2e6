// File: internal/bireport/client.go
// Description: Exports rendered images from a BI platform REST API using a
// client credentials token. This is the browserless alternative to a
// capture run.

package bireport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/internal/config"
)

// Kind is the type of BI object to export.
type Kind string

const (
	KindDashboard Kind = "dashboard"
	KindLook      Kind = "look"
	KindQuery     Kind = "query"
)

// maxErrorBody caps how much of an error reply ends up in an error message.
const maxErrorBody = 512

var supportedFormats = map[string]bool{"png": true, "jpg": true}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDashboard, KindLook, KindQuery:
		return k, nil
	default:
		return "", fmt.Errorf("unknown export kind %q (want dashboard, look or query)", s)
	}
}

// NormalizeFormat validates an output format. "jpeg" is accepted as "jpg".
func NormalizeFormat(f string) (string, error) {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "jpeg" {
		f = "jpg"
	}
	if !supportedFormats[f] {
		return "", fmt.Errorf("unsupported export format %q (want png or jpg)", f)
	}
	return f, nil
}

// StatusError is returned for non-2xx API replies.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bi api %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to the BI REST API. It logs in lazily and reuses the token
// for every export; it is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	apiBase      string
	clientID     string
	clientSecret string
	loginTimeout time.Duration
	timeout      time.Duration
	logger       *zap.Logger

	mu    sync.Mutex
	token string
}

// NewClient validates cfg and creates a client.
func NewClient(cfg config.BIReportConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if err := config.ValidateHTTPURL("bireport.base_url", cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("bireport.client_id and bireport.client_secret are required")
	}
	if cfg.APIVersion == "" {
		return nil, errors.New("bireport.api_version is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:   httpClient,
		apiBase:      strings.TrimRight(cfg.BaseURL, "/") + "/api/" + cfg.APIVersion,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		loginTimeout: cfg.LoginTimeout,
		timeout:      cfg.Timeout,
		logger:       logger.Named("bireport"),
	}, nil
}

// ExportPath returns the API path of an export, relative to the versioned base.
func ExportPath(kind Kind, id, format string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("export id is required")
	}
	escaped := url.PathEscape(id)
	switch kind {
	case KindDashboard:
		return "/dashboards/" + escaped + "/export/" + format, nil
	case KindLook:
		return "/looks/" + escaped + "/run/" + format, nil
	case KindQuery:
		return "/queries/" + escaped + "/run/" + format, nil
	default:
		return "", fmt.Errorf("unknown export kind %q", kind)
	}
}

type loginReply struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges the client credentials for an access token and caches it.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.loginTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "login")
	if err != nil {
		return "", err
	}
	var reply loginReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("failed to decode login reply: %w", err)
	}
	if reply.AccessToken == "" {
		return "", errors.New("login reply has no access_token")
	}

	c.token = reply.AccessToken
	c.logger.Info("Obtained BI API token.")
	return c.token, nil
}

// Export downloads one rendered object.
func (c *Client) Export(ctx context.Context, kind Kind, id, format string) ([]byte, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	path, err := ExportPath(kind, id, format)
	if err != nil {
		return nil, err
	}
	token, err := c.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("bi api login failed: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	image, err := c.do(req, "export "+string(kind))
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("bi api returned an empty %s export for %s", kind, id)
	}
	c.logger.Info("Exported.", zap.String("kind", string(kind)), zap.String("id", id),
		zap.Int("bytes", len(image)), zap.Duration("elapsed", time.Since(start)))
	return image, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bi api %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bi api %s reply: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(raw)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}
	return raw, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
