// File: internal/delivery/client.go
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
)

const (
	// envelopeTag is the message type understood by the chat webhook.
	envelopeTag = "image"
	// maxResponseBody caps how much of a reply is kept for diagnostics.
	maxResponseBody = 64 * 1024
)

// Deliverer posts one image to one webhook endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, image []byte, endpoint string) schemas.DeliveryOutcome
}

// Client delivers images to a chat webhook. Each call is exactly one attempt;
// there is no retry and no deduplication.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Deliverer = (*Client)(nil)

// NewClient creates a delivery client. The http.Client's Timeout bounds each attempt.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{httpClient: httpClient, logger: logger.Named("delivery")}
}

// webhookReply is the subset of the webhook response we interpret.
type webhookReply struct {
	Code      *json.Number    `json:"code"`
	MessageID json.RawMessage `json:"message_id"`
}

// BuildEnvelope encodes the image into the webhook's JSON body.
func BuildEnvelope(image []byte) ([]byte, error) {
	return json.Marshal(schemas.ImageEnvelope{
		Tag:         envelopeTag,
		ImageBase64: schemas.ImageContent{Content: base64.StdEncoding.EncodeToString(image)},
	})
}

// Deliver posts the image and interprets the reply. It never returns an
// error; failures are reported through the outcome.
func (c *Client) Deliver(ctx context.Context, image []byte, endpoint string) schemas.DeliveryOutcome {
	outcome := schemas.DeliveryOutcome{Target: RedactEndpoint(endpoint)}
	logger := c.logger.With(zap.String("endpoint", outcome.Target), zap.Int("image_bytes", len(image)))

	body, err := BuildEnvelope(image)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to encode payload: %v", err)
		return outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to build request: %v", err)
		logger.Error("Delivery request could not be built.", zap.Error(err))
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Info("Delivering image.")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome.Error = fmt.Sprintf("request failed: %v", err)
		logger.Error("Delivery failed.", zap.Error(err))
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to read response: %v", err)
		logger.Error("Delivery response could not be read.", zap.Error(err))
		return outcome
	}
	outcome.RawBody = string(raw)

	interpret(&outcome, raw)
	if outcome.Success {
		logger.Info("Image delivered.", zap.String("message_id", outcome.MessageID))
	} else {
		logger.Error("Webhook rejected the image.",
			zap.Int("status", outcome.StatusCode),
			zap.String("reason", outcome.Error),
		)
	}
	return outcome
}

// interpret fills Success, MessageID and Error from the status and body.
func interpret(outcome *schemas.DeliveryOutcome, raw []byte) {
	if outcome.StatusCode < 200 || outcome.StatusCode > 299 {
		outcome.Error = fmt.Sprintf("webhook returned HTTP %d: %s", outcome.StatusCode, truncate(string(raw), 200))
		return
	}

	var reply webhookReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		outcome.Error = fmt.Sprintf("unrecognized webhook response: %s", truncate(string(raw), 200))
		return
	}
	if reply.Code == nil {
		outcome.Error = "webhook response has no code field"
		return
	}
	if code, err := reply.Code.Float64(); err != nil || code != 0 {
		outcome.Error = fmt.Sprintf("webhook returned code %s", reply.Code.String())
		return
	}

	outcome.Success = true
	outcome.MessageID = decodeMessageID(reply.MessageID)
}

// decodeMessageID accepts a string or numeric id.
func decodeMessageID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// RedactEndpoint drops the path and query of a webhook URL, which usually
// embed the bot token.
func RedactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "<invalid endpoint>"
	}
	return u.Scheme + "://" + u.Host
}

// truncate trims s to at most n bytes of valid UTF-8 without NUL bytes,
// which keeps it storable in a TEXT column.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD"), "\x00", "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
