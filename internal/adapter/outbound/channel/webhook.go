package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/channel"
)

// webhookRequest is the payload POSTed to the configured URL.
type webhookRequest struct {
	Type   string        `json:"type"`
	Action action.Action `json:"action"`
}

// webhookResponse is the expected JSON body of the operator's reply.
type webhookResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Webhook is the Channel variant that POSTs a consent request to a
// configured URL and expects a JSON {approved, reason?} response within
// the ask timeout.
type Webhook struct {
	URL          string
	SharedSecret string
	client       *http.Client
	logger       *slog.Logger
}

// NewWebhook creates a Webhook channel posting to url. An optional shared
// secret is sent as the X-ACP-Signature header.
func NewWebhook(url, sharedSecret string, logger *slog.Logger) *Webhook {
	return &Webhook{
		URL:          url,
		SharedSecret: sharedSecret,
		client:       &http.Client{},
		logger:       logger,
	}
}

// Ask POSTs the action and waits for the operator's response.
func (w *Webhook) Ask(ctx context.Context, a action.Action, timeout time.Duration) (channel.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(webhookRequest{Type: "consent_request", Action: a})
	if err != nil {
		return channel.Answer{}, fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return channel.Answer{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.SharedSecret != "" {
		req.Header.Set("X-ACP-Signature", w.SharedSecret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook channel: request failed", "error", err)
		return channel.Answer{Approved: false, Reason: fmt.Sprintf("Channel unreachable: %v", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return channel.Answer{Approved: false, Reason: fmt.Sprintf("Channel unreachable: status %d", resp.StatusCode)}, nil
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return channel.Answer{Approved: false, Reason: fmt.Sprintf("Channel unreachable: %v", err)}, nil
	}

	if !parsed.Approved && parsed.Reason == "" {
		parsed.Reason = "Denied by operator"
	}
	return channel.Answer{Approved: parsed.Approved, Reason: parsed.Reason}, nil
}

var _ channel.Channel = (*Webhook)(nil)
