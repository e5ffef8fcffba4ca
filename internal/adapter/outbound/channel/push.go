package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/channel"
)

const (
	pushSendRetries     = 3
	pushSendBaseWait    = 200 * time.Millisecond
	defaultPollInterval = 1 * time.Second
	maxLongPollSeconds  = 30
)

// Push is the Telegram-style Channel variant: it sends a message with
// inline Approve/Deny buttons bearing a fresh request id, then long-polls
// for a matching callback until it arrives or the timeout elapses. At
// most one prompt is outstanding at a time (spec §4.C serialization
// invariant), enforced by a FIFO lock so concurrent Ask calls execute in
// arrival order.
type Push struct {
	baseURL      string
	chatID       string
	client       *http.Client
	logger       *slog.Logger
	pollInterval time.Duration

	lock fifoLock
}

// NewPush creates a Push channel against a Telegram-compatible bot API
// base URL (e.g. "https://api.telegram.org/bot<token>") and chat id.
func NewPush(baseURL, chatID string, logger *slog.Logger) *Push {
	return &Push{
		baseURL:      baseURL,
		chatID:       chatID,
		client:       &http.Client{},
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Ask sends a prompt and blocks until the operator answers or timeout.
func (p *Push) Ask(ctx context.Context, a action.Action, timeout time.Duration) (channel.Answer, error) {
	if err := p.lock.Lock(ctx); err != nil {
		return channel.Answer{Approved: false, Reason: "Timed out"}, nil
	}
	defer p.lock.Unlock()

	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messageID, err := p.sendPromptWithRetry(ctx, a, requestID)
	if err != nil {
		return channel.Answer{Approved: false, Reason: fmt.Sprintf("denied — %v", err)}, nil
	}

	answer := p.awaitCallback(ctx, requestID)
	p.editFinalState(context.Background(), messageID, answer)
	return answer, nil
}

// sendPromptWithRetry sends the inline-keyboard prompt, retrying a small
// fixed number of times on network/parse error, and once more with
// markdown stripped if the markdown render itself is rejected.
func (p *Push) sendPromptWithRetry(ctx context.Context, a action.Action, requestID string) (string, error) {
	text := fmt.Sprintf("*Consent requested*\n`%s`", channel.Summary(a))

	var lastErr error
	for attempt := 0; attempt < pushSendRetries; attempt++ {
		id, err := p.sendMessage(ctx, text, requestID, true)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if isMarkdownError(err) {
			if id, err2 := p.sendMessage(ctx, channel.Summary(a), requestID, false); err2 == nil {
				return id, nil
			}
		}

		select {
		case <-time.After(pushSendBaseWait << attempt):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (p *Push) sendMessage(ctx context.Context, text, requestID string, markdown bool) (string, error) {
	payload := map[string]any{
		"chat_id": p.chatID,
		"text":    text,
		"reply_markup": map[string]any{
			"inline_keyboard": [][]map[string]string{
				{
					{"text": "Approve", "callback_data": "approve:" + requestID},
					{"text": "Deny", "callback_data": "deny:" + requestID},
				},
			},
		},
	}
	if markdown {
		payload["parse_mode"] = "MarkdownV2"
	}

	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := p.post(ctx, "sendMessage", payload, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%s", resp.Description)
	}
	return fmt.Sprintf("%d", resp.Result.MessageID), nil
}

// awaitCallback long-polls getUpdates until a callback_query for
// requestID arrives or ctx is done.
func (p *Push) awaitCallback(ctx context.Context, requestID string) channel.Answer {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return channel.Answer{Approved: false, Reason: "Timed out"}
		case <-ticker.C:
			if ans, ok := p.pollOnce(ctx, requestID); ok {
				return ans
			}
		}
	}
}

func (p *Push) pollOnce(ctx context.Context, requestID string) (channel.Answer, bool) {
	var resp struct {
		OK     bool `json:"ok"`
		Result []struct {
			CallbackQuery *struct {
				Data string `json:"data"`
			} `json:"callback_query"`
		} `json:"result"`
	}

	// Long-poll: the bot API may hold the request open until an update
	// arrives, for at most the time left before ctx's deadline.
	pollTimeout := 0
	if deadline, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(deadline) / time.Second); secs > 0 {
			pollTimeout = min(secs, maxLongPollSeconds)
		}
	}

	if err := p.post(ctx, "getUpdates", map[string]any{"timeout": pollTimeout}, &resp); err != nil {
		p.logger.Warn("push channel: poll failed", "error", err)
		return channel.Answer{}, false
	}

	for _, update := range resp.Result {
		if update.CallbackQuery == nil {
			continue
		}
		data := update.CallbackQuery.Data
		switch {
		case data == "approve:"+requestID:
			return channel.Answer{Approved: true}, true
		case data == "deny:"+requestID:
			return channel.Answer{Approved: false, Reason: "Denied by operator"}, true
		}
	}
	return channel.Answer{}, false
}

// editFinalState edits the prompt message to reflect the resolved state.
// Uses a background context: this is best-effort cleanup after Ask has
// already returned its verdict to the caller.
func (p *Push) editFinalState(ctx context.Context, messageID string, answer channel.Answer) {
	state := "Denied"
	if answer.Approved {
		state = "Approved"
	}
	if answer.Reason == "Timed out" {
		state = "Timed out"
	}

	payload := map[string]any{
		"chat_id":    p.chatID,
		"message_id": messageID,
		"text":       fmt.Sprintf("Consent request: %s", state),
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := p.post(ctx, "editMessageText", payload, &resp); err != nil {
		p.logger.Warn("push channel: failed to edit final state", "error", err)
	}
}

func (p *Push) post(ctx context.Context, method string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bot API status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *Push) endpoint(method string) string {
	u, err := url.JoinPath(p.baseURL, method)
	if err != nil {
		return p.baseURL + "/" + method
	}
	return u
}

// isMarkdownError reports whether err looks like a markdown-parse
// rejection from the bot API, warranting a plain-text retry.
func isMarkdownError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "parse") || strings.Contains(msg, "markdown") || strings.Contains(msg, "entities")
}

var _ channel.Channel = (*Push)(nil)
