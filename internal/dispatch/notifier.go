package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/internal/streaming"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
	webhookHeaderSig     = "X-Signature"
)

// NoopNotifier accepts every message without delivering it anywhere. Used
// when no recipient callback is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	return nil
}

// HubNotifier delivers messages to in-process subscribers of the event hub,
// keyed by recipient agent.
type HubNotifier struct {
	hub streaming.EventHub
}

// NewHubNotifier creates a HubNotifier over hub.
func NewHubNotifier(hub streaming.EventHub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	return n.hub.Publish(ctx, streaming.StreamEvent{
		AgentID:   msg.ToAgentID,
		EventType: schema.EventMessageDelivered,
		Payload: map[string]any{
			"message_id":    msg.ID,
			"from_agent_id": msg.FromAgentID,
			"message_type":  msg.Type,
			"content":       msg.Content,
		},
	})
}

// webhookPayload is the body POSTed to the recipient endpoint.
type webhookPayload struct {
	MessageID   string                 `json:"message_id"`
	FromAgentID string                 `json:"from_agent_id,omitempty"`
	ToAgentID   string                 `json:"to_agent_id"`
	Type        string                 `json:"message_type"`
	Content     map[string]any         `json:"content,omitempty"`
	Priority    schema.MessagePriority `json:"priority,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// WebhookNotifier delivers messages by POSTing them to a fixed endpoint,
// signed with HMAC-SHA256 when a secret is configured. Transient failures are
// retried with exponential backoff; a non-2xx final response fails delivery.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier. client may be nil.
func NewWebhookNotifier(url, secret string, client *http.Client, logger *slog.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{url: strings.TrimSpace(url), secret: secret, client: client, logger: logger}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	if n.url == "" {
		return schema.NewError(schema.ErrCodeValidation, "webhook url is not configured")
	}

	body, err := json.Marshal(webhookPayload{
		MessageID:   msg.ID,
		FromAgentID: msg.FromAgentID,
		ToAgentID:   msg.ToAgentID,
		Type:        msg.Type,
		Content:     msg.Content,
		Priority:    msg.Priority,
		CreatedAt:   msg.CreatedAt,
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"marshal webhook payload: %s", err.Error()).WithCause(err)
	}

	signature := signPayload(n.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"build webhook request: %s", err.Error()).WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhookHeaderSig, signature)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			n.logger.WarnContext(ctx, "webhook delivery failed",
				"message_id", msg.ID, "attempt", attempt, "error", err)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				return nil
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			n.logger.WarnContext(ctx, "webhook delivery failed",
				"message_id", msg.ID, "attempt", attempt, "response_status", resp.StatusCode)
		}

		if attempt < webhookRetryAttempts {
			wait := webhookRetryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return schema.NewErrorf(schema.ErrCodeExecution,
		"webhook delivery exhausted retries: %s", lastErr.Error()).WithCause(lastErr)
}

// MultiNotifier fans a message out to several notifiers. Every notifier is
// attempted; their errors are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BoundNotifier delegates to a notifier bound after construction, so the
// dispatcher can be wired before its delivery transport exists. Until Bind is
// called it accepts messages without delivering them.
type BoundNotifier struct {
	mu    sync.RWMutex
	inner Notifier
}

// Bind sets the delegate. Safe to call while deliveries are in flight.
func (b *BoundNotifier) Bind(n Notifier) {
	b.mu.Lock()
	b.inner = n
	b.mu.Unlock()
}

func (b *BoundNotifier) Notify(ctx context.Context, msg *store.AgentMessage) error {
	b.mu.RLock()
	inner := b.inner
	b.mu.RUnlock()
	if inner == nil {
		return nil
	}
	return inner.Notify(ctx, msg)
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
