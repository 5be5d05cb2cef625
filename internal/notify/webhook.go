package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"synth-exchange/internal/config"
	apperrors "synth-exchange/internal/errors"
)

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	body, err := json.Marshal(payload(n))
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "synthx/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d: %w", resp.StatusCode, apperrors.ErrNotificationFailure)
	}

	return nil
}

func payload(n Notification) map[string]any {
	return map[string]any{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"ticker":    n.Ticker,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
}
