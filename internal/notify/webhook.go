package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/socialeye/internal/models"
)

var ErrNoWebhookURL = errors.New("webhook url not configured")

type webhookAlert struct {
	ID          string          `json:"id"`
	Severity    models.Severity `json:"severity"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Timestamp   string          `json:"timestamp"`
	Metadata    map[string]any  `json:"metadata"`
}

type webhookEnvelope struct {
	Alert webhookAlert `json:"alert"`
}

// WebhookNotifier POSTs the alert envelope to config.url, or to the
// process-wide default URL when the channel has none.
type WebhookNotifier struct {
	client     *http.Client
	defaultURL string
}

func NewWebhookNotifier(client *http.Client, defaultURL string) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: DefaultDeliveryTimeout}
	}
	return &WebhookNotifier{client: client, defaultURL: defaultURL}
}

func (w *WebhookNotifier) Kind() models.ChannelKind { return models.ChannelWebhook }

func (w *WebhookNotifier) Notify(ctx context.Context, alert *models.Alert, channel models.AlertChannel) error {
	url := configString(channel.Config, "url")
	if url == "" {
		url = w.defaultURL
	}
	if url == "" {
		return &DeliveryError{Channel: models.ChannelWebhook, Err: ErrNoWebhookURL}
	}

	body, err := json.Marshal(newWebhookEnvelope(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	for k, v := range configHeaders(channel.Config) {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: models.ChannelWebhook, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Channel: models.ChannelWebhook, StatusCode: resp.StatusCode}
	}
	return nil
}

func newWebhookEnvelope(alert *models.Alert) webhookEnvelope {
	meta := alert.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return webhookEnvelope{Alert: webhookAlert{
		ID:          alert.ID,
		Severity:    alert.Severity,
		Title:       alert.Title,
		Description: alert.Description,
		Timestamp:   alert.Timestamp.UTC().Format(time.RFC3339),
		Metadata:    meta,
	}}
}
