package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

type webhookPayload struct {
	MsgType string            `json:"msgtype"`
	Text    webhookText       `json:"text"`
	Tag     string            `json:"tag,omitempty"`
	SiteID  string            `json:"site_id,omitempty"`
	Device  string            `json:"device_id,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookChannel posts notifications to a chat-style webhook endpoint.
type WebhookChannel struct {
	url    string
	client *resty.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithWebhookTimeout overrides the request timeout.
func WithWebhookTimeout(timeout time.Duration) WebhookOption {
	return func(ch *WebhookChannel) {
		if timeout > 0 {
			ch.client.SetTimeout(timeout)
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url: url,
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the subject and body as one text message.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	content := msg.Body
	if msg.Subject != "" {
		content = msg.Subject + "\n" + msg.Body
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			MsgType: "text",
			Text:    webhookText{Content: content},
			Tag:     msg.Tag,
			SiteID:  msg.SiteID,
			Device:  msg.DeviceID,
			Data:    msg.Data,
		}).
		Post(w.url)
	if err != nil {
		metrics.IncNotification("webhook", metrics.ResultError)
		return err
	}
	if resp.StatusCode() >= 300 {
		metrics.IncNotification("webhook", metrics.ResultError)
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode())
	}
	metrics.IncNotification("webhook", metrics.ResultSuccess)
	return nil
}
