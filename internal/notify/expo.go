package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

const (
	defaultExpoURL = "https://exp.host"
	expoSendPath   = "/--/api/v2/push/send"
	expoChunkSize  = 100
)

type expoMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// ExpoChannel sends push notifications to Expo tokens.
type ExpoChannel struct {
	client *resty.Client
	logger *zap.Logger
}

// ExpoOption configures the channel.
type ExpoOption func(*ExpoChannel)

// WithExpoAccessToken sets the optional push security token.
func WithExpoAccessToken(token string) ExpoOption {
	return func(ch *ExpoChannel) {
		if token != "" {
			ch.client.SetAuthToken(token)
		}
	}
}

// WithExpoLogger assigns a logger.
func WithExpoLogger(logger *zap.Logger) ExpoOption {
	return func(ch *ExpoChannel) {
		if logger != nil {
			ch.logger = logger
		}
	}
}

// NewExpoChannel constructs a push channel. An empty baseURL uses exp.host.
func NewExpoChannel(baseURL string, opts ...ExpoOption) *ExpoChannel {
	if baseURL == "" {
		baseURL = defaultExpoURL
	}
	channel := &ExpoChannel{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json").
			SetRetryCount(2),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

// IsExpoToken reports whether token looks like an Expo push token.
func IsExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

// Send pushes Subject/Body to every valid token in the message.
func (e *ExpoChannel) Send(ctx context.Context, msg Message) error {
	if e == nil {
		return errors.New("expo channel: nil channel")
	}
	var messages []expoMessage
	for _, token := range msg.PushTokens {
		if !IsExpoToken(token) {
			e.logger.Warn("skipping non-expo push token", zap.String("device_id", msg.DeviceID))
			continue
		}
		messages = append(messages, expoMessage{
			To:    token,
			Sound: "default",
			Title: msg.Subject,
			Body:  msg.Body,
			Data:  msg.Data,
		})
	}
	if len(messages) == 0 {
		metrics.IncNotification("push", metrics.ResultSkipped)
		return ErrNoRecipient
	}

	var failed int
	for start := 0; start < len(messages); start += expoChunkSize {
		end := start + expoChunkSize
		if end > len(messages) {
			end = len(messages)
		}
		var result expoResponse
		resp, err := e.client.R().
			SetContext(ctx).
			SetBody(messages[start:end]).
			SetResult(&result).
			Post(expoSendPath)
		if err != nil {
			metrics.IncNotification("push", metrics.ResultError)
			return fmt.Errorf("expo channel: %w", err)
		}
		if resp.IsError() {
			metrics.IncNotification("push", metrics.ResultError)
			return fmt.Errorf("expo channel: status %d", resp.StatusCode())
		}
		for _, ticket := range result.Data {
			if ticket.Status != "ok" {
				failed++
				e.logger.Warn("expo ticket rejected", zap.String("message", ticket.Message))
			}
		}
	}
	if failed == len(messages) {
		metrics.IncNotification("push", metrics.ResultError)
		return errors.New("expo channel: every ticket rejected")
	}
	metrics.IncNotification("push", metrics.ResultSuccess)
	return nil
}
