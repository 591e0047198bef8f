package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/directory"
	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/status/application/events"
)

// RecipientSource lists a site's recipients with their push tokens.
type RecipientSource interface {
	RecipientsForSite(ctx context.Context, siteID string) ([]directory.Recipient, error)
}

// DeviceLookup resolves device display names.
type DeviceLookup interface {
	Device(ctx context.Context, id string) (*masterdata.Device, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash string
}

// StatusAlerter pushes one notification to every recipient of a site when a
// device enters the fault state.
type StatusAlerter struct {
	recipients   RecipientSource
	names        DeviceLookup
	channel      Channel
	templates    *Templates
	clock        Clock
	logger       *zap.Logger
	dedupeWindow time.Duration

	mu   sync.Mutex
	sent map[string]sendRecord
}

// AlerterOption configures the alerter.
type AlerterOption func(*StatusAlerter)

// WithAlerterClock overrides the clock.
func WithAlerterClock(clock Clock) AlerterOption {
	return func(a *StatusAlerter) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithAlerterLogger assigns a logger.
func WithAlerterLogger(logger *zap.Logger) AlerterOption {
	return func(a *StatusAlerter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDedupeWindow suppresses identical alerts for the same device within the window.
func WithDedupeWindow(window time.Duration) AlerterOption {
	return func(a *StatusAlerter) {
		if window >= 0 {
			a.dedupeWindow = window
		}
	}
}

// NewStatusAlerter constructs the alerter.
func NewStatusAlerter(recipients RecipientSource, names DeviceLookup, channel Channel, templates *Templates, opts ...AlerterOption) (*StatusAlerter, error) {
	if recipients == nil {
		return nil, errors.New("status alerter: nil recipient source")
	}
	if channel == nil {
		return nil, errors.New("status alerter: nil channel")
	}
	if templates == nil {
		return nil, errors.New("status alerter: nil templates")
	}
	alerter := &StatusAlerter{
		recipients:   recipients,
		names:        names,
		channel:      channel,
		templates:    templates,
		clock:        systemClock{},
		logger:       zap.NewNop(),
		dedupeWindow: 10 * time.Minute,
		sent:         make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(alerter)
	}
	return alerter, nil
}

// HandleDeviceStatusChanged sends the push for fault transitions. Delivery
// failures are logged, never returned, so the event is not redelivered.
func (a *StatusAlerter) HandleDeviceStatusChanged(ctx context.Context, evt events.DeviceStatusChanged) error {
	if a == nil || !evt.IsFault() {
		return nil
	}
	logger := a.logger.With(zap.String("device_id", evt.DeviceID), zap.String("site_id", evt.SiteID))

	recipients, err := a.recipients.RecipientsForSite(ctx, evt.SiteID)
	if err != nil {
		return fmt.Errorf("status alerter: recipients: %w", err)
	}
	tokens := directory.UniqueTokens(recipients)
	if len(tokens) == 0 {
		logger.Info("no push tokens for fault alert", zap.Int("recipients", len(recipients)))
		return nil
	}

	deviceName := evt.DeviceID
	if a.names != nil {
		if device, err := a.names.Device(ctx, evt.DeviceID); err == nil && device != nil {
			deviceName = device.DisplayName()
		}
	}
	subject, body, err := a.templates.Alert(AlertData{Device: deviceName, Tag: TagStatusChange, Power: evt.Power})
	if err != nil {
		return err
	}
	content := subject + "|" + body + "|" + evt.NewReason
	if !a.shouldSend(evt.DeviceID, content) {
		logger.Debug("fault alert suppressed by dedupe window")
		return nil
	}

	msg := Message{
		Tag:        TagStatusChange,
		SiteID:     evt.SiteID,
		DeviceID:   evt.DeviceID,
		PushTokens: tokens,
		Subject:    subject,
		Body:       body,
		Data: map[string]string{
			"type":           TagStatusChange,
			"siteId":         evt.SiteID,
			"deviceId":       evt.DeviceID,
			"previousStatus": string(evt.PreviousStatus),
			"newStatus":      string(evt.NewStatus),
			"reason":         evt.NewReason,
		},
	}
	if err := a.channel.Send(ctx, msg); err != nil {
		if !errors.Is(err, ErrNoRecipient) {
			logger.Error("fault alert delivery failed", zap.Error(err))
		}
		return nil
	}
	a.markSent(evt.DeviceID, content)
	logger.Info("fault alert sent", zap.Int("tokens", len(tokens)))
	return nil
}

func (a *StatusAlerter) shouldSend(deviceID, content string) bool {
	if a.dedupeWindow <= 0 {
		return true
	}
	a.mu.Lock()
	record, ok := a.sent[deviceID]
	a.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || a.clock.Now().UTC().Sub(record.at) >= a.dedupeWindow
}

func (a *StatusAlerter) markSent(deviceID, content string) {
	a.mu.Lock()
	a.sent[deviceID] = sendRecord{at: a.clock.Now().UTC(), hash: hashContent(content)}
	a.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
