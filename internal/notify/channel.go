// Package notify renders and delivers fault notifications over email, push
// and webhook channels.
package notify

import (
	"context"
	"errors"
)

// Message tags.
const (
	TagStatusChange  = "Status Change"
	TagEscalation    = "Escalation"
	TagDailyReminder = "Daily Reminder"
)

// ErrNoRecipient is returned by a channel that has nobody to deliver to.
var ErrNoRecipient = errors.New("notify: no recipient")

// Message is one rendered notification. Each channel uses the addressing field
// it understands: Contact for email, PushTokens for push.
type Message struct {
	Tag         string
	SiteID      string
	DeviceID    string
	RecipientID string
	Contact     string
	PushTokens  []string
	Subject     string
	Body        string
	Data        map[string]string
}

// Channel delivers messages.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}
