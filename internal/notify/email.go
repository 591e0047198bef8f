package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends plain-text mail to Message.Contact.
type EmailChannel struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

// NewEmailChannel constructs an SMTP channel.
func NewEmailChannel(cfg SMTPConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, errors.New("email channel: empty host")
	}
	if cfg.From == "" {
		return nil, errors.New("email channel: empty from address")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	channel := &EmailChannel{
		addr:     net.JoinHostPort(cfg.Host, fmt.Sprint(port)),
		from:     cfg.From,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
	if cfg.Username != "" {
		channel.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return channel, nil
}

// Send delivers one mail. net/smtp has no context support, so ctx is only
// checked before dialing.
func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if e == nil {
		return errors.New("email channel: nil channel")
	}
	to := strings.TrimSpace(msg.Contact)
	if to == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sendMail(e.addr, e.auth, e.from, []string{to}, e.compose(to, msg)); err != nil {
		metrics.IncNotification("email", metrics.ResultError)
		return fmt.Errorf("email channel: %w", err)
	}
	metrics.IncNotification("email", metrics.ResultSuccess)
	return nil
}

func (e *EmailChannel) compose(to string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("Date: " + e.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	if msg.Tag != "" {
		b.WriteString("X-Moose-Tag: " + sanitizeHeader(msg.Tag) + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
