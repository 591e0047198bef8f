package notify

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

const escalationSubject = `URGENT: Solar System Alert - {{.Device}} ({{.Site}})`

const escalationBody = `SOLAR SYSTEM ALERT - TECHNICIAN NOTIFICATION
INCIDENT ESCALATION ({{.Pending}} PENDING)

System Information:
- Device: {{.Device}}
- System: {{.Site}}
- System ID: {{.SiteID}}
- Device ID: {{.DeviceID}}
- Incident Created: {{.CreatedAt}}
- Escalated At: {{.EscalatedAt}}
- Priority: HIGH - REQUIRES ATTENTION

Issue Description:
Device status change detected and has been pending for {{.Pending}} without user response.
This incident requires immediate technician attention.
{{ if .Reason }}Last known reason: {{.Reason}}
{{ end }}
Action Required:
Please investigate this device/system issue and take appropriate action.
{{ if .ResponseURL }}
RESPOND TO THIS ALERT:
Log your response: {{.ResponseURL}}
{{ end }}
This is an automated escalation from Moose.
`

const reminderSubject = `Daily Red Code Reminder - {{.Device}}`

const reminderBody = `{{.Device}} at {{.Site}} is still in fault{{ if .Reason }} ({{.Reason}}){{ end }}.
In fault since {{.Since}}. Current power: {{.Power}}W`

const alertSubject = `{{.Device}} {{.Tag}}`

const alertBody = `Inverter has errors and needs attention. Current power: {{.Power}}W`

const timeLayout = "2006-01-02 15:04:05 UTC"

// EscalationData feeds the technician escalation email.
type EscalationData struct {
	Device      string
	Site        string
	DeviceID    string
	SiteID      string
	RecipientID string
	Reason      string
	CreatedAt   time.Time
	EscalatedAt time.Time
	Deadline    time.Duration
}

// ReminderData feeds the daily reminder.
type ReminderData struct {
	Device string
	Site   string
	Reason string
	Since  time.Time
	Power  float64
}

// AlertData feeds the immediate status push.
type AlertData struct {
	Device string
	Tag    string
	Power  float64
}

// Templates renders every notification kind.
type Templates struct {
	responseURL    string
	escalationSubj *template.Template
	escalationBody *template.Template
	reminderSubj   *template.Template
	reminderBody   *template.Template
	alertSubj      *template.Template
	alertBody      *template.Template
}

// NewTemplates parses the built-in templates. responseURL is the base of the
// recipient response link; the url-escaped recipient id is appended to it.
func NewTemplates(responseURL string) (*Templates, error) {
	t := &Templates{responseURL: strings.TrimSpace(responseURL)}
	var err error
	parse := func(name, text string) *template.Template {
		if err != nil {
			return nil
		}
		var parsed *template.Template
		parsed, err = template.New(name).Parse(text)
		return parsed
	}
	t.escalationSubj = parse("escalation-subject", escalationSubject)
	t.escalationBody = parse("escalation-body", escalationBody)
	t.reminderSubj = parse("reminder-subject", reminderSubject)
	t.reminderBody = parse("reminder-body", reminderBody)
	t.alertSubj = parse("alert-subject", alertSubject)
	t.alertBody = parse("alert-body", alertBody)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Escalation renders the subject and body of the technician email.
func (t *Templates) Escalation(data EscalationData) (string, string, error) {
	if t == nil {
		return "", "", errors.New("notify templates: nil")
	}
	view := map[string]string{
		"Device":      fallback(data.Device, data.DeviceID),
		"Site":        fallback(data.Site, data.SiteID),
		"DeviceID":    data.DeviceID,
		"SiteID":      data.SiteID,
		"Reason":      data.Reason,
		"CreatedAt":   data.CreatedAt.UTC().Format(timeLayout),
		"EscalatedAt": data.EscalatedAt.UTC().Format(timeLayout),
		"Pending":     pendingLabel(data.Deadline),
		"ResponseURL": t.ResponseURL(data.RecipientID),
	}
	return renderPair(t.escalationSubj, t.escalationBody, view)
}

// Reminder renders the daily reminder.
func (t *Templates) Reminder(data ReminderData) (string, string, error) {
	if t == nil {
		return "", "", errors.New("notify templates: nil")
	}
	since := "an unknown time"
	if !data.Since.IsZero() {
		since = data.Since.UTC().Format(timeLayout)
	}
	view := map[string]string{
		"Device": data.Device,
		"Site":   data.Site,
		"Reason": data.Reason,
		"Since":  since,
		"Power":  fmt.Sprintf("%.0f", data.Power),
	}
	return renderPair(t.reminderSubj, t.reminderBody, view)
}

// Alert renders the immediate fault push.
func (t *Templates) Alert(data AlertData) (string, string, error) {
	if t == nil {
		return "", "", errors.New("notify templates: nil")
	}
	view := map[string]string{
		"Device": data.Device,
		"Tag":    data.Tag,
		"Power":  fmt.Sprintf("%.0f", data.Power),
	}
	return renderPair(t.alertSubj, t.alertBody, view)
}

// ResponseURL builds the recipient's response link, or "" when unconfigured.
func (t *Templates) ResponseURL(recipientID string) string {
	if t == nil || t.responseURL == "" {
		return ""
	}
	return t.responseURL + url.QueryEscape(recipientID)
}

func renderPair(subject, body *template.Template, data any) (string, string, error) {
	var subj, text bytes.Buffer
	if err := subject.Execute(&subj, data); err != nil {
		return "", "", err
	}
	if err := body.Execute(&text, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subj.String()), text.String(), nil
}

func pendingLabel(d time.Duration) string {
	if d <= 0 {
		return "UNKNOWN"
	}
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 HOUR"
		}
		return fmt.Sprintf("%d HOURS", hours)
	}
	return fmt.Sprintf("%d MINUTES", int(d/time.Minute))
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return alt
}
