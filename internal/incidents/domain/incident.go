package incidents

import (
	"context"
	"errors"
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDismissed Status = "dismissed"
	StatusEscalated Status = "escalated"
)

// Resolution reasons.
const (
	ReasonStatusReverted = "status reverted"
	ReasonNoContact      = "no escalation contact"
	ReasonAcknowledged   = "acknowledged by recipient"
	ReasonDeadline       = "deadline reached"
	ReasonManual         = "escalated by recipient"
)

var (
	// ErrNotFound indicates the incident does not exist or belongs to someone else.
	ErrNotFound = errors.New("incidents: not found")
	// ErrInvalidTransition indicates the incident is already terminal.
	ErrInvalidTransition = errors.New("incidents: invalid transition")
)

var transitions = map[Status][]Status{
	StatusPending: {StatusDismissed, StatusEscalated},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Incident is one fault notification obligation to one recipient.
type Incident struct {
	ID           string
	DeviceID     string
	SiteID       string
	RecipientID  string
	Status       Status
	DeviceStatus status.Status
	DeviceReason string
	Resolution   string
	TimerHandle  string
	CreatedAt    time.Time
	Deadline     time.Time
	ResolvedAt   time.Time
	ProcessedAt  time.Time
}

// Validate checks identifiers and times.
func (i Incident) Validate() error {
	if i.ID == "" {
		return errors.New("incident: empty id")
	}
	if i.DeviceID == "" || i.SiteID == "" {
		return errors.New("incident: empty device or site id")
	}
	if i.RecipientID == "" {
		return errors.New("incident: empty recipient id")
	}
	if i.Deadline.Before(i.CreatedAt) {
		return errors.New("incident: deadline before creation")
	}
	return nil
}

// Terminal reports whether no further transition is possible.
func (i Incident) Terminal() bool {
	return len(transitions[i.Status]) == 0
}

// Repository persists incidents.
type Repository interface {
	Create(ctx context.Context, incident Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	ListPending(ctx context.Context, recipientID string) ([]Incident, error)
	SetTimer(ctx context.Context, id, handle string) error
	// Discard deletes a pending incident that has no timer handle yet.
	Discard(ctx context.Context, id string) (bool, error)
	// Resolve moves a pending incident to a terminal status. It reports false
	// when the incident was no longer pending.
	Resolve(ctx context.Context, id string, to Status, reason string, at time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}
