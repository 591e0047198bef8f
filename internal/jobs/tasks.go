// Package jobs wraps asynq for the incident deadline timers and the periodic
// poll, reminder and outbox tasks.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeIncidentDeadline = "incident:deadline"
	TypeStatusPoll       = "status:poll"
	TypeReminderSweep    = "reminder:sweep"
	TypeOutboxScan       = "outbox:scan"
)

// DefaultQueue is used when no queue is configured.
const DefaultQueue = "default"

// DeadlinePayload identifies one incident timer.
type DeadlinePayload struct {
	IncidentID  string `json:"incident_id"`
	RecipientID string `json:"recipient_id"`
}

// Validate checks identifiers.
func (p DeadlinePayload) Validate() error {
	if strings.TrimSpace(p.IncidentID) == "" || strings.TrimSpace(p.RecipientID) == "" {
		return errors.New("jobs: deadline payload needs incident and recipient ids")
	}
	return nil
}

// TaskID is the unique asynq id of the timer.
func (p DeadlinePayload) TaskID() string {
	return fmt.Sprintf("incident:%s:%s", p.IncidentID, p.RecipientID)
}

// NewDeadlineTask encodes a deadline task.
func NewDeadlineTask(p DeadlinePayload) (*asynq.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIncidentDeadline, payload), nil
}

// ParseDeadlinePayload decodes a deadline task payload.
func ParseDeadlinePayload(raw []byte) (DeadlinePayload, error) {
	var p DeadlinePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DeadlinePayload{}, fmt.Errorf("jobs: decode deadline payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return DeadlinePayload{}, err
	}
	return p, nil
}
