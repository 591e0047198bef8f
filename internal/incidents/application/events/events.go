package events

import (
	"time"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

// IncidentOpened is published after an incident and its timer were created.
type IncidentOpened struct {
	IncidentID  string    `json:"incident_id"`
	DeviceID    string    `json:"device_id"`
	SiteID      string    `json:"site_id"`
	RecipientID string    `json:"recipient_id"`
	Deadline    time.Time `json:"deadline"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// IncidentResolved is published when an incident reaches a terminal status.
type IncidentResolved struct {
	IncidentID  string    `json:"incident_id"`
	DeviceID    string    `json:"device_id"`
	SiteID      string    `json:"site_id"`
	RecipientID string    `json:"recipient_id"`
	Status      string    `json:"status"`
	Resolution  string    `json:"resolution"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (IncidentOpened) EventName() string { return "incident.opened" }

func (e IncidentOpened) Route() eventing.Route {
	return eventing.Route{SiteID: e.SiteID, SubjectID: e.DeviceID, OccurredAt: e.OccurredAt}
}

func (IncidentResolved) EventName() string { return "incident.resolved" }

func (e IncidentResolved) Route() eventing.Route {
	return eventing.Route{SiteID: e.SiteID, SubjectID: e.DeviceID, OccurredAt: e.OccurredAt}
}
