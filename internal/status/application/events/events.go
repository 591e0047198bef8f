package events

import (
	"time"

	"github.com/Sabari-Jazz/moose/internal/eventing"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// DeviceStatusChanged is published after a device's status or reason changed
// and the new record has been written.
type DeviceStatusChanged struct {
	DeviceID       string        `json:"device_id"`
	SiteID         string        `json:"site_id"`
	PreviousStatus status.Status `json:"previous_status"`
	NewStatus      status.Status `json:"new_status"`
	PreviousReason string        `json:"previous_reason"`
	NewReason      string        `json:"new_reason"`
	Power          float64       `json:"power"`
	OccurredAt     time.Time     `json:"occurred_at"`
	Timezone       string        `json:"timezone"`
	Sunrise        string        `json:"sunrise,omitempty"`
	Sunset         string        `json:"sunset,omitempty"`
}

// IsFault reports whether the change left the device in the fault state. A
// fault whose reason changed counts as well.
func (e DeviceStatusChanged) IsFault() bool {
	return e.NewStatus == status.StatusFault
}

// EventName implements eventing.Named.
func (DeviceStatusChanged) EventName() string { return "status.device_changed" }

// Route keys the event by device.
func (e DeviceStatusChanged) Route() eventing.Route {
	return eventing.Route{SiteID: e.SiteID, SubjectID: e.DeviceID, OccurredAt: e.OccurredAt}
}

// SiteStatusChanged is published after a site aggregate was rewritten.
type SiteStatusChanged struct {
	SiteID         string        `json:"site_id"`
	PreviousStatus status.Status `json:"previous_status"`
	NewStatus      status.Status `json:"new_status"`
	Healthy        []string      `json:"healthy"`
	Fault          []string      `json:"fault"`
	Dormant        []string      `json:"dormant"`
	DeviceCount    int           `json:"device_count"`
	OccurredAt     time.Time     `json:"occurred_at"`
	Timezone       string        `json:"timezone"`
}

// EventName implements eventing.Named.
func (SiteStatusChanged) EventName() string { return "status.site_changed" }

// Route keys the event by site.
func (e SiteStatusChanged) Route() eventing.Route {
	return eventing.Route{SiteID: e.SiteID, SubjectID: e.SiteID, OccurredAt: e.OccurredAt}
}
