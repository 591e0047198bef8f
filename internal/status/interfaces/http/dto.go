package http

import (
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

type deviceStatusResponse struct {
	DeviceID         string     `json:"device_id"`
	SiteID           string     `json:"site_id"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason"`
	Power            float64    `json:"power"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	LastStatusChange *time.Time `json:"last_status_change,omitempty"`
}

type siteStatusResponse struct {
	SiteID      string     `json:"site_id"`
	Status      string     `json:"status"`
	Healthy     []string   `json:"healthy"`
	Fault       []string   `json:"fault"`
	Dormant     []string   `json:"dormant"`
	DeviceCount int        `json:"device_count"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

type logEntryResponse struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type dailyLogResponse struct {
	Kind      string             `json:"kind"`
	SubjectID string             `json:"subject_id"`
	Date      string             `json:"date"`
	Entries   []logEntryResponse `json:"entries"`
}

func deviceStatusDTO(record *status.DeviceStatusRecord) deviceStatusResponse {
	return deviceStatusResponse{
		DeviceID:         record.DeviceID,
		SiteID:           record.SiteID,
		Status:           string(record.Status),
		Reason:           record.Reason,
		Power:            record.Power,
		LastUpdated:      optionalTime(record.LastUpdated),
		LastStatusChange: optionalTime(record.LastStatusChange),
	}
}

func siteStatusDTO(record *status.SiteStatusRecord) siteStatusResponse {
	return siteStatusResponse{
		SiteID:      record.SiteID,
		Status:      string(record.Status),
		Healthy:     nonNil(record.Healthy),
		Fault:       nonNil(record.Fault),
		Dormant:     nonNil(record.Dormant),
		DeviceCount: record.DeviceCount,
		LastUpdated: optionalTime(record.LastUpdated),
	}
}

func dailyLogDTO(log status.DailyStatusLog) dailyLogResponse {
	resp := dailyLogResponse{
		Kind:      string(log.Kind),
		SubjectID: log.SubjectID,
		Date:      log.Date,
		Entries:   make([]logEntryResponse, 0, len(log.Entries)),
	}
	for _, entry := range log.Entries {
		resp.Entries = append(resp.Entries, logEntryResponse{
			Status:    string(entry.Status),
			Reason:    entry.Reason,
			Timestamp: entry.Timestamp.UTC(),
		})
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
