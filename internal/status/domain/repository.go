package status

import (
	"context"
	"time"
)

// DeviceStatusRepository persists device records. Writes are last-write-wins.
type DeviceStatusRepository interface {
	Get(ctx context.Context, deviceID string) (*DeviceStatusRecord, error)
	Save(ctx context.Context, record DeviceStatusRecord) error
	// Touch updates only power and last_updated.
	Touch(ctx context.Context, deviceID string, power float64, at time.Time) error
	ListBySite(ctx context.Context, siteID string) ([]DeviceStatusRecord, error)
	ListByStatus(ctx context.Context, status Status) ([]DeviceStatusRecord, error)
	List(ctx context.Context) ([]DeviceStatusRecord, error)
}

// SiteStatusRepository persists site aggregates.
type SiteStatusRepository interface {
	Get(ctx context.Context, siteID string) (*SiteStatusRecord, error)
	Save(ctx context.Context, record SiteStatusRecord) error
}

// LogRepository appends to and reads daily status logs.
type LogRepository interface {
	Append(ctx context.Context, kind SubjectKind, subjectID, date string, entry LogEntry) error
	Get(ctx context.Context, kind SubjectKind, subjectID, date string) (*DailyStatusLog, error)
	Range(ctx context.Context, kind SubjectKind, subjectID, from, to string) ([]DailyStatusLog, error)
}
