package status

import (
	"errors"
	"strings"
	"time"
)

// Status is the health classification of a device or a site.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusFault   Status = "fault"
	StatusDormant Status = "dormant"
)

// Reasons recorded by the engine.
const (
	ReasonNightNoProduction = "no production during night window"
	ReasonNoProduction      = "no production"
	reasonErrorCodePrefix   = "error code: "
)

var (
	// ErrNotFound is returned when a status record does not exist.
	ErrNotFound = errors.New("status: not found")
	// ErrInvalidRecord is returned for records missing their identifiers.
	ErrInvalidRecord = errors.New("status: invalid record")
)

// ParseStatus maps stored values, including the legacy green/red/moon labels.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "healthy", "green":
		return StatusHealthy, true
	case "fault", "red":
		return StatusFault, true
	case "dormant", "moon":
		return StatusDormant, true
	default:
		return "", false
	}
}

// StoredLabels returns every stored value that ParseStatus maps to s, the
// current name first.
func (s Status) StoredLabels() []string {
	switch s {
	case StatusHealthy:
		return []string{"healthy", "green"}
	case StatusFault:
		return []string{"fault", "red"}
	case StatusDormant:
		return []string{"dormant", "moon"}
	default:
		return []string{string(s)}
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusFault, StatusDormant:
		return true
	default:
		return false
	}
}

// ErrorCodeReason formats the reason for a critical fault code.
func ErrorCodeReason(code string) string {
	return reasonErrorCodePrefix + code
}

// DeviceStatusRecord is the persisted classification of one device.
type DeviceStatusRecord struct {
	DeviceID         string
	SiteID           string
	Status           Status
	Reason           string
	Power            float64
	LastUpdated      time.Time
	LastStatusChange time.Time
}

// Validate checks identifiers.
func (r DeviceStatusRecord) Validate() error {
	if r.DeviceID == "" || r.SiteID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// SiteStatusRecord is the persisted aggregate of one site.
type SiteStatusRecord struct {
	SiteID      string
	Status      Status
	Healthy     []string
	Fault       []string
	Dormant     []string
	DeviceCount int
	LastUpdated time.Time
}

// SubjectKind identifies what a daily log belongs to.
type SubjectKind string

const (
	SubjectDevice SubjectKind = "device"
	SubjectSite   SubjectKind = "site"
)

// LogEntry is one status observation in a daily log.
type LogEntry struct {
	Status    Status
	Reason    string
	Timestamp time.Time
}

// DailyStatusLog is the audit trail of a subject for one local date.
type DailyStatusLog struct {
	Kind      SubjectKind
	SubjectID string
	Date      string
	Entries   []LogEntry
}

// DateLayout is the calendar-date format used for daily logs and sun windows.
const DateLayout = "2006-01-02"

// LocalDate returns the calendar date of t in the given IANA zone, falling back to UTC.
func LocalDate(t time.Time, timezone string) string {
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	return t.In(loc).Format(DateLayout)
}
