package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// maxLogRange bounds export queries.
const maxLogRange = 92 * 24 * time.Hour

// ErrInvalidRange is returned for malformed or oversized date ranges.
var ErrInvalidRange = errors.New("status: invalid date range")

// SiteLookup resolves inventory sites.
type SiteLookup interface {
	Site(ctx context.Context, id string) (*masterdata.Site, error)
}

// QueryService serves read models.
type QueryService struct {
	devices   status.DeviceStatusRepository
	sites     status.SiteStatusRepository
	logs      status.LogRepository
	inventory SiteLookup
}

// QueryOption configures the query service.
type QueryOption func(*QueryService)

// WithSiteLookup resolves site timezones for local-date defaults.
func WithSiteLookup(inventory SiteLookup) QueryOption {
	return func(q *QueryService) {
		q.inventory = inventory
	}
}

// NewQueryService constructs the query service.
func NewQueryService(devices status.DeviceStatusRepository, sites status.SiteStatusRepository, logs status.LogRepository, opts ...QueryOption) (*QueryService, error) {
	if devices == nil || sites == nil || logs == nil {
		return nil, errors.New("status: nil repository")
	}
	q := &QueryService{devices: devices, sites: sites, logs: logs}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Today returns the site's local date at now. Sites without a known timezone
// use the UTC date.
func (q *QueryService) Today(ctx context.Context, siteID string, now time.Time) string {
	var timezone string
	if q.inventory != nil && siteID != "" {
		if site, err := q.inventory.Site(ctx, siteID); err == nil && site != nil {
			timezone = site.Timezone
		}
	}
	return status.LocalDate(now, timezone)
}

// DeviceStatus returns one device record or ErrNotFound.
func (q *QueryService) DeviceStatus(ctx context.Context, deviceID string) (*status.DeviceStatusRecord, error) {
	record, err := q.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, status.ErrNotFound
	}
	return record, nil
}

// SiteStatus returns one site record or ErrNotFound.
func (q *QueryService) SiteStatus(ctx context.Context, siteID string) (*status.SiteStatusRecord, error) {
	record, err := q.sites.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, status.ErrNotFound
	}
	return record, nil
}

// DailyLog returns the log of a subject for one date. A missing log is empty.
func (q *QueryService) DailyLog(ctx context.Context, kind status.SubjectKind, subjectID, date string) (status.DailyStatusLog, error) {
	if _, err := time.Parse(status.DateLayout, date); err != nil {
		return status.DailyStatusLog{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	log, err := q.logs.Get(ctx, kind, subjectID, date)
	if err != nil {
		return status.DailyStatusLog{}, err
	}
	if log == nil {
		return status.DailyStatusLog{Kind: kind, SubjectID: subjectID, Date: date}, nil
	}
	return *log, nil
}

// LogRange returns logs between two inclusive dates.
func (q *QueryService) LogRange(ctx context.Context, kind status.SubjectKind, subjectID, from, to string) ([]status.DailyStatusLog, error) {
	start, err := time.Parse(status.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end, err := time.Parse(status.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if end.Before(start) || end.Sub(start) > maxLogRange {
		return nil, ErrInvalidRange
	}
	return q.logs.Range(ctx, kind, subjectID, from, to)
}
