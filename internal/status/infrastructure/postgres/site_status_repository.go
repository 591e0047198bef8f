package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const defaultSiteStatusTable = "site_status"

// SiteStatusRepository is a Postgres implementation for site aggregates. Device
// sets are stored as sorted JSON arrays.
type SiteStatusRepository struct {
	db    DBTX
	table string
}

// SiteStatusOption configures the repository.
type SiteStatusOption func(*SiteStatusRepository)

// WithSiteStatusTable overrides the default table name.
func WithSiteStatusTable(table string) SiteStatusOption {
	return func(repo *SiteStatusRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSiteStatusRepository constructs a repository.
func NewSiteStatusRepository(db DBTX, opts ...SiteStatusOption) *SiteStatusRepository {
	repo := &SiteStatusRepository{db: db, table: defaultSiteStatusTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads one aggregate.
func (r *SiteStatusRepository) Get(ctx context.Context, siteID string) (*status.SiteStatusRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site status repo: nil db")
	}
	if siteID == "" {
		return nil, errors.New("site status repo: empty site id")
	}
	query := fmt.Sprintf(`
SELECT site_id, status, healthy, fault, dormant, device_count, last_updated
FROM %s
WHERE site_id = $1
LIMIT 1`, r.table)

	var (
		record                  status.SiteStatusRecord
		rawStatus               string
		healthy, fault, dormant []byte
		lastUpdated             sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, query, siteID).Scan(
		&record.SiteID,
		&rawStatus,
		&healthy,
		&fault,
		&dormant,
		&record.DeviceCount,
		&lastUpdated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	record.Status = status.Status(rawStatus)
	if parsed, ok := status.ParseStatus(rawStatus); ok {
		record.Status = parsed
	}
	var err error
	if record.Healthy, err = decodeSet(healthy); err != nil {
		return nil, err
	}
	if record.Fault, err = decodeSet(fault); err != nil {
		return nil, err
	}
	if record.Dormant, err = decodeSet(dormant); err != nil {
		return nil, err
	}
	record.LastUpdated = fromNullTime(lastUpdated)
	return &record, nil
}

// Save upserts an aggregate.
func (r *SiteStatusRepository) Save(ctx context.Context, record status.SiteStatusRecord) error {
	if r == nil || r.db == nil {
		return errors.New("site status repo: nil db")
	}
	if record.SiteID == "" {
		return status.ErrInvalidRecord
	}
	healthy, err := encodeSet(record.Healthy)
	if err != nil {
		return err
	}
	fault, err := encodeSet(record.Fault)
	if err != nil {
		return err
	}
	dormant, err := encodeSet(record.Dormant)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	site_id,
	status,
	healthy,
	fault,
	dormant,
	device_count,
	last_updated
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (site_id)
DO UPDATE SET
	status = EXCLUDED.status,
	healthy = EXCLUDED.healthy,
	fault = EXCLUDED.fault,
	dormant = EXCLUDED.dormant,
	device_count = EXCLUDED.device_count,
	last_updated = EXCLUDED.last_updated`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		record.SiteID,
		string(record.Status),
		healthy,
		fault,
		dormant,
		record.DeviceCount,
		nullTime(record.LastUpdated),
	)
	return err
}

func encodeSet(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func decodeSet(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}
