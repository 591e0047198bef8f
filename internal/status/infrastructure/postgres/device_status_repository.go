package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const defaultDeviceStatusTable = "device_status"

// DeviceStatusRepository is a Postgres implementation for device records.
type DeviceStatusRepository struct {
	db    DBTX
	table string
}

// DeviceStatusOption configures the repository.
type DeviceStatusOption func(*DeviceStatusRepository)

// WithDeviceStatusTable overrides the default table name.
func WithDeviceStatusTable(table string) DeviceStatusOption {
	return func(repo *DeviceStatusRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewDeviceStatusRepository constructs a repository.
func NewDeviceStatusRepository(db DBTX, opts ...DeviceStatusOption) *DeviceStatusRepository {
	repo := &DeviceStatusRepository{db: db, table: defaultDeviceStatusTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const deviceStatusColumns = `device_id, site_id, status, reason, power, last_updated, last_status_change`

// Get loads one record.
func (r *DeviceStatusRepository) Get(ctx context.Context, deviceID string) (*status.DeviceStatusRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device status repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("device status repo: empty device id")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = $1
LIMIT 1`, deviceStatusColumns, r.table)

	record, err := scanDeviceStatus(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// Save upserts a full record.
func (r *DeviceStatusRepository) Save(ctx context.Context, record status.DeviceStatusRecord) error {
	if r == nil || r.db == nil {
		return errors.New("device status repo: nil db")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	site_id,
	status,
	reason,
	power,
	last_updated,
	last_status_change
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (device_id)
DO UPDATE SET
	site_id = EXCLUDED.site_id,
	status = EXCLUDED.status,
	reason = EXCLUDED.reason,
	power = EXCLUDED.power,
	last_updated = EXCLUDED.last_updated,
	last_status_change = EXCLUDED.last_status_change`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		record.DeviceID,
		record.SiteID,
		string(record.Status),
		record.Reason,
		record.Power,
		nullTime(record.LastUpdated),
		nullTime(record.LastStatusChange),
	)
	return err
}

// Touch updates power and last_updated only.
func (r *DeviceStatusRepository) Touch(ctx context.Context, deviceID string, power float64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device status repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET power = $1, last_updated = $2
WHERE device_id = $3`, r.table)
	res, err := r.db.ExecContext(ctx, query, power, at.UTC(), deviceID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return status.ErrNotFound
	}
	return nil
}

// ListBySite loads a site's records.
func (r *DeviceStatusRepository) ListBySite(ctx context.Context, siteID string) ([]status.DeviceStatusRecord, error) {
	if siteID == "" {
		return nil, errors.New("device status repo: empty site id")
	}
	return r.list(ctx, "WHERE site_id = $1", siteID)
}

// ListByStatus loads records with one status, matching legacy labels too.
func (r *DeviceStatusRepository) ListByStatus(ctx context.Context, want status.Status) ([]status.DeviceStatusRecord, error) {
	labels := want.StoredLabels()
	placeholders := make([]string, len(labels))
	args := make([]any, len(labels))
	for i, label := range labels {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = label
	}
	return r.list(ctx, "WHERE lower(btrim(status)) IN ("+strings.Join(placeholders, ", ")+")", args...)
}

// List loads every record.
func (r *DeviceStatusRepository) List(ctx context.Context) ([]status.DeviceStatusRecord, error) {
	return r.list(ctx, "")
}

func (r *DeviceStatusRepository) list(ctx context.Context, where string, args ...any) ([]status.DeviceStatusRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device status repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY device_id ASC`, deviceStatusColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []status.DeviceStatusRecord
	for rows.Next() {
		record, err := scanDeviceStatus(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceStatus(row rowScanner) (*status.DeviceStatusRecord, error) {
	var (
		record      status.DeviceStatusRecord
		rawStatus   string
		reason      sql.NullString
		power       sql.NullFloat64
		lastUpdated sql.NullTime
		lastChanged sql.NullTime
	)
	if err := row.Scan(&record.DeviceID, &record.SiteID, &rawStatus, &reason, &power, &lastUpdated, &lastChanged); err != nil {
		return nil, err
	}
	if parsed, ok := status.ParseStatus(rawStatus); ok {
		record.Status = parsed
	} else {
		record.Status = status.Status(rawStatus)
	}
	record.Reason = reason.String
	record.Power = power.Float64
	record.LastUpdated = fromNullTime(lastUpdated)
	record.LastStatusChange = fromNullTime(lastChanged)
	return &record, nil
}
