package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
)

const (
	defaultDevicesTable = "devices"
	deviceColumns       = `id, site_id, name, created_at, updated_at`
)

var errNilDeviceDB = errors.New("device repo: nil db")

// DeviceRepository stores the inverter inventory.
type DeviceRepository struct {
	db    DBTX
	table string
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db DBTX, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get returns nil, nil for an unknown id.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errNilDeviceDB
	}
	if id == "" {
		return nil, errors.New("device repo: empty id")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, deviceColumns, r.table)
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return device, err
}

// ListBySite returns a site's inverters ordered by id.
func (r *DeviceRepository) ListBySite(ctx context.Context, siteID string) ([]masterdata.Device, error) {
	if siteID == "" {
		return nil, errors.New("device repo: empty site id")
	}
	return r.query(ctx, "WHERE site_id = $1 ORDER BY id ASC", siteID)
}

// List returns every inverter grouped by site.
func (r *DeviceRepository) List(ctx context.Context) ([]masterdata.Device, error) {
	return r.query(ctx, "ORDER BY site_id ASC, id ASC")
}

func (r *DeviceRepository) query(ctx context.Context, tail string, args ...any) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errNilDeviceDB
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s %s`, deviceColumns, r.table, tail), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []masterdata.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// Save upserts device and refreshes its timestamps from the row.
func (r *DeviceRepository) Save(ctx context.Context, device *masterdata.Device) error {
	if r == nil || r.db == nil {
		return errNilDeviceDB
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, site_id, name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	site_id = EXCLUDED.site_id,
	name = EXCLUDED.name,
	updated_at = NOW()
RETURNING created_at, updated_at`, r.table)
	if err := r.db.QueryRowContext(ctx, query, device.ID, device.SiteID, device.Name).Scan(&device.CreatedAt, &device.UpdatedAt); err != nil {
		return err
	}
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	return nil
}

func scanDevice(row rowScanner) (*masterdata.Device, error) {
	var (
		device masterdata.Device
		name   sql.NullString
	)
	if err := row.Scan(&device.ID, &device.SiteID, &name, &device.CreatedAt, &device.UpdatedAt); err != nil {
		return nil, err
	}
	device.Name = name.String
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	return &device, nil
}
