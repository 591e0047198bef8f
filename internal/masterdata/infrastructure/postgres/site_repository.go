package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
)

const defaultSitesTable = "sites"

// SiteRepository is a Postgres implementation for sites.
type SiteRepository struct {
	db    DBTX
	table string
}

// NewSiteRepository constructs a repository.
func NewSiteRepository(db DBTX, opts ...SiteOption) *SiteRepository {
	repo := &SiteRepository{db: db, table: defaultSitesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SiteOption configures the repository.
type SiteOption func(*SiteRepository)

// WithSiteTable overrides the default table name.
func WithSiteTable(table string) SiteOption {
	return func(repo *SiteRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const siteColumns = `id, name, timezone, latitude, longitude, created_at, updated_at`

// Get loads a site by id.
func (r *SiteRepository) Get(ctx context.Context, id string) (*masterdata.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	if id == "" {
		return nil, errors.New("site repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, siteColumns, r.table)

	site, err := scanSite(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return site, nil
}

// List loads every site ordered by id.
func (r *SiteRepository) List(ctx context.Context) ([]masterdata.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY id ASC`, siteColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *site)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a site.
func (r *SiteRepository) Save(ctx context.Context, site *masterdata.Site) error {
	if r == nil || r.db == nil {
		return errors.New("site repo: nil db")
	}
	if site == nil {
		return errors.New("site repo: nil site")
	}
	if err := site.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, name, timezone, latitude, longitude)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	timezone = EXCLUDED.timezone,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = NOW()
RETURNING created_at, updated_at`, r.table)
	var lat, lon sql.NullFloat64
	if site.HasCoordinates() {
		lat = sql.NullFloat64{Float64: site.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: site.Longitude, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, query, site.ID, site.Name, site.Timezone, lat, lon)
	if err := row.Scan(&site.CreatedAt, &site.UpdatedAt); err != nil {
		return err
	}
	site.CreatedAt = site.CreatedAt.UTC()
	site.UpdatedAt = site.UpdatedAt.UTC()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*masterdata.Site, error) {
	var (
		site     masterdata.Site
		timezone sql.NullString
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&site.ID, &site.Name, &timezone, &lat, &lon, &site.CreatedAt, &site.UpdatedAt); err != nil {
		return nil, err
	}
	site.Timezone = timezone.String
	site.Latitude = lat.Float64
	site.Longitude = lon.Float64
	site.CreatedAt = site.CreatedAt.UTC()
	site.UpdatedAt = site.UpdatedAt.UTC()
	return &site, nil
}
