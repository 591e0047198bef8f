package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	incidents "github.com/Sabari-Jazz/moose/internal/incidents/domain"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const defaultIncidentsTable = "incidents"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IncidentRepository is a Postgres implementation for incidents.
type IncidentRepository struct {
	db    DBTX
	table string
}

// Option configures the repository.
type Option func(*IncidentRepository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(repo *IncidentRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewIncidentRepository constructs a repository.
func NewIncidentRepository(db DBTX, opts ...Option) *IncidentRepository {
	repo := &IncidentRepository{db: db, table: defaultIncidentsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const incidentColumns = `id, device_id, site_id, recipient_id, status, device_status, device_reason,
	resolution, timer_handle, created_at, deadline, resolved_at, processed_at`

// Create inserts an incident. An existing id is left untouched.
func (r *IncidentRepository) Create(ctx context.Context, incident incidents.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	if err := incident.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, device_id, site_id, recipient_id, status, device_status, device_reason,
	resolution, timer_handle, created_at, deadline
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, '', $8, $9, $10
)
ON CONFLICT (id) DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		incident.ID,
		incident.DeviceID,
		incident.SiteID,
		incident.RecipientID,
		string(incident.Status),
		string(incident.DeviceStatus),
		incident.DeviceReason,
		incident.TimerHandle,
		incident.CreatedAt.UTC(),
		incident.Deadline.UTC(),
	)
	return err
}

// Get fetches an incident by id.
func (r *IncidentRepository) Get(ctx context.Context, id string) (*incidents.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, incidentColumns, r.table)
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return incident, nil
}

// ListPending lists a recipient's pending incidents, oldest first.
func (r *IncidentRepository) ListPending(ctx context.Context, recipientID string) ([]incidents.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE recipient_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC`, incidentColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, recipientID, string(incidents.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []incidents.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *incident)
	}
	return out, rows.Err()
}

// SetTimer stores the deadline timer handle.
func (r *IncidentRepository) SetTimer(ctx context.Context, id, handle string) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET timer_handle = $1 WHERE id = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, handle, id)
	return err
}

// Discard deletes a pending incident that never got a timer handle.
func (r *IncidentRepository) Discard(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("incident repo: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND status = $2 AND timer_handle = ''`, r.table)
	result, err := r.db.ExecContext(ctx, query, id, string(incidents.StatusPending))
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Resolve moves a pending incident to a terminal status.
func (r *IncidentRepository) Resolve(ctx context.Context, id string, to incidents.Status, reason string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("incident repo: nil db")
	}
	if !incidents.CanTransition(incidents.StatusPending, to) {
		return false, incidents.ErrInvalidTransition
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, resolution = $2, resolved_at = $3, processed_at = $3
WHERE id = $4 AND status = $5`, r.table)
	result, err := r.db.ExecContext(ctx, query, string(to), reason, at.UTC(), id, string(incidents.StatusPending))
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkProcessed records that a timer was handled.
func (r *IncidentRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET processed_at = $1 WHERE id = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*incidents.Incident, error) {
	var (
		incident     incidents.Incident
		state        string
		deviceStatus string
		resolvedAt   sql.NullTime
		processedAt  sql.NullTime
	)
	if err := row.Scan(
		&incident.ID,
		&incident.DeviceID,
		&incident.SiteID,
		&incident.RecipientID,
		&state,
		&deviceStatus,
		&incident.DeviceReason,
		&incident.Resolution,
		&incident.TimerHandle,
		&incident.CreatedAt,
		&incident.Deadline,
		&resolvedAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	incident.Status = incidents.Status(state)
	if parsed, ok := status.ParseStatus(deviceStatus); ok {
		incident.DeviceStatus = parsed
	}
	incident.CreatedAt = incident.CreatedAt.UTC()
	incident.Deadline = incident.Deadline.UTC()
	if resolvedAt.Valid {
		incident.ResolvedAt = resolvedAt.Time.UTC()
	}
	if processedAt.Valid {
		incident.ProcessedAt = processedAt.Time.UTC()
	}
	return &incident, nil
}
