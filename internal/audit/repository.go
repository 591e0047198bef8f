package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const defaultAuditTable = "audit_logs"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository appends entries to the audit_logs table.
type Repository struct {
	db    DBTX
	table string
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db, table: defaultAuditTable}
}

// Log inserts entry, filling its id, timestamp and metadata digest.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.Action == "" {
		return errors.New("audit repo: empty action")
	}
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = encoded
		if entry.PayloadDigest == "" {
			entry.PayloadDigest = DigestJSON(encoded)
		}
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, actor, role, action, resource_type, resource_id, site_id, metadata, payload_digest, ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12)`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Actor, entry.Role, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.SiteID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt.UTC())
	return err
}
