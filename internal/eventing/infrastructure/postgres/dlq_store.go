package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

const (
	defaultDLQTable = "dead_letter_events"
	maxErrorLength  = 2000
)

// DLQStore keeps events whose delivery failed, one row per event id.
type DLQStore struct {
	db    DBTX
	table string
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewDLQStore constructs the store.
func NewDLQStore(db DBTX, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// RecordFailure stores env with the latest cause. A repeated failure of the same
// event bumps its attempt count.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (event_id, event_type, site_id, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
ON CONFLICT (event_id) DO UPDATE SET
	error = EXCLUDED.error,
	last_seen_at = NOW(),
	attempts = %[1]s.attempts + 1`, s.table)
	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, env.SiteID, payload, causeText(cause))
	return err
}

func causeText(cause error) string {
	if cause == nil {
		return ""
	}
	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
