package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

const (
	defaultOutboxTable  = "event_outbox"
	defaultOutboxMinAge = time.Minute
	defaultClaimLease   = 5 * time.Minute
	defaultMaxAttempts  = 5
)

// OutboxStore persists status and incident events before delivery.
type OutboxStore struct {
	db     DBTX
	table  string
	minAge time.Duration
	lease  time.Duration
	// attempts bounds how often a failed row is claimed again.
	attempts int
	now      func() time.Time
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithMinAge sets how old a pending row must be before the scan picks it up.
// Younger rows are still being delivered by their publisher.
func WithMinAge(age time.Duration) OutboxOption {
	return func(store *OutboxStore) {
		if age >= 0 {
			store.minAge = age
		}
	}
}

// WithClaimLease sets how long a claimed row is hidden from other scans.
func WithClaimLease(lease time.Duration) OutboxOption {
	return func(store *OutboxStore) {
		if lease > 0 {
			store.lease = lease
		}
	}
}

// WithMaxAttempts sets how many deliveries a row gets before it stays failed.
func WithMaxAttempts(attempts int) OutboxOption {
	return func(store *OutboxStore) {
		if attempts > 0 {
			store.attempts = attempts
		}
	}
}

// NewOutboxStore constructs the store.
func NewOutboxStore(db DBTX, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{
		db:       db,
		table:    defaultOutboxTable,
		minAge:   defaultOutboxMinAge,
		lease:    defaultClaimLease,
		attempts: defaultMaxAttempts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert stores env as pending and returns the row id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, site_id, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id, env.EventID, env.EventType, env.SiteID, payload); err != nil {
		return "", err
	}
	return id, nil
}

// ListPending claims up to limit rows older than the minimum age and returns
// them in event order. Pending rows are claimed, and so are failed rows with
// attempts left. Claimed rows stay invisible to concurrent scans for the lease
// duration.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	now := s.now()
	query := fmt.Sprintf(`
UPDATE %[1]s SET claimed_at = $1
WHERE id IN (
	SELECT id FROM %[1]s
	WHERE (status = 'pending' OR (status = 'failed' AND attempts < $5))
		AND created_at <= $2 AND (claimed_at IS NULL OR claimed_at <= $3)
	ORDER BY created_at ASC
	LIMIT $4
	FOR UPDATE SKIP LOCKED
)
RETURNING id, payload`, s.table)
	rows, err := s.db.QueryContext(ctx, query, now, now.Add(-s.minAge), now.Add(-s.lease), limit, s.attempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eventing.OutboxRecord
	for rows.Next() {
		var (
			record  eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: row %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b eventing.OutboxRecord) int {
		return a.Envelope.OccurredAt.Compare(b.Envelope.OccurredAt)
	})
	return records, nil
}

// MarkSent finalizes a delivered row.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.finish(ctx, id, "sent")
}

// MarkFailed records a failed delivery. The row is claimed again until it runs
// out of attempts; the DLQ keeps the cause of each failure.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.finish(ctx, id, "failed")
}

func (s *OutboxStore) finish(ctx context.Context, id, state string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, attempts = attempts + 1, sent_at = CASE WHEN $1 = 'sent' THEN $2 ELSE sent_at END
WHERE id = $3`, s.table)
	_, err := s.db.ExecContext(ctx, query, state, s.now(), id)
	return err
}
