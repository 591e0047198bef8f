package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

var errProcessedArgs = errors.New("processed store: event id and consumer are required")

// ProcessedStore is the per-consumer dedupe table behind eventing.WrapHandler.
type ProcessedStore struct {
	db    DBTX
	table string
}

// ProcessedOption configures the processed store.
type ProcessedOption func(*ProcessedStore)

// WithProcessedTable overrides the table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(store *ProcessedStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewProcessedStore constructs the store.
func NewProcessedStore(db DBTX, opts ...ProcessedOption) *ProcessedStore {
	store := &ProcessedStore{db: db, table: defaultProcessedTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return false, errProcessedArgs
	}
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2 LIMIT 1`, s.table)
	var one int
	err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// MarkProcessed records the pair. Repeats are ignored.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errProcessedArgs
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name)
VALUES ($1, $2)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table)
	_, err := s.db.ExecContext(ctx, query, eventID, consumerName)
	return err
}

// Prune drops rows processed before cutoff and returns how many went.
func (s *ProcessedStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("processed store: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE processed_at < $1`, s.table)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
