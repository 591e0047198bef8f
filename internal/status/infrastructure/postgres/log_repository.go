package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const defaultStatusLogTable = "status_logs"

// LogRepository stores daily logs as one JSONB array per subject and date.
type LogRepository struct {
	db    DBTX
	table string
}

// LogOption configures the repository.
type LogOption func(*LogRepository)

// WithLogTable overrides the default table name.
func WithLogTable(table string) LogOption {
	return func(repo *LogRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewLogRepository constructs a repository.
func NewLogRepository(db DBTX, opts ...LogOption) *LogRepository {
	repo := &LogRepository{db: db, table: defaultStatusLogTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

type logEntryRow struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Append adds one entry atomically.
func (r *LogRepository) Append(ctx context.Context, kind status.SubjectKind, subjectID, date string, entry status.LogEntry) error {
	if r == nil || r.db == nil {
		return errors.New("status log repo: nil db")
	}
	if subjectID == "" || date == "" {
		return errors.New("status log repo: empty subject or date")
	}
	payload, err := json.Marshal([]logEntryRow{{
		Status:    string(entry.Status),
		Reason:    entry.Reason,
		Timestamp: entry.Timestamp.UTC(),
	}})
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	subject_kind,
	subject_id,
	log_date,
	entries
) VALUES (
	$1, $2, $3, $4::jsonb
)
ON CONFLICT (subject_kind, subject_id, log_date)
DO UPDATE SET
	entries = %s.entries || EXCLUDED.entries,
	updated_at = NOW()`, r.table, r.table)

	_, err = r.db.ExecContext(ctx, query, string(kind), subjectID, date, payload)
	return err
}

// Get loads one day's log.
func (r *LogRepository) Get(ctx context.Context, kind status.SubjectKind, subjectID, date string) (*status.DailyStatusLog, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("status log repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT log_date::text, entries
FROM %s
WHERE subject_kind = $1 AND subject_id = $2 AND log_date = $3
LIMIT 1`, r.table)

	log, err := scanLog(r.db.QueryRowContext(ctx, query, string(kind), subjectID, date), kind, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

// Range loads logs between two inclusive dates.
func (r *LogRepository) Range(ctx context.Context, kind status.SubjectKind, subjectID, from, to string) ([]status.DailyStatusLog, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("status log repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT log_date::text, entries
FROM %s
WHERE subject_kind = $1 AND subject_id = $2 AND log_date BETWEEN $3 AND $4
ORDER BY log_date ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, string(kind), subjectID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []status.DailyStatusLog
	for rows.Next() {
		log, err := scanLog(rows, kind, subjectID)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanLog(row rowScanner, kind status.SubjectKind, subjectID string) (*status.DailyStatusLog, error) {
	var (
		date    string
		payload []byte
	)
	if err := row.Scan(&date, &payload); err != nil {
		return nil, err
	}
	var rows []logEntryRow
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, err
		}
	}
	log := &status.DailyStatusLog{Kind: kind, SubjectID: subjectID, Date: date}
	for _, row := range rows {
		log.Entries = append(log.Entries, status.LogEntry{
			Status:    status.Status(row.Status),
			Reason:    row.Reason,
			Timestamp: row.Timestamp.UTC(),
		})
	}
	return log, nil
}
