package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

func TestOutboxInsertAndClaimPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	env := eventing.Envelope{EventID: "evt-1", EventType: "status.device_changed", SiteID: "site-1", Payload: json.RawMessage(`{}`)}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_outbox")).
		WithArgs(sqlmock.AnyArg(), "evt-1", "status.device_changed", "site-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewOutboxStore(db, WithMinAge(30*time.Second), WithClaimLease(2*time.Minute), WithMaxAttempts(3))
	store.now = func() time.Time { return now }

	id, err := store.Insert(context.Background(), env)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	later := env
	later.EventID = "evt-2"
	later.OccurredAt = now.Add(-time.Minute)
	earlier := env
	earlier.OccurredAt = now.Add(-2 * time.Minute)
	rawLater, err := json.Marshal(later)
	require.NoError(t, err)
	rawEarlier, err := json.Marshal(earlier)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'failed' AND attempts < $5")).
		WithArgs(now, now.Add(-30*time.Second), now.Add(-2*time.Minute), 10, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).
			AddRow("row-2", rawLater).
			AddRow(id, rawEarlier))

	records, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "evt-1", records[0].Envelope.EventID)
	assert.Equal(t, "evt-2", records[1].Envelope.EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRejectsCorruptPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id, payload")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).AddRow("row-1", []byte("{")))

	_, err = NewOutboxStore(db).ListPending(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row-1")
}

func TestOutboxMarkSentAndFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, attempts = attempts + 1")).
		WithArgs("sent", sqlmock.AnyArg(), "row-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = $1, attempts = attempts + 1")).
		WithArgs("failed", sqlmock.AnyArg(), "row-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewOutboxStore(db)
	require.NoError(t, store.MarkSent(context.Background(), "row-1"))
	require.NoError(t, store.MarkFailed(context.Background(), "row-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM processed_events")).
		WithArgs("evt-1", "status.aggregator").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM processed_events")).
		WithArgs("evt-3", "status.aggregator").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (event_id, consumer_name) DO NOTHING")).
		WithArgs("evt-2", "status.aggregator").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewProcessedStore(db)
	ok, err := store.HasProcessed(context.Background(), "evt-1", "status.aggregator")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.HasProcessed(context.Background(), "evt-3", "status.aggregator")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, store.MarkProcessed(context.Background(), "evt-2", "status.aggregator"))

	_, err = store.HasProcessed(context.Background(), "", "status.aggregator")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStorePrune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM processed_events WHERE processed_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewProcessedStore(db).Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQRecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	long := strings.Repeat("x", maxErrorLength+10)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dead_letter_events")).
		WithArgs("evt-1", "incident.opened", "site-1", sqlmock.AnyArg(), "decode failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("attempts = dead_letter_events.attempts + 1")).
		WithArgs("evt-1", "incident.opened", "site-1", sqlmock.AnyArg(), long[:maxErrorLength]).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewDLQStore(db)
	env := eventing.Envelope{EventID: "evt-1", EventType: "incident.opened", SiteID: "site-1"}
	require.NoError(t, store.RecordFailure(context.Background(), env, errors.New("decode failed")))
	require.NoError(t, store.RecordFailure(context.Background(), env, errors.New(long)))
	assert.Error(t, store.RecordFailure(context.Background(), eventing.Envelope{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
