package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

var deviceStatusCols = []string{"device_id", "site_id", "status", "reason", "power", "last_updated", "last_status_change"}

type jsonArg struct {
	want any
}

func (a jsonArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	expected, err := json.Marshal(a.want)
	if err != nil {
		return false
	}
	var got, exp any
	if json.Unmarshal(raw, &got) != nil || json.Unmarshal(expected, &exp) != nil {
		return false
	}
	return assert.ObjectsAreEqual(exp, got)
}

func TestDeviceStatusRepositoryGetMapsLegacyLabels(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	changed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("x", -4*3600))
	mock.ExpectQuery(regexp.QuoteMeta("FROM device_status")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(deviceStatusCols).
			AddRow("inv-1", "site-1", "red", "error code: 567", 0.0, changed, changed))

	record, err := NewDeviceStatusRepository(db).Get(context.Background(), "inv-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, status.StatusFault, record.Status)
	assert.Equal(t, "error code: 567", record.Reason)
	assert.Equal(t, time.UTC, record.LastStatusChange.Location())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceStatusRepositoryGetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM device_status")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(deviceStatusCols))

	record, err := NewDeviceStatusRepository(db).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestDeviceStatusRepositorySaveWritesNullForZeroTimes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_status")).
		WithArgs("inv-1", "site-1", "healthy", "", 0.0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewDeviceStatusRepository(db).Save(context.Background(), status.DeviceStatusRecord{
		DeviceID: "inv-1",
		SiteID:   "site-1",
		Status:   status.StatusHealthy,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceStatusRepositorySaveRejectsMissingIDs(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewDeviceStatusRepository(db).Save(context.Background(), status.DeviceStatusRecord{DeviceID: "inv-1"})
	require.ErrorIs(t, err, status.ErrInvalidRecord)
}

func TestDeviceStatusRepositoryTouch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE device_status")).
		WithArgs(420.5, at, "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE device_status")).
		WithArgs(0.0, at, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDeviceStatusRepository(db)
	require.NoError(t, repo.Touch(context.Background(), "inv-1", 420.5, at))
	require.ErrorIs(t, repo.Touch(context.Background(), "ghost", 0, at), status.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceStatusRepositoryListByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	changed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(btrim(status)) IN ($1, $2)")).
		WithArgs("fault", "red").
		WillReturnRows(sqlmock.NewRows(deviceStatusCols).
			AddRow("a", "s", "fault", "no production", nil, nil, changed).
			AddRow("b", "s", "RED", nil, 0.0, changed, changed))

	records, err := NewDeviceStatusRepository(db).ListByStatus(context.Background(), status.StatusFault)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, status.StatusFault, records[1].Status)
	assert.True(t, records[0].LastUpdated.IsZero())
	assert.Equal(t, changed, records[0].LastStatusChange)
	assert.Empty(t, records[1].Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteStatusRepositoryRoundTripsSets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO site_status")).
		WithArgs("site-1", "fault", jsonArg{[]string{"a"}}, jsonArg{[]string{"b"}}, jsonArg{[]string{}}, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM site_status")).
		WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows([]string{"site_id", "status", "healthy", "fault", "dormant", "device_count", "last_updated"}).
			AddRow("site-1", "fault", []byte(`["a"]`), []byte(`["b"]`), []byte(`[]`), 2, at))

	repo := NewSiteStatusRepository(db)
	require.NoError(t, repo.Save(context.Background(), status.SiteStatusRecord{
		SiteID:      "site-1",
		Status:      status.StatusFault,
		Healthy:     []string{"a"},
		Fault:       []string{"b"},
		DeviceCount: 2,
		LastUpdated: at,
	}))

	record, err := repo.Get(context.Background(), "site-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []string{"a"}, record.Healthy)
	assert.Equal(t, []string{"b"}, record.Fault)
	assert.Nil(t, record.Dormant)
	assert.Equal(t, at, record.LastUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryAppendConcatenatesEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("entries = status_logs.entries || EXCLUDED.entries")).
		WithArgs("device", "inv-1", "2024-06-01", jsonArg{[]map[string]any{{
			"status":    "fault",
			"reason":    "no production",
			"timestamp": at.Format(time.RFC3339),
		}}}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewLogRepository(db).Append(context.Background(), status.SubjectDevice, "inv-1", "2024-06-01", status.LogEntry{
		Status:    status.StatusFault,
		Reason:    status.ReasonNoProduction,
		Timestamp: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRepositoryRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("log_date BETWEEN $3 AND $4")).
		WithArgs("site", "site-1", "2024-06-01", "2024-06-02").
		WillReturnRows(sqlmock.NewRows([]string{"log_date", "entries"}).
			AddRow("2024-06-01", []byte(`[{"status":"healthy","timestamp":"2024-06-01T10:00:00Z"}]`)).
			AddRow("2024-06-02", []byte(`[{"status":"fault","timestamp":"2024-06-02T10:00:00Z"},{"status":"healthy","timestamp":"2024-06-02T11:00:00Z"}]`)))

	logs, err := NewLogRepository(db).Range(context.Background(), status.SubjectSite, "site-1", "2024-06-01", "2024-06-02")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Len(t, logs[1].Entries, 2)
	assert.Equal(t, status.StatusFault, logs[1].Entries[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
