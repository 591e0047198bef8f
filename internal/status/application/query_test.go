package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
	"github.com/Sabari-Jazz/moose/internal/status/infrastructure/memory"
)

func TestQueryServiceLookups(t *testing.T) {
	ctx := context.Background()
	devices := memory.NewDeviceStore()
	logs := memory.NewLogStore()
	query, err := NewQueryService(devices, memory.NewSiteStore(), logs)
	require.NoError(t, err)

	_, err = query.DeviceStatus(ctx, "missing")
	require.ErrorIs(t, err, status.ErrNotFound)
	_, err = query.SiteStatus(ctx, "missing")
	require.ErrorIs(t, err, status.ErrNotFound)

	require.NoError(t, devices.Save(ctx, status.DeviceStatusRecord{DeviceID: "a", SiteID: "s", Status: status.StatusHealthy}))
	record, err := query.DeviceStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "s", record.SiteID)

	empty, err := query.DailyLog(ctx, status.SubjectDevice, "a", "2024-06-01")
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Equal(t, "2024-06-01", empty.Date)

	_, err = query.DailyLog(ctx, status.SubjectDevice, "a", "June 1")
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestQueryServiceLogRange(t *testing.T) {
	ctx := context.Background()
	logs := memory.NewLogStore()
	query, err := NewQueryService(memory.NewDeviceStore(), memory.NewSiteStore(), logs)
	require.NoError(t, err)

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, date := range []string{"2024-05-30", "2024-06-01", "2024-06-03"} {
		require.NoError(t, logs.Append(ctx, status.SubjectSite, "s", date, status.LogEntry{Status: status.StatusFault, Timestamp: at}))
	}

	got, err := query.LogRange(ctx, status.SubjectSite, "s", "2024-05-31", "2024-06-03")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-01", got[0].Date)
	assert.Equal(t, "2024-06-03", got[1].Date)

	_, err = query.LogRange(ctx, status.SubjectSite, "s", "2024-06-03", "2024-06-01")
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = query.LogRange(ctx, status.SubjectSite, "s", "2024-01-01", "2024-12-31")
	require.ErrorIs(t, err, ErrInvalidRange)
}
