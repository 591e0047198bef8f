package sun

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)
	return mr, store
}

type stubProvider struct {
	calls   int32
	sunrise string
	sunset  string
	err     error
}

func (p *stubProvider) SunTimes(context.Context, float64, float64, string) (string, string, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.sunrise, p.sunset, p.err
}

var torontoSite = masterdata.Site{ID: "site-1", Name: "Roof", Timezone: "America/Toronto", Latitude: 43.65, Longitude: -79.38}

func TestRedisStoreFirstWriterWins(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	wrote, err := store.PutIfAbsent(ctx, status.SunWindow{SiteID: "s", Date: "2026-06-01", Sunrise: "05:30 AM", Sunset: "08:45 PM"})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = store.PutIfAbsent(ctx, status.SunWindow{SiteID: "s", Date: "2026-06-01", Sunrise: "06:00 AM", Sunset: "08:00 PM"})
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := store.Get(ctx, "s", "2026-06-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "05:30 AM", got.Sunrise)
	assert.True(t, mr.TTL("sun:window:s:2026-06-01") > 0)

	missing, err := store.Get(ctx, "s", "2026-06-02")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServiceFetchesOncePerDate(t *testing.T) {
	_, store := setupStore(t)
	provider := &stubProvider{sunrise: "05:36 AM", sunset: "08:57 PM"}
	svc, err := NewService(store, provider, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 6, 21, 16, 0, 0, 0, time.UTC)
	window, ok := svc.Window(context.Background(), torontoSite, now)
	require.True(t, ok)
	assert.Equal(t, "2026-06-21", window.Date)
	assert.Equal(t, "America/Toronto", window.Timezone)

	_, ok = svc.Window(context.Background(), torontoSite, now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestServiceIsNight(t *testing.T) {
	_, store := setupStore(t)
	provider := &stubProvider{sunrise: "05:36 AM", sunset: "08:57 PM"}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	// 02:00 local
	night, _ := svc.IsNight(context.Background(), torontoSite, time.Date(2026, 6, 21, 6, 0, 0, 0, time.UTC))
	assert.True(t, night)
	// 12:00 local
	night, _ = svc.IsNight(context.Background(), torontoSite, time.Date(2026, 6, 21, 16, 0, 0, 0, time.UTC))
	assert.False(t, night)
}

func TestServiceMissingDataMeansDay(t *testing.T) {
	_, store := setupStore(t)
	provider := &stubProvider{err: errors.New("quota")}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	night, _ := svc.IsNight(context.Background(), torontoSite, time.Date(2026, 6, 21, 6, 0, 0, 0, time.UTC))
	assert.False(t, night)

	noCoords := masterdata.Site{ID: "site-2", Name: "x"}
	_, ok := svc.Window(context.Background(), noCoords, time.Now())
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestAstronomyClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/astronomy.json", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "43.65,-79.38", r.URL.Query().Get("q"))
		assert.Equal(t, "2026-06-21", r.URL.Query().Get("dt"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"astronomy":{"astro":{"sunrise":"05:36 AM","sunset":"08:57 PM"}}}`))
	}))
	defer server.Close()

	client, err := NewAstronomyClient(server.URL, "k", time.Second)
	require.NoError(t, err)
	sunrise, sunset, err := client.SunTimes(context.Background(), 43.65, -79.38, "2026-06-21")
	require.NoError(t, err)
	assert.Equal(t, "05:36 AM", sunrise)
	assert.Equal(t, "08:57 PM", sunset)
}
