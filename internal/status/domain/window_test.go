package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	m, err := ParseClock("06:45 AM")
	require.NoError(t, err)
	assert.Equal(t, 6*60+45, m)

	m, err = ParseClock("07:10 pm")
	require.NoError(t, err)
	assert.Equal(t, 19*60+10, m)

	m, err = ParseClock("12:00 AM")
	require.NoError(t, err)
	assert.Equal(t, 0, m)

	_, err = ParseClock("")
	assert.Error(t, err)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestIsNightWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	window := SunWindow{SiteID: "s1", Date: "2026-06-01", Sunrise: "05:30 AM", Sunset: "08:45 PM", Timezone: "America/Toronto"}

	cases := []struct {
		clock string
		night bool
	}{
		{"02:00:00", true},
		{"06:30:00", true},
		{"06:30:01", false},
		{"06:30:59", false},
		{"06:31:00", false},
		{"12:00:00", false},
		{"19:44:59", false},
		{"19:45:00", true},
		{"23:59:59", true},
	}
	for _, tc := range cases {
		local, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-06-01 "+tc.clock, loc)
		require.NoError(t, err)
		night, err := IsNightWindow(local.UTC(), window)
		require.NoError(t, err)
		assert.Equal(t, tc.night, night, tc.clock)
	}
}

func TestIsNightWindowErrors(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := IsNightWindow(now, SunWindow{Sunrise: "06:00 AM"})
	assert.Error(t, err)

	_, err = IsNightWindow(now, SunWindow{Sunrise: "06:00 AM", Sunset: "08:00 PM", Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	night, err := IsNightWindow(now, SunWindow{Sunrise: "06:00 AM", Sunset: "08:00 PM"})
	require.NoError(t, err)
	assert.False(t, night)
}

func TestLocalDateFallsBackToUTC(t *testing.T) {
	ts := time.Date(2026, 6, 2, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-06-01", LocalDate(ts, "America/Toronto"))
	assert.Equal(t, "2026-06-02", LocalDate(ts, ""))
	assert.Equal(t, "2026-06-02", LocalDate(ts, "Nowhere/Invalid"))
}
