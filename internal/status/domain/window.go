package status

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NightPadding extends the night window before sunset and after sunrise.
const NightPadding = time.Hour

// ClockLayout is the provider format for sunrise and sunset ("06:45 AM").
const ClockLayout = "03:04 PM"

// SunWindow holds sunrise and sunset for one site on one local date.
type SunWindow struct {
	SiteID   string `json:"site_id"`
	Date     string `json:"date"`
	Sunrise  string `json:"sunrise"`
	Sunset   string `json:"sunset"`
	Timezone string `json:"timezone"`
}

// Complete reports whether both times are present.
func (w SunWindow) Complete() bool {
	return strings.TrimSpace(w.Sunrise) != "" && strings.TrimSpace(w.Sunset) != ""
}

// ParseClock parses "HH:MM AM/PM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return 0, errors.New("status: empty clock value")
	}
	t, err := time.Parse(ClockLayout, value)
	if err != nil {
		t, err = time.Parse("3:04 PM", value)
		if err != nil {
			return 0, fmt.Errorf("status: parse clock %q: %w", value, err)
		}
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsNightWindow reports whether now falls at or after sunset minus the padding,
// or at or before sunrise plus the padding, in the window's timezone. An invalid
// timezone yields an error so the caller can fall back to the day window.
func IsNightWindow(now time.Time, window SunWindow) (bool, error) {
	if !window.Complete() {
		return false, errors.New("status: incomplete sun window")
	}
	sunrise, err := ParseClock(window.Sunrise)
	if err != nil {
		return false, err
	}
	sunset, err := ParseClock(window.Sunset)
	if err != nil {
		return false, err
	}
	loc := time.UTC
	if window.Timezone != "" {
		loc, err = time.LoadLocation(window.Timezone)
		if err != nil {
			return false, fmt.Errorf("status: load timezone %q: %w", window.Timezone, err)
		}
	}
	local := now.In(loc)
	clock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())

	start := time.Duration(sunset)*time.Minute - NightPadding
	end := time.Duration(sunrise)*time.Minute + NightPadding
	return clock >= start || clock <= end, nil
}
