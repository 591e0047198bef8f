package application

import (
	"context"
	"time"

	masterdataapp "github.com/Sabari-Jazz/moose/internal/masterdata/application"
	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/solarweb"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Telemetry reads device power and fault messages from the provider.
type Telemetry interface {
	FlowData(ctx context.Context, siteID, deviceID string) (solarweb.Reading, error)
	Messages(ctx context.Context, siteID, deviceID string, from time.Time) ([]status.FaultEvent, error)
}

// FaultColours maps fault codes to severity colours.
type FaultColours interface {
	Colours(ctx context.Context) (map[string]string, error)
}

// NightWindow decides whether a site is in its night window.
type NightWindow interface {
	IsNight(ctx context.Context, site masterdata.Site, now time.Time) (bool, status.SunWindow)
}

// Inventory lists sites and their devices.
type Inventory interface {
	Snapshot(ctx context.Context) ([]masterdataapp.SiteInventory, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
