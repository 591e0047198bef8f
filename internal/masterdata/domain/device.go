package masterdata

import (
	"context"
	"errors"
	"time"
)

// Device is an inverter reporting to the telemetry provider.
type Device struct {
	ID        string
	SiteID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.ID == "" {
		return errors.New("device: empty id")
	}
	if d.SiteID == "" {
		return errors.New("device: empty site id")
	}
	return nil
}

// DisplayName falls back to the id.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// DeviceRepository manages device persistence.
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*Device, error)
	ListBySite(ctx context.Context, siteID string) ([]Device, error)
	List(ctx context.Context) ([]Device, error)
	Save(ctx context.Context, device *Device) error
}
