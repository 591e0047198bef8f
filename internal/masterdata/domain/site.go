package masterdata

import (
	"context"
	"errors"
	"time"
)

// Site is a solar installation with one or more inverters.
type Site struct {
	ID        string
	Name      string
	Timezone  string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks site invariants.
func (s Site) Validate() error {
	if s.ID == "" {
		return errors.New("site: empty id")
	}
	if s.Name == "" {
		return errors.New("site: empty name")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return errors.New("site: invalid timezone")
		}
	}
	return nil
}

// Location returns the site zone, UTC when unset or unknown.
func (s Site) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasCoordinates reports whether a sun window can be requested for the site.
func (s Site) HasCoordinates() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// SiteRepository manages site persistence.
type SiteRepository interface {
	Get(ctx context.Context, id string) (*Site, error)
	List(ctx context.Context) ([]Site, error)
	Save(ctx context.Context, site *Site) error
}
