// Package sun resolves the sunrise/sunset window used for night classification.
package sun

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// Service reads windows through the store, fetching from the provider on a miss.
type Service struct {
	store    Store
	provider Provider
	logger   *zap.Logger
}

// NewService constructs the service. The provider may be nil, in which case only
// cached windows are used.
func NewService(store Store, provider Provider, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("sun: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, provider: provider, logger: logger}, nil
}

// Window returns the site's window for the local date of now. ok is false when no
// window could be resolved; callers then classify with the day table.
func (s *Service) Window(ctx context.Context, site masterdata.Site, now time.Time) (status.SunWindow, bool) {
	if s == nil {
		return status.SunWindow{}, false
	}
	date := status.LocalDate(now, site.Timezone)
	logger := s.logger.With(zap.String("site_id", site.ID), zap.String("date", date))

	cached, err := s.store.Get(ctx, site.ID, date)
	if err != nil {
		logger.Warn("sun window cache read failed", zap.Error(err))
	}
	if cached != nil && cached.Complete() {
		return *cached, true
	}

	if s.provider == nil || !site.HasCoordinates() {
		return status.SunWindow{}, false
	}
	sunrise, sunset, err := s.provider.SunTimes(ctx, site.Latitude, site.Longitude, date)
	if err != nil {
		logger.Warn("sun window fetch failed", zap.Error(err))
		return status.SunWindow{}, false
	}
	window := status.SunWindow{
		SiteID:   site.ID,
		Date:     date,
		Sunrise:  sunrise,
		Sunset:   sunset,
		Timezone: site.Timezone,
	}
	wrote, err := s.store.PutIfAbsent(ctx, window)
	if err != nil {
		logger.Warn("sun window cache write failed", zap.Error(err))
		return window, true
	}
	if !wrote {
		if winner, err := s.store.Get(ctx, site.ID, date); err == nil && winner != nil && winner.Complete() {
			return *winner, true
		}
	}
	return window, true
}

// IsNight reports whether now is inside the site's night window. Missing sun data
// or an unusable window means day.
func (s *Service) IsNight(ctx context.Context, site masterdata.Site, now time.Time) (bool, status.SunWindow) {
	window, ok := s.Window(ctx, site, now)
	if !ok {
		return false, window
	}
	night, err := status.IsNightWindow(now, window)
	if err != nil {
		s.logger.Warn("night window evaluation failed",
			zap.String("site_id", site.ID),
			zap.Error(err),
		)
		return false, window
	}
	return night, window
}
