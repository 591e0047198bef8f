package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
	"github.com/Sabari-Jazz/moose/internal/status/application/events"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// Aggregator recomputes site aggregates from device records.
type Aggregator struct {
	devices   status.DeviceStatusRepository
	sites     status.SiteStatusRepository
	logs      status.LogRepository
	inventory Inventory
	publisher EventPublisher
	clock     Clock
	logger    *zap.Logger
}

// AggregatorOption customizes the aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorClock assigns a clock.
func WithAggregatorClock(clock Clock) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithAggregatorLogger assigns a logger.
func WithAggregatorLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSitePublisher publishes SiteStatusChanged on every rewrite.
func WithSitePublisher(publisher EventPublisher) AggregatorOption {
	return func(a *Aggregator) {
		a.publisher = publisher
	}
}

// NewAggregator constructs an aggregator. The inventory is only used by RecomputeAll.
func NewAggregator(devices status.DeviceStatusRepository, sites status.SiteStatusRepository, logs status.LogRepository, inventory Inventory, opts ...AggregatorOption) (*Aggregator, error) {
	if devices == nil || sites == nil || logs == nil {
		return nil, errors.New("status: nil repository")
	}
	aggregator := &Aggregator{
		devices:   devices,
		sites:     sites,
		logs:      logs,
		inventory: inventory,
		clock:     systemClock{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(aggregator)
	}
	return aggregator, nil
}

// HandleDeviceStatusChanged recomputes the device's site.
func (a *Aggregator) HandleDeviceStatusChanged(ctx context.Context, evt events.DeviceStatusChanged) error {
	if a == nil {
		return errors.New("status: nil aggregator")
	}
	if evt.SiteID == "" {
		a.logger.Warn("status change without site id", zap.String("device_id", evt.DeviceID))
		return nil
	}
	_, err := a.Recompute(ctx, evt.SiteID, evt.Timezone, evt.OccurredAt)
	return err
}

// Recompute rescans the site's devices and rewrites the aggregate when the
// partition or aggregate differs from what is stored. It reports whether it wrote.
// The site log entry is filed under the local date of at, or of the current
// time when at is zero.
func (a *Aggregator) Recompute(ctx context.Context, siteID, timezone string, at time.Time) (bool, error) {
	if a == nil {
		return false, errors.New("status: nil aggregator")
	}
	devices, err := a.devices.ListBySite(ctx, siteID)
	if err != nil {
		return false, err
	}
	composition := status.Compose(devices)

	stored, err := a.sites.Get(ctx, siteID)
	if err != nil {
		return false, err
	}
	if composition.Matches(stored) {
		metrics.IncSiteAggregation("unchanged")
		return false, nil
	}

	now := a.clock.Now().UTC()
	record := composition.Record(siteID)
	record.LastUpdated = now
	if err := a.sites.Save(ctx, record); err != nil {
		return false, err
	}
	metrics.IncSiteAggregation("written")

	var previous status.Status
	if stored != nil {
		previous = stored.Status
	}
	if at.IsZero() {
		at = now
	}
	if err := a.logs.Append(ctx, status.SubjectSite, siteID, status.LocalDate(at, timezone), status.LogEntry{
		Status:    record.Status,
		Timestamp: now,
	}); err != nil {
		a.logger.Warn("site log append failed", zap.String("site_id", siteID), zap.Error(err))
	}
	a.logger.Info("site status recomputed",
		zap.String("site_id", siteID),
		zap.String("from", string(previous)),
		zap.String("to", string(record.Status)),
		zap.Int("healthy", len(record.Healthy)),
		zap.Int("fault", len(record.Fault)),
		zap.Int("dormant", len(record.Dormant)),
	)

	if a.publisher != nil {
		event := events.SiteStatusChanged{
			SiteID:         siteID,
			PreviousStatus: previous,
			NewStatus:      record.Status,
			Healthy:        record.Healthy,
			Fault:          record.Fault,
			Dormant:        record.Dormant,
			DeviceCount:    record.DeviceCount,
			OccurredAt:     now,
			Timezone:       timezone,
		}
		if err := a.publisher.Publish(ctx, event); err != nil {
			a.logger.Error("publish site status change failed", zap.String("site_id", siteID), zap.Error(err))
		}
	}
	return true, nil
}

// RecomputeResult counts a full recompute.
type RecomputeResult struct {
	Sites   int
	Written int
	Errors  int
}

// RecomputeAll runs Recompute for every site in the inventory.
func (a *Aggregator) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	var result RecomputeResult
	if a == nil {
		return result, errors.New("status: nil aggregator")
	}
	if a.inventory == nil {
		return result, errors.New("status: aggregator has no inventory")
	}
	snapshot, err := a.inventory.Snapshot(ctx)
	if err != nil {
		return result, err
	}
	for _, entry := range snapshot {
		result.Sites++
		wrote, err := a.Recompute(ctx, entry.Site.ID, entry.Site.Timezone, time.Time{})
		if err != nil {
			result.Errors++
			a.logger.Error("site recompute failed", zap.String("site_id", entry.Site.ID), zap.Error(err))
			continue
		}
		if wrote {
			result.Written++
		}
	}
	return result, nil
}
