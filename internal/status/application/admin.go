package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// ResetResult counts an admin reset.
type ResetResult struct {
	Devices   int
	Recompute RecomputeResult
}

// AdminService holds operator maintenance operations.
type AdminService struct {
	devices    status.DeviceStatusRepository
	logs       status.LogRepository
	inventory  Inventory
	aggregator *Aggregator
	clock      Clock
	logger     *zap.Logger
}

// NewAdminService constructs the service.
func NewAdminService(devices status.DeviceStatusRepository, logs status.LogRepository, inventory Inventory, aggregator *Aggregator, clock Clock, logger *zap.Logger) (*AdminService, error) {
	if devices == nil || logs == nil {
		return nil, errors.New("status: nil repository")
	}
	if inventory == nil {
		return nil, errors.New("status: nil inventory")
	}
	if aggregator == nil {
		return nil, errors.New("status: nil aggregator")
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{devices: devices, logs: logs, inventory: inventory, aggregator: aggregator, clock: clock, logger: logger}, nil
}

// ResetAll rewrites every device record to healthy with an empty reason, keeps
// its power, logs the reset and then recomputes every site.
func (s *AdminService) ResetAll(ctx context.Context) (ResetResult, error) {
	var result ResetResult
	if s == nil {
		return result, errors.New("status: nil admin service")
	}
	snapshot, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return result, err
	}
	timezones := make(map[string]string, len(snapshot))
	for _, entry := range snapshot {
		timezones[entry.Site.ID] = entry.Site.Timezone
	}

	records, err := s.devices.List(ctx)
	if err != nil {
		return result, err
	}
	now := s.clock.Now().UTC()
	for _, record := range records {
		record.Status = status.StatusHealthy
		record.Reason = ""
		record.LastUpdated = now
		record.LastStatusChange = now
		if err := s.devices.Save(ctx, record); err != nil {
			return result, err
		}
		if err := s.logs.Append(ctx, status.SubjectDevice, record.DeviceID, status.LocalDate(now, timezones[record.SiteID]), status.LogEntry{
			Status:    status.StatusHealthy,
			Reason:    "reset by admin",
			Timestamp: now,
		}); err != nil {
			s.logger.Warn("reset log append failed", zap.String("device_id", record.DeviceID), zap.Error(err))
		}
		result.Devices++
	}

	recompute, err := s.aggregator.RecomputeAll(ctx)
	result.Recompute = recompute
	s.logger.Info("device statuses reset",
		zap.Int("devices", result.Devices),
		zap.Int("sites_written", recompute.Written),
	)
	return result, err
}

// RecomputeAll rebuilds every site aggregate from the stored device records.
func (s *AdminService) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	if s == nil {
		return RecomputeResult{}, errors.New("status: nil admin service")
	}
	return s.aggregator.RecomputeAll(ctx)
}
