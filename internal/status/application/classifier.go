package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
	"github.com/Sabari-Jazz/moose/internal/status/application/events"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// Outcome summarises one device classification.
type Outcome struct {
	DeviceID string
	Previous status.Status
	Current  status.Status
	Reason   string
	Power    float64
	Changed  bool
}

// DeviceService classifies devices and persists the result.
type DeviceService struct {
	devices   status.DeviceStatusRepository
	logs      status.LogRepository
	telemetry Telemetry
	colours   FaultColours
	night     NightWindow
	publisher EventPublisher
	clock     Clock
	logger    *zap.Logger
}

// DeviceServiceOption customizes the device service.
type DeviceServiceOption func(*DeviceService)

// WithDeviceClock assigns a clock.
func WithDeviceClock(clock Clock) DeviceServiceOption {
	return func(s *DeviceService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDeviceLogger assigns a logger.
func WithDeviceLogger(logger *zap.Logger) DeviceServiceOption {
	return func(s *DeviceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDeviceService constructs the classifier.
func NewDeviceService(devices status.DeviceStatusRepository, logs status.LogRepository, telemetry Telemetry, colours FaultColours, night NightWindow, publisher EventPublisher, opts ...DeviceServiceOption) (*DeviceService, error) {
	if devices == nil || logs == nil {
		return nil, errors.New("status: nil repository")
	}
	if telemetry == nil {
		return nil, errors.New("status: nil telemetry")
	}
	if colours == nil {
		return nil, errors.New("status: nil fault colours")
	}
	if night == nil {
		return nil, errors.New("status: nil night window")
	}
	if publisher == nil {
		return nil, errors.New("status: nil publisher")
	}
	service := &DeviceService{
		devices:   devices,
		logs:      logs,
		telemetry: telemetry,
		colours:   colours,
		night:     night,
		publisher: publisher,
		clock:     systemClock{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Process runs one classification for a device. Upstream failures degrade to
// zero power or "no production"; only store failures are returned.
func (s *DeviceService) Process(ctx context.Context, site masterdata.Site, device masterdata.Device) (Outcome, error) {
	if s == nil {
		return Outcome{}, errors.New("status: nil device service")
	}
	if device.ID == "" || device.SiteID == "" {
		return Outcome{}, status.ErrInvalidRecord
	}
	now := s.clock.Now().UTC()
	logger := s.logger.With(zap.String("device_id", device.ID), zap.String("site_id", device.SiteID))

	current, err := s.devices.Get(ctx, device.ID)
	if err != nil {
		return Outcome{}, err
	}
	if current == nil {
		current = &status.DeviceStatusRecord{
			DeviceID: device.ID,
			SiteID:   device.SiteID,
			Status:   status.StatusHealthy,
		}
		if err := s.devices.Save(ctx, *current); err != nil {
			return Outcome{}, err
		}
		logger.Info("device status created")
	}

	reading, err := s.telemetry.FlowData(ctx, device.SiteID, device.ID)
	if err != nil {
		metrics.IncTelemetryError("flowdata")
		logger.Warn("flowdata failed, treating as zero power", zap.Error(err))
	}
	power := reading.Power
	if err != nil {
		power = 0
	}

	night, window := s.night.IsNight(ctx, site, now)

	input := status.Input{
		Current: current.Status,
		Reason:  current.Reason,
		Power:   power,
		Night:   night,
	}
	if status.NeedsFaultLookup(night, power) {
		input.CriticalCode = s.criticalCode(ctx, site, device, current, now, logger)
	}
	result := status.Transition(input)
	metrics.IncDeviceClassified(string(result.Status))

	outcome := Outcome{
		DeviceID: device.ID,
		Previous: current.Status,
		Current:  result.Status,
		Reason:   result.Reason,
		Power:    power,
	}

	if !result.Changed(current.Status, current.Reason) {
		if err := s.devices.Touch(ctx, device.ID, power, now); err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	outcome.Changed = true
	record := status.DeviceStatusRecord{
		DeviceID:         device.ID,
		SiteID:           device.SiteID,
		Status:           result.Status,
		Reason:           result.Reason,
		Power:            power,
		LastUpdated:      now,
		LastStatusChange: now,
	}
	if err := s.devices.Save(ctx, record); err != nil {
		return outcome, err
	}
	date := status.LocalDate(now, site.Timezone)
	if err := s.logs.Append(ctx, status.SubjectDevice, device.ID, date, status.LogEntry{
		Status:    result.Status,
		Reason:    result.Reason,
		Timestamp: now,
	}); err != nil {
		logger.Warn("device log append failed", zap.Error(err))
	}
	metrics.IncStatusChange(string(current.Status), string(result.Status))
	logger.Info("device status changed",
		zap.String("from", string(current.Status)),
		zap.String("to", string(result.Status)),
		zap.String("reason", result.Reason),
		zap.Float64("power", power),
		zap.Bool("night", night),
	)

	event := events.DeviceStatusChanged{
		DeviceID:       device.ID,
		SiteID:         device.SiteID,
		PreviousStatus: current.Status,
		NewStatus:      result.Status,
		PreviousReason: current.Reason,
		NewReason:      result.Reason,
		Power:          power,
		OccurredAt:     now,
		Timezone:       site.Timezone,
		Sunrise:        window.Sunrise,
		Sunset:         window.Sunset,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Error("publish device status change failed", zap.Error(err))
	}
	return outcome, nil
}

func (s *DeviceService) criticalCode(ctx context.Context, site masterdata.Site, device masterdata.Device, current *status.DeviceStatusRecord, now time.Time, logger *zap.Logger) string {
	from := current.LastUpdated
	if from.IsZero() {
		local := now.In(site.Location())
		from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	}
	faults, err := s.telemetry.Messages(ctx, device.SiteID, device.ID, from)
	if err != nil {
		metrics.IncTelemetryError("messages")
		logger.Warn("fault lookup failed", zap.Error(err))
		return ""
	}
	if len(faults) == 0 {
		return ""
	}
	colours, err := s.colours.Colours(ctx)
	if err != nil {
		metrics.IncTelemetryError("fault_codes")
		logger.Warn("fault code colours unavailable", zap.Error(err))
		return ""
	}
	code, _ := status.FirstCriticalCode(faults, colours)
	return code
}
