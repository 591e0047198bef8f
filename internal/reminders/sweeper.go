// Package reminders re-announces devices that have stayed in the fault state
// past a threshold.
package reminders

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sabari-Jazz/moose/internal/directory"
	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/notify"
	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

const (
	DefaultThreshold  = 15 * time.Hour
	defaultBatchSize  = 32
	defaultBatchPause = 500 * time.Millisecond
)

// FaultLister lists device records by status.
type FaultLister interface {
	ListByStatus(ctx context.Context, s status.Status) ([]status.DeviceStatusRecord, error)
}

// RecipientSource lists a site's recipients.
type RecipientSource interface {
	RecipientsForSite(ctx context.Context, siteID string) ([]directory.Recipient, error)
}

// Names resolves display names.
type Names interface {
	Device(ctx context.Context, id string) (*masterdata.Device, error)
	Site(ctx context.Context, id string) (*masterdata.Site, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Stats counts one sweep.
type Stats struct {
	Faults  int
	Sent    int
	Skipped int
	Errors  int
}

// Sweeper sends the daily reminder for long-standing faults. It keeps no
// state between runs.
type Sweeper struct {
	devices    FaultLister
	recipients RecipientSource
	channel    notify.Channel
	templates  *notify.Templates
	names      Names
	clock      Clock
	logger     *zap.Logger
	threshold  time.Duration
	batchSize  int
	batchPause time.Duration
}

// Option configures the sweeper.
type Option func(*Sweeper)

// WithThreshold sets the minimum fault age.
func WithThreshold(threshold time.Duration) Option {
	return func(s *Sweeper) {
		if threshold >= 0 {
			s.threshold = threshold
		}
	}
}

// WithBatching overrides the batch size and the pause between batches.
func WithBatching(size int, pause time.Duration) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
		if pause >= 0 {
			s.batchPause = pause
		}
	}
}

// WithNames enables display names.
func WithNames(names Names) Option {
	return func(s *Sweeper) {
		s.names = names
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSweeper constructs a sweeper.
func NewSweeper(devices FaultLister, recipients RecipientSource, channel notify.Channel, templates *notify.Templates, opts ...Option) (*Sweeper, error) {
	if devices == nil {
		return nil, errors.New("reminders: nil device store")
	}
	if recipients == nil {
		return nil, errors.New("reminders: nil recipients")
	}
	if channel == nil {
		return nil, errors.New("reminders: nil channel")
	}
	if templates == nil {
		return nil, errors.New("reminders: nil templates")
	}
	s := &Sweeper{
		devices:    devices,
		recipients: recipients,
		channel:    channel,
		templates:  templates,
		clock:      systemClock{},
		logger:     zap.NewNop(),
		threshold:  DefaultThreshold,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps every fault device once.
func (s *Sweeper) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, errors.New("reminders: nil sweeper")
	}
	records, err := s.devices.ListByStatus(ctx, status.StatusFault)
	if err != nil {
		return stats, err
	}
	stats.Faults = len(records)
	now := s.clock.Now().UTC()

	var sent, skipped, failed int64
	for offset := 0; offset < len(records); offset += s.batchSize {
		if offset > 0 && s.batchPause > 0 {
			if err := sleep(ctx, s.batchPause); err != nil {
				break
			}
		}
		end := offset + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		var group errgroup.Group
		for _, record := range records[offset:end] {
			record := record
			group.Go(func() error {
				switch s.remind(ctx, record, now) {
				case metrics.ResultSuccess:
					atomic.AddInt64(&sent, 1)
				case metrics.ResultSkipped:
					atomic.AddInt64(&skipped, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				return nil
			})
		}
		_ = group.Wait()
	}
	stats.Sent = int(sent)
	stats.Skipped = int(skipped)
	stats.Errors = int(failed)
	s.logger.Info("reminder sweep finished",
		zap.Int("faults", stats.Faults),
		zap.Int("sent", stats.Sent),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, ctx.Err()
}

// Due reports whether a fault record is old enough for a reminder. A record
// without a status change time is always due.
func (s *Sweeper) Due(record status.DeviceStatusRecord, now time.Time) bool {
	if record.LastStatusChange.IsZero() {
		return true
	}
	return now.Sub(record.LastStatusChange) >= s.threshold
}

func (s *Sweeper) remind(ctx context.Context, record status.DeviceStatusRecord, now time.Time) string {
	if record.DeviceID == "" || record.SiteID == "" {
		s.logger.Warn("skipping fault record without identifiers", zap.String("device_id", record.DeviceID))
		metrics.IncReminder(metrics.ResultSkipped)
		return metrics.ResultSkipped
	}
	if !s.Due(record, now) {
		metrics.IncReminder(metrics.ResultSkipped)
		return metrics.ResultSkipped
	}
	result := s.send(ctx, record)
	metrics.IncReminder(result)
	return result
}

func (s *Sweeper) send(ctx context.Context, record status.DeviceStatusRecord) string {
	recipients, err := s.recipients.RecipientsForSite(ctx, record.SiteID)
	if err != nil {
		s.logger.Error("load reminder recipients failed", zap.String("site_id", record.SiteID), zap.Error(err))
		return metrics.ResultError
	}
	deviceName, siteName := s.displayNames(ctx, record)
	subject, body, err := s.templates.Reminder(notify.ReminderData{
		Device: deviceName,
		Site:   siteName,
		Reason: record.Reason,
		Since:  record.LastStatusChange,
		Power:  record.Power,
	})
	if err != nil {
		s.logger.Error("render reminder failed", zap.String("device_id", record.DeviceID), zap.Error(err))
		return metrics.ResultError
	}
	err = s.channel.Send(ctx, notify.Message{
		Tag:        notify.TagDailyReminder,
		SiteID:     record.SiteID,
		DeviceID:   record.DeviceID,
		PushTokens: directory.UniqueTokens(recipients),
		Subject:    subject,
		Body:       body,
		Data: map[string]string{
			"status": string(record.Status),
			"reason": record.Reason,
		},
	})
	if errors.Is(err, notify.ErrNoRecipient) {
		s.logger.Info("no reminder recipients", zap.String("device_id", record.DeviceID))
		return metrics.ResultSkipped
	}
	if err != nil {
		s.logger.Error("send reminder failed", zap.String("device_id", record.DeviceID), zap.Error(err))
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}

func (s *Sweeper) displayNames(ctx context.Context, record status.DeviceStatusRecord) (string, string) {
	deviceName, siteName := record.DeviceID, record.SiteID
	if s.names == nil {
		return deviceName, siteName
	}
	if device, err := s.names.Device(ctx, record.DeviceID); err == nil && device != nil {
		deviceName = device.DisplayName()
	}
	if site, err := s.names.Site(ctx, record.SiteID); err == nil && site != nil && site.Name != "" {
		siteName = site.Name
	}
	return deviceName, siteName
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
