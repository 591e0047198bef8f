package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

const (
	defaultBatchSize  = 32
	defaultBatchPause = 500 * time.Millisecond
)

// CycleStats counts the outcome of one poll cycle.
type CycleStats struct {
	Devices int
	Changed int
	Skipped int
	Errors  int
}

// DeviceProcessor classifies one device.
type DeviceProcessor interface {
	Process(ctx context.Context, site masterdata.Site, device masterdata.Device) (Outcome, error)
}

// Poller sweeps the inventory in fixed-size concurrent batches.
type Poller struct {
	inventory  Inventory
	processor  DeviceProcessor
	batchSize  int
	batchPause time.Duration
	logger     *zap.Logger
}

// PollerOption customizes the poller.
type PollerOption func(*Poller)

// WithBatching overrides the batch size and the pause between batches.
func WithBatching(size int, pause time.Duration) PollerOption {
	return func(p *Poller) {
		if size > 0 {
			p.batchSize = size
		}
		if pause >= 0 {
			p.batchPause = pause
		}
	}
}

// WithPollerLogger assigns a logger.
func WithPollerLogger(logger *zap.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoller constructs a poller.
func NewPoller(inventory Inventory, processor DeviceProcessor, opts ...PollerOption) (*Poller, error) {
	if inventory == nil {
		return nil, errors.New("status: nil inventory")
	}
	if processor == nil {
		return nil, errors.New("status: nil device processor")
	}
	poller := &Poller{
		inventory:  inventory,
		processor:  processor,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(poller)
	}
	return poller, nil
}

type job struct {
	site   masterdata.Site
	device masterdata.Device
}

// RunCycle classifies every device once. Per-device failures are logged and
// counted; only an inventory failure aborts the cycle.
func (p *Poller) RunCycle(ctx context.Context) (CycleStats, error) {
	start := time.Now()
	var stats CycleStats
	if p == nil {
		return stats, errors.New("status: nil poller")
	}

	snapshot, err := p.inventory.Snapshot(ctx)
	if err != nil {
		metrics.ObservePollCycle(metrics.ResultError, time.Since(start))
		return stats, err
	}
	var jobs []job
	for _, entry := range snapshot {
		for _, device := range entry.Devices {
			if device.ID == "" || device.SiteID == "" {
				stats.Skipped++
				p.logger.Warn("skipping device without identifiers",
					zap.String("device_id", device.ID),
					zap.String("site_id", device.SiteID),
				)
				continue
			}
			jobs = append(jobs, job{site: entry.Site, device: device})
		}
	}
	stats.Devices = len(jobs)

	var changed, failed int64
	for offset := 0; offset < len(jobs); offset += p.batchSize {
		if offset > 0 && p.batchPause > 0 {
			if err := sleep(ctx, p.batchPause); err != nil {
				break
			}
		}
		end := offset + p.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		var group errgroup.Group
		for _, j := range jobs[offset:end] {
			j := j
			group.Go(func() error {
				outcome, err := p.processor.Process(ctx, j.site, j.device)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					p.logger.Error("device classification failed",
						zap.String("device_id", j.device.ID),
						zap.String("site_id", j.device.SiteID),
						zap.Error(err),
					)
					return nil
				}
				if outcome.Changed {
					atomic.AddInt64(&changed, 1)
				}
				return nil
			})
		}
		_ = group.Wait()
	}
	stats.Changed = int(changed)
	stats.Errors = int(failed)

	result := metrics.ResultSuccess
	if ctx.Err() != nil {
		result = metrics.ResultError
	}
	metrics.ObservePollCycle(result, time.Since(start))
	p.logger.Info("poll cycle finished",
		zap.Int("devices", stats.Devices),
		zap.Int("changed", stats.Changed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", time.Since(start)),
	)
	return stats, ctx.Err()
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
