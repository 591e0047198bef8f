package eventing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

const defaultDispatchBatch = 50

// OutboxStore claims and settles outbox rows.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore keeps envelopes whose delivery failed.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord is a claimed outbox row.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// DispatchResult counts what one scan did.
type DispatchResult struct {
	Claimed      int
	Sent         int
	Failed       int
	DeadLettered int
}

// Dispatcher replays outbox rows onto the bus.
type Dispatcher struct {
	bus      Bus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
	logger   *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger used for dead-letter failures.
func WithDispatchLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher. dlq may be nil.
func NewDispatcher(bus Bus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) (*Dispatcher, error) {
	switch {
	case bus == nil:
		return nil, errors.New("eventing: nil bus")
	case outbox == nil:
		return nil, errors.New("eventing: nil outbox store")
	case registry == nil:
		return nil, errors.New("eventing: nil registry")
	}
	d := &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch claims up to limit pending rows and delivers each one.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	var result DispatchResult
	if d == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = defaultDispatchBatch
	}
	start := time.Now()
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0)
		return result, fmt.Errorf("eventing: claim outbox: %w", err)
	}
	result.Claimed = len(records)

	var errs []error
	for _, record := range records {
		event, err := d.registry.DecodePayload(record.Envelope)
		if err == nil {
			err = d.deliver(ctx, record, event)
		}
		if err != nil {
			if d.reject(ctx, record, err) {
				result.DeadLettered++
			}
			result.Failed++
			continue
		}
		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			errs = append(errs, fmt.Errorf("eventing: mark %s sent: %w", record.ID, err))
			result.Failed++
			continue
		}
		result.Sent++
	}

	outcome := metrics.ResultSuccess
	if result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed)
	return result, errors.Join(errs...)
}

// Deliver publishes a row the caller has just written, reusing the decoded
// event.
func (d *Dispatcher) Deliver(ctx context.Context, record OutboxRecord, event any) error {
	if d == nil {
		return errors.New("eventing: nil dispatcher")
	}
	if err := d.deliver(ctx, record, event); err != nil {
		d.reject(ctx, record, err)
		return err
	}
	return d.outbox.MarkSent(ctx, record.ID)
}

func (d *Dispatcher) deliver(ctx context.Context, record OutboxRecord, event any) error {
	return d.bus.Publish(WithEnvelope(ctx, record.Envelope), event)
}

// reject marks the row failed and copies it to the dead-letter store. It
// reports whether the dead-letter write succeeded.
func (d *Dispatcher) reject(ctx context.Context, record OutboxRecord, cause error) bool {
	log := d.logger.With(
		zap.String("outbox_id", record.ID),
		zap.String("event_id", record.Envelope.EventID),
		zap.String("event_type", record.Envelope.EventType),
	)
	log.Warn("event delivery failed", zap.Error(cause))
	if err := d.outbox.MarkFailed(ctx, record.ID); err != nil {
		log.Error("mark outbox row failed", zap.Error(err))
	}
	if d.dlq == nil {
		return false
	}
	if err := d.dlq.RecordFailure(ctx, record.Envelope, cause); err != nil {
		log.Error("dead-letter write failed", zap.Error(err))
		return false
	}
	return true
}
