package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Handlers are the task bodies. A nil handler leaves its task type unregistered.
type Handlers struct {
	Deadline func(ctx context.Context, payload DeadlinePayload) error
	Poll     func(ctx context.Context) error
	Reminder func(ctx context.Context) error
	Outbox   func(ctx context.Context) error
}

// NewServeMux registers the handlers on an asynq mux. Malformed deadline
// payloads are logged and skipped with asynq.SkipRetry.
func NewServeMux(h Handlers, logger *zap.Logger) *asynq.ServeMux {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := asynq.NewServeMux()
	if h.Deadline != nil {
		mux.HandleFunc(TypeIncidentDeadline, func(ctx context.Context, t *asynq.Task) error {
			payload, err := ParseDeadlinePayload(t.Payload())
			if err != nil {
				logger.Error("invalid deadline payload", zap.Error(err))
				return asynq.SkipRetry
			}
			return h.Deadline(ctx, payload)
		})
	}
	register := func(taskType string, fn func(ctx context.Context) error) {
		if fn == nil {
			return
		}
		mux.HandleFunc(taskType, func(ctx context.Context, _ *asynq.Task) error {
			start := time.Now()
			err := fn(ctx)
			if err != nil {
				logger.Error("periodic task failed", zap.String("task", taskType), zap.Error(err))
				return err
			}
			logger.Debug("periodic task finished", zap.String("task", taskType), zap.Duration("duration", time.Since(start)))
			return nil
		})
	}
	register(TypeStatusPoll, h.Poll)
	register(TypeReminderSweep, h.Reminder)
	register(TypeOutboxScan, h.Outbox)
	return mux
}
