package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
)

// PeriodicRegistrar is satisfied by *asynq.Scheduler.
type PeriodicRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// QueueInspector is satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Intervals configures the periodic tasks. Zero disables a task.
type Intervals struct {
	Poll     time.Duration
	Reminder time.Duration
	Outbox   time.Duration
}

// RegisterPeriodic registers the poll, reminder and outbox-scan tasks. Each
// periodic task is unique for its own interval so a slow run is not stacked.
func RegisterPeriodic(registrar PeriodicRegistrar, queue string, intervals Intervals) ([]string, error) {
	if registrar == nil {
		return nil, errors.New("jobs: nil registrar")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	entries := []struct {
		taskType string
		every    time.Duration
	}{
		{TypeStatusPoll, intervals.Poll},
		{TypeReminderSweep, intervals.Reminder},
		{TypeOutboxScan, intervals.Outbox},
	}
	var ids []string
	for _, entry := range entries {
		if entry.every <= 0 {
			continue
		}
		opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(0)}
		if entry.every >= time.Second {
			opts = append(opts, asynq.Unique(entry.every))
		}
		id, err := registrar.Register(everySpec(entry.every), asynq.NewTask(entry.taskType, nil), opts...)
		if err != nil {
			return ids, fmt.Errorf("jobs: register %s: %w", entry.taskType, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// MonitorQueue publishes the queue size until ctx is done.
func MonitorQueue(ctx context.Context, inspector QueueInspector, queue string, every time.Duration) {
	if inspector == nil {
		return
	}
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := inspector.GetQueueInfo(queue)
			if err != nil {
				continue
			}
			metrics.SetQueueDepth(queue, info.Size)
		}
	}
}
