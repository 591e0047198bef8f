package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is satisfied by *asynq.Inspector.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Scheduler arms and cancels one-shot incident timers.
type Scheduler struct {
	client    Enqueuer
	inspector TaskInspector
	queue     string
}

// NewScheduler constructs a scheduler on queue.
func NewScheduler(client Enqueuer, inspector TaskInspector, queue string) (*Scheduler, error) {
	if client == nil {
		return nil, errors.New("jobs: nil client")
	}
	if inspector == nil {
		return nil, errors.New("jobs: nil inspector")
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	return &Scheduler{client: client, inspector: inspector, queue: queue}, nil
}

// Schedule arms a timer firing at runAt and returns its handle. Scheduling the
// same (incident, recipient) twice keeps the first timer.
func (s *Scheduler) Schedule(ctx context.Context, runAt time.Time, payload DeadlinePayload) (string, error) {
	if s == nil {
		return "", errors.New("jobs: nil scheduler")
	}
	task, err := NewDeadlineTask(payload)
	if err != nil {
		return "", err
	}
	handle := payload.TaskID()
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(handle),
		asynq.ProcessAt(runAt),
		asynq.MaxRetry(0),
		asynq.Queue(s.queue),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", err
	}
	return handle, nil
}

// Cancel removes a pending timer. Unknown handles and a timer that is
// currently running are treated as already cancelled.
func (s *Scheduler) Cancel(_ context.Context, handle string) error {
	if s == nil {
		return errors.New("jobs: nil scheduler")
	}
	if handle == "" {
		return nil
	}
	info, err := s.inspector.GetTaskInfo(s.queue, handle)
	if err != nil {
		if isGone(err) {
			return nil
		}
		return err
	}
	if info != nil && (info.State == asynq.TaskStateActive || info.State == asynq.TaskStateCompleted) {
		return nil
	}
	if err := s.inspector.DeleteTask(s.queue, handle); err != nil && !isGone(err) {
		return err
	}
	return nil
}

func isGone(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}
