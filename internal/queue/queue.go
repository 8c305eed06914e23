package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskDeleter interface {
	DeleteTask(queue, id string) error
}

// AsynqScheduler registers publication runs as asynq tasks. Task ids are
// generated here so they can be stored on the post before the task fires.
type AsynqScheduler struct {
	client    enqueuer
	inspector taskDeleter
	queue     string
	maxRetry  int
}

func NewAsynqScheduler(client *asynq.Client, inspector *asynq.Inspector, queue string, maxRetry int) *AsynqScheduler {
	return &AsynqScheduler{
		client:    client,
		inspector: inspector,
		queue:     queue,
		maxRetry:  maxRetry,
	}
}

func (s *AsynqScheduler) ScheduleAt(ctx context.Context, at time.Time, payload scheduler.PublishPayload) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	task := asynq.NewTask(scheduler.TypePublishPost, taskPayload)
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(id),
		asynq.Queue(s.queue),
		asynq.MaxRetry(s.maxRetry),
	)
	if err != nil {
		return "", fmt.Errorf("enqueueing publish task for post %d: %w", payload.PostID, err)
	}

	slog.Info("task scheduled", "task_id", info.ID, "post_id", payload.PostID, "attempt", payload.Attempt, "force", payload.Force, "at", at)
	return info.ID, nil
}

// Cancel deletes a pending task. A task that already ran, or never
// existed, is not an error.
func (s *AsynqScheduler) Cancel(ctx context.Context, taskID string) error {
	err := s.inspector.DeleteTask(s.queue, taskID)
	switch {
	case err == nil:
		slog.Info("task cancelled", "task_id", taskID)
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil
	default:
		return fmt.Errorf("cancelling task %s: %w", taskID, err)
	}
}
