package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	"github.com/maheshrc27/nextpost/internal/service"
)

type Worker struct {
	publications service.PublicationService
}

func NewWorker(publications service.PublicationService) *Worker {
	return &Worker{publications: publications}
}

// HandlePublishPostTask runs one publication. Domain outcomes, including
// failed posts, complete the task; only infrastructure errors are returned
// so asynq retries them.
func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload scheduler.PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("decoding %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	out, err := w.publications.Publish(ctx, service.PublishRequest{
		PostID:  payload.PostID,
		Force:   payload.Force,
		Attempt: payload.Attempt,
		TaskID:  taskID,
	})
	if err != nil {
		var unsupported *publisher.UnsupportedPlatformError
		if errors.Is(err, service.ErrNotFound) || errors.As(err, &unsupported) {
			slog.Warn("dropping publish task", "task_id", taskID, "post_id", payload.PostID, "error", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		slog.Error("publish task failed", "task_id", taskID, "post_id", payload.PostID, "error", err)
		return err
	}

	slog.Info("publish task done",
		"task_id", taskID,
		"post_id", payload.PostID,
		"attempt", payload.Attempt,
		"outcome", out.Kind,
		"reason", out.Reason,
	)
	return nil
}

func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(scheduler.TypePublishPost, w.HandlePublishPostTask)
	return mux
}

// RetryDelayFunc spaces infrastructure retries with the same linear backoff
// as publish retries.
func RetryDelayFunc(policy scheduler.RetryPolicy) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return policy.Delay(n + 1)
	}
}

type ServerConfig struct {
	Queue       string
	Concurrency int
	Retry       scheduler.RetryPolicy
}

func NewServer(redisConn asynq.RedisConnOpt, c ServerConfig) *asynq.Server {
	return asynq.NewServer(redisConn, asynq.Config{
		Concurrency:    c.Concurrency,
		Queues:         map[string]int{c.Queue: 1},
		RetryDelayFunc: RetryDelayFunc(c.Retry),
		Logger:         slogLogger{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			slog.Error("task errored", "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
		}),
	})
}

// slogLogger routes asynq's own logging through slog.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...)) }
func (slogLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...)) }
func (slogLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...)) }
func (slogLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...)) }
func (slogLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...))
	os.Exit(1)
}
