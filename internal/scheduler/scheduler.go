// Package scheduler defines how the publication pipeline asks for deferred
// work. The asynq implementation lives in internal/queue.
package scheduler

import (
	"context"
	"time"
)

// TypePublishPost is the task type carrying a PublishPayload.
const TypePublishPost = "post:publish"

type PublishPayload struct {
	PostID  int64 `json:"post_id"`
	Force   bool  `json:"force"`
	Attempt int   `json:"attempt"`
}

// Scheduler registers deferred publication runs. Cancel of an unknown or
// already fired task must not fail.
type Scheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, payload PublishPayload) (string, error)
	Cancel(ctx context.Context, taskID string) error
}
