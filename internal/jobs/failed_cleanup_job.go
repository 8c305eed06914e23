package job

import (
	"context"
	"log/slog"
	"time"
)

type failedPosts interface {
	CountFailedBefore(ctx context.Context, before time.Time) (int64, error)
}

// FailedCleanupJob reports posts that have stayed FAILED past the retention
// period. Nothing is deleted.
type FailedCleanupJob struct {
	posts     failedPosts
	retention time.Duration
	now       func() time.Time
}

func NewFailedCleanupJob(posts failedPosts, retention time.Duration) *FailedCleanupJob {
	return &FailedCleanupJob{posts: posts, retention: retention, now: time.Now}
}

func (j *FailedCleanupJob) ReportFailedPosts() {
	j.run(context.Background())
}

func (j *FailedCleanupJob) run(ctx context.Context) int64 {
	n, err := j.posts.CountFailedBefore(ctx, j.now().Add(-j.retention))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}
	if n > 0 {
		slog.Info("stale failed posts", "count", n, "older_than", j.retention)
	}
	return n
}
