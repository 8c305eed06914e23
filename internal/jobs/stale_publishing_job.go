package job

import (
	"context"
	"log/slog"
	"time"
)

const staleMessage = "publication did not finish, the worker stopped while the post was publishing"

type stalePosts interface {
	FailStalePublishing(ctx context.Context, before time.Time, message string) ([]int64, error)
}

// StalePublishingJob fails posts left in PUBLISHING by a worker that died
// mid-run. staleAfter must exceed the publish deadline so live runs are
// never touched.
type StalePublishingJob struct {
	posts      stalePosts
	staleAfter time.Duration
	now        func() time.Time
}

func NewStalePublishingJob(posts stalePosts, staleAfter time.Duration) *StalePublishingJob {
	return &StalePublishingJob{posts: posts, staleAfter: staleAfter, now: time.Now}
}

func (j *StalePublishingJob) RecoverStalePosts() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	j.run(ctx)
}

func (j *StalePublishingJob) run(ctx context.Context) []int64 {
	ids, err := j.posts.FailStalePublishing(ctx, j.now().Add(-j.staleAfter), staleMessage)
	if err != nil {
		slog.Info(err.Error())
		return nil
	}
	if len(ids) > 0 {
		slog.Warn("stale publishing posts failed", "count", len(ids), "post_ids", ids, "older_than", j.staleAfter)
	}
	return ids
}
