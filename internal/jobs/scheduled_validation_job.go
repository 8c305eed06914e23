package job

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/validation"
)

type scheduledPosts interface {
	ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.Post, error)
}

type postMedia interface {
	ListByPostID(ctx context.Context, postID int64) ([]models.MediaAttachment, error)
}

type accountLookup interface {
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
}

// ScheduledValidationJob re-checks scheduled posts so problems surface
// before the publish time. It only reports.
type ScheduledValidationJob struct {
	posts    scheduledPosts
	media    postMedia
	accounts accountLookup
	limit    int
}

func NewScheduledValidationJob(posts scheduledPosts, media postMedia, accounts accountLookup) *ScheduledValidationJob {
	return &ScheduledValidationJob{posts: posts, media: media, accounts: accounts, limit: 1000}
}

func (j *ScheduledValidationJob) ValidateScheduledPosts() {
	j.run(context.Background())
}

// run returns the violations found, keyed by post id.
func (j *ScheduledValidationJob) run(ctx context.Context) map[int64][]string {
	posts, err := j.posts.ListByStatus(ctx, models.PostStatusScheduled, j.limit)
	if err != nil {
		slog.Info(err.Error())
		return nil
	}

	invalid := map[int64][]string{}
	for _, post := range posts {
		var account *models.SocialAccount
		if post.SocialAccountID != nil {
			if account, err = j.accounts.GetByID(ctx, *post.SocialAccountID); err != nil {
				slog.Info(err.Error())
				continue
			}
		}
		if post.Media, err = j.media.ListByPostID(ctx, post.ID); err != nil {
			slog.Info(err.Error())
			continue
		}

		if violations := validation.Validate(post, account); len(violations) > 0 {
			invalid[post.ID] = violations
			slog.Warn("scheduled post will fail validation",
				"post_id", post.ID,
				"user_id", post.UserID,
				"violations", strings.Join(violations, "; "),
			)
		}
	}

	slog.Info("scheduled posts validated", "checked", len(posts), "invalid", len(invalid))
	return invalid
}
