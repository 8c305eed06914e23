package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
)

// PublishedResult is written together with the PUBLISHED status.
type PublishedResult struct {
	PlatformPostID string
	PublishedURL   string
	PublishedAt    time.Time
}

// PostRepository guards every status change with a compare-and-set on the
// current status; methods taking from report false when the row was not in
// one of those statuses.
type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByUserID(ctx context.Context, userID int64, status models.PostStatus) ([]*models.Post, error)
	ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.Post, error)
	Update(ctx context.Context, tx *sql.Tx, post *models.Post, from []models.PostStatus) (bool, error)
	CompareAndSetStatus(ctx context.Context, id int64, from []models.PostStatus, to models.PostStatus) (bool, error)
	Schedule(ctx context.Context, id int64, from []models.PostStatus, at time.Time, taskID string) (bool, error)
	MarkFailed(ctx context.Context, id int64, from []models.PostStatus, message string) (bool, error)
	MarkPublished(ctx context.Context, id, accountID int64, res PublishedResult) (bool, error)
	CountByStatus(ctx context.Context, userID int64) (map[models.PostStatus]int64, error)
	CountByPlatform(ctx context.Context, userID int64) (map[platform.Kind]int64, error)
	CountFailedBefore(ctx context.Context, before time.Time) (int64, error)
	FailStalePublishing(ctx context.Context, before time.Time, message string) ([]int64, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, social_account_id, title, content, scheduled_time, status,
	image_url, video_url, platform_configs, scheduled_task_id, platform_post_id,
	published_url, error_message, created_at, updated_at, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post    models.Post
		configs []byte
	)
	err := row.Scan(&post.ID, &post.UserID, &post.SocialAccountID, &post.Title, &post.Content,
		&post.ScheduledTime, &post.Status, &post.ImageURL, &post.VideoURL, &configs,
		&post.ScheduledTaskID, &post.PlatformPostID, &post.PublishedURL, &post.ErrorMessage,
		&post.CreatedAt, &post.UpdatedAt, &post.PublishedAt)
	if err != nil {
		return nil, err
	}
	if len(configs) > 0 {
		if err := json.Unmarshal(configs, &post.PlatformConfigs); err != nil {
			return nil, err
		}
	}
	return &post, nil
}

func marshalConfigs(configs map[string]map[string]any) ([]byte, error) {
	if configs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(configs)
}

func statusArray(statuses []models.PostStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	configs, err := marshalConfigs(post.PlatformConfigs)
	if err != nil {
		return 0, err
	}
	if post.Status == "" {
		post.Status = models.PostStatusDraft
	}

	query := `
		INSERT INTO posts (user_id, social_account_id, title, content, scheduled_time, status,
			image_url, video_url, platform_configs, scheduled_task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	args := []any{post.UserID, post.SocialAccountID, post.Title, post.Content, post.ScheduledTime,
		post.Status, post.ImageURL, post.VideoURL, configs, post.ScheduledTaskID}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64, status models.PostStatus) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY COALESCE(scheduled_time, created_at) DESC`

	return r.list(ctx, query, args...)
}

func (r *postRepository) ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 ORDER BY scheduled_time LIMIT $2`
	return r.list(ctx, query, status, limit)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, tx *sql.Tx, post *models.Post, from []models.PostStatus) (bool, error) {
	configs, err := marshalConfigs(post.PlatformConfigs)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE posts
		SET social_account_id = $3,
			title = $4,
			content = $5,
			scheduled_time = $6,
			status = $7,
			image_url = $8,
			video_url = $9,
			platform_configs = $10,
			scheduled_task_id = $11,
			error_message = $12,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	args := []any{post.ID, statusArray(from), post.SocialAccountID, post.Title, post.Content,
		post.ScheduledTime, post.Status, post.ImageURL, post.VideoURL, configs,
		post.ScheduledTaskID, post.ErrorMessage}

	var result sql.Result
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, args...)
	} else {
		result, err = r.db.ExecContext(ctx, query, args...)
	}
	return affectedOne(result, err)
}

func (r *postRepository) CompareAndSetStatus(ctx context.Context, id int64, from []models.PostStatus, to models.PostStatus) (bool, error) {
	if to == models.PostStatusScheduled {
		return false, errors.New("use Schedule to enter the scheduled status")
	}

	query := `
		UPDATE posts
		SET status = $3,
			scheduled_task_id = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, statusArray(from), to))
}

func (r *postRepository) Schedule(ctx context.Context, id int64, from []models.PostStatus, at time.Time, taskID string) (bool, error) {
	query := `
		UPDATE posts
		SET status = 'scheduled',
			scheduled_time = $3,
			scheduled_task_id = $4,
			error_message = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, statusArray(from), at, taskID))
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, from []models.PostStatus, message string) (bool, error) {
	query := `
		UPDATE posts
		SET status = 'failed',
			scheduled_task_id = NULL,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	return affectedOne(r.db.ExecContext(ctx, query, id, statusArray(from), models.TruncateError(message)))
}

// MarkPublished commits the PUBLISHED status and bumps the account counters
// in one transaction.
func (r *postRepository) MarkPublished(ctx context.Context, id, accountID int64, res PublishedResult) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	defer tx.Rollback()

	postQuery := `
		UPDATE posts
		SET status = 'published',
			scheduled_task_id = NULL,
			error_message = NULL,
			platform_post_id = $2,
			published_url = $3,
			published_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = 'publishing'
	`
	ok, err := affectedOne(tx.ExecContext(ctx, postQuery, id, res.PlatformPostID, res.PublishedURL, res.PublishedAt))
	if err != nil || !ok {
		return false, err
	}

	accountQuery := `
		UPDATE social_accounts
		SET posts_count = posts_count + 1,
			last_used_at = $2,
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, accountQuery, accountID, res.PublishedAt); err != nil {
		slog.Info(err.Error())
		return false, err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

func (r *postRepository) CountByStatus(ctx context.Context, userID int64) (map[models.PostStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM posts WHERE user_id = $1 GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.PostStatus]int64, len(models.PostStatuses))
	for _, s := range models.PostStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status models.PostStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *postRepository) CountByPlatform(ctx context.Context, userID int64) (map[platform.Kind]int64, error) {
	query := `
		SELECT sa.platform, COUNT(*)
		FROM posts p
		JOIN social_accounts sa ON sa.id = p.social_account_id
		WHERE p.user_id = $1
		GROUP BY sa.platform
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	counts := make(map[platform.Kind]int64)
	for rows.Next() {
		var (
			kind platform.Kind
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func (r *postRepository) CountFailedBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE status = 'failed' AND updated_at < $1`, before).Scan(&n)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

// FailStalePublishing moves posts that entered PUBLISHING before the cutoff
// to FAILED and returns their ids.
func (r *postRepository) FailStalePublishing(ctx context.Context, before time.Time, message string) ([]int64, error) {
	query := `
		UPDATE posts
		SET status = 'failed',
			scheduled_task_id = NULL,
			error_message = $2,
			updated_at = NOW()
		WHERE status = 'publishing' AND updated_at < $1
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, before, models.TruncateError(message))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func affectedOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
