package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/repository"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	"github.com/maheshrc27/nextpost/internal/transfer"
	"github.com/maheshrc27/nextpost/internal/validation"
)

const (
	msgContentEmpty  = "content cannot be empty"
	msgScheduledPast = "scheduled time must be in the future"
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error)
	UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.Post, error)
	SchedulePost(ctx context.Context, userID, postID int64, at time.Time) (*models.Post, error)
	CancelSchedule(ctx context.Context, userID, postID int64) error
	CancelPost(ctx context.Context, userID, postID int64) error
	PublishNow(ctx context.Context, userID, postID int64) (string, error)
	DuplicatePost(ctx context.Context, userID, postID int64) (*models.Post, error)
	ValidatePost(ctx context.Context, userID, postID int64) (*validation.Report, error)
	ValidateDraft(ctx context.Context, userID int64, dv *transfer.DraftValidation) (*validation.Report, error)
	PostInfo(ctx context.Context, userID, postID int64) (*models.Post, error)
	List(ctx context.Context, userID int64, status models.PostStatus) ([]*models.Post, error)
	ListByAccount(ctx context.Context, userID, accountID int64, status models.PostStatus) ([]*models.Post, error)
	ValidateScheduled(ctx context.Context, userID int64) ([]PostReport, error)
	Attempts(ctx context.Context, userID, postID int64) ([]*models.PublishAttempt, error)
	Remove(ctx context.Context, userID, postID int64) error
	Stats(ctx context.Context, userID int64) (*transfer.PostStats, error)
}

type postService struct {
	tx    repository.Transactor
	pr    repository.PostRepository
	pm    repository.PostMediaRepository
	ma    repository.MediaAssetRepository
	ac    repository.SocialAccountRepository
	pa    repository.PublishAttemptRepository
	sched scheduler.Scheduler
	now   func() time.Time
}

func NewPostService(
	tx repository.Transactor,
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	pa repository.PublishAttemptRepository,
	sched scheduler.Scheduler) PostService {
	return &postService{
		tx:    tx,
		pr:    pr,
		pm:    pm,
		ma:    ma,
		ac:    ac,
		pa:    pa,
		sched: sched,
		now:   nowUTC,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: post creation data is nil", ErrInvalidInput)
	}
	if strings.TrimSpace(pc.Content) == "" {
		return nil, &ValidationError{Violations: []string{msgContentEmpty}}
	}

	account, err := s.ownedAccount(ctx, userID, pc.SocialAccountID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.ownedMedia(ctx, userID, transfer.AttachedMedia(pc.Media, pc.MediaIDs))
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:          userID,
		SocialAccountID: pc.SocialAccountID,
		Title:           strings.TrimSpace(pc.Title),
		Content:         pc.Content,
		ScheduledTime:   pc.ScheduledTime,
		Status:          models.PostStatusDraft,
		ImageURL:        pc.ImageURL,
		VideoURL:        pc.VideoURL,
		PlatformConfigs: pc.PlatformConfigs,
		Media:           attachments,
	}
	if post.ScheduledTime != nil {
		if err := s.checkSchedulable(post, account, *post.ScheduledTime); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		id, err := s.pr.Create(ctx, tx, post)
		if err != nil {
			return fmt.Errorf("error creating post: %w", err)
		}
		post.ID = id
		return s.attach(ctx, tx, post.ID, post.Media)
	})
	if err != nil {
		return nil, err
	}

	if post.ScheduledTime != nil {
		if _, err := s.arm(ctx, post.ID, *post.ScheduledTime, false, []models.PostStatus{models.PostStatusDraft}); err != nil {
			return nil, err
		}
	}

	slog.Info("post created", "post_id", post.ID, "user_id", userID, "scheduled", post.ScheduledTime != nil)
	return s.load(ctx, post.ID)
}

// UpdatePost replaces the editable fields. The post drops back to DRAFT,
// which retires any outstanding task, and is armed again when a scheduled
// time is given.
func (s *postService) UpdatePost(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) (*models.Post, error) {
	if pu == nil {
		return nil, fmt.Errorf("%w: post update data is nil", ErrInvalidInput)
	}
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if !post.Status.Editable() {
		return nil, fmt.Errorf("cannot edit a %s post: %w", post.Status, ErrInvalidTransition)
	}
	if strings.TrimSpace(pu.Content) == "" {
		return nil, &ValidationError{Violations: []string{msgContentEmpty}}
	}

	account, err := s.ownedAccount(ctx, userID, pu.SocialAccountID)
	if err != nil {
		return nil, err
	}
	media := transfer.AttachedMedia(pu.Media, pu.MediaIDs)
	if media != nil {
		if post.Media, err = s.ownedMedia(ctx, userID, media); err != nil {
			return nil, err
		}
	} else if post.Media, err = s.pm.ListByPostID(ctx, post.ID); err != nil {
		return nil, fmt.Errorf("error loading media: %w", err)
	}

	from := post.Status
	oldTaskID := post.ScheduledTaskID

	post.Title = strings.TrimSpace(pu.Title)
	post.Content = pu.Content
	post.SocialAccountID = pu.SocialAccountID
	post.ScheduledTime = pu.ScheduledTime
	post.ImageURL = pu.ImageURL
	post.VideoURL = pu.VideoURL
	post.PlatformConfigs = pu.PlatformConfigs
	post.Status = models.PostStatusDraft
	post.ScheduledTaskID = nil

	if post.ScheduledTime != nil {
		if err := s.checkSchedulable(post, account, *post.ScheduledTime); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.pr.Update(ctx, tx, post, []models.PostStatus{from})
		if err != nil {
			return fmt.Errorf("error updating post: %w", err)
		}
		if !ok {
			return fmt.Errorf("post %d changed status concurrently: %w", post.ID, ErrInvalidTransition)
		}
		if media == nil {
			return nil
		}
		if err := s.pm.RemoveByPostID(ctx, tx, post.ID); err != nil {
			return fmt.Errorf("error removing media: %w", err)
		}
		return s.attach(ctx, tx, post.ID, post.Media)
	})
	if err != nil {
		return nil, err
	}

	s.cancelTask(ctx, post.ID, oldTaskID)

	if post.ScheduledTime != nil {
		if _, err := s.arm(ctx, post.ID, *post.ScheduledTime, false, []models.PostStatus{models.PostStatusDraft}); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, post.ID)
}

func (s *postService) SchedulePost(ctx context.Context, userID, postID int64, at time.Time) (*models.Post, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusFailed {
		return nil, fmt.Errorf("cannot schedule a %s post: %w", post.Status, ErrInvalidTransition)
	}

	account, err := s.ownedAccount(ctx, userID, post.SocialAccountID)
	if err != nil {
		return nil, err
	}
	if post.Media, err = s.pm.ListByPostID(ctx, post.ID); err != nil {
		return nil, fmt.Errorf("error loading media: %w", err)
	}
	if err := s.checkSchedulable(post, account, at); err != nil {
		return nil, err
	}

	if _, err := s.arm(ctx, post.ID, at, false, []models.PostStatus{models.PostStatusDraft, models.PostStatusFailed}); err != nil {
		return nil, err
	}
	return s.load(ctx, post.ID)
}

func (s *postService) CancelSchedule(ctx context.Context, userID, postID int64) error {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusScheduled {
		return fmt.Errorf("post %d is not scheduled: %w", post.ID, ErrInvalidTransition)
	}

	ok, err := s.pr.CompareAndSetStatus(ctx, post.ID, []models.PostStatus{models.PostStatusScheduled}, models.PostStatusDraft)
	if err != nil {
		return fmt.Errorf("error cancelling schedule: %w", err)
	}
	if !ok {
		return fmt.Errorf("post %d changed status concurrently: %w", post.ID, ErrInvalidTransition)
	}

	s.cancelTask(ctx, post.ID, post.ScheduledTaskID)
	return nil
}

func (s *postService) CancelPost(ctx context.Context, userID, postID int64) error {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	if post.Status.Terminal() {
		return fmt.Errorf("post %d is already %s: %w", post.ID, post.Status, ErrInvalidTransition)
	}

	from := []models.PostStatus{
		models.PostStatusDraft,
		models.PostStatusScheduled,
		models.PostStatusPublishing,
		models.PostStatusFailed,
	}
	ok, err := s.pr.CompareAndSetStatus(ctx, post.ID, from, models.PostStatusCancelled)
	if err != nil {
		return fmt.Errorf("error cancelling post: %w", err)
	}
	if !ok {
		return fmt.Errorf("post %d changed status concurrently: %w", post.ID, ErrInvalidTransition)
	}

	s.cancelTask(ctx, post.ID, post.ScheduledTaskID)
	return nil
}

// PublishNow re-arms the post at the current time with a forced task and
// retires the task it replaces.
func (s *postService) PublishNow(ctx context.Context, userID, postID int64) (string, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return "", err
	}
	if !post.Status.Editable() {
		return "", fmt.Errorf("cannot publish a %s post: %w", post.Status, ErrInvalidTransition)
	}

	account, err := s.ownedAccount(ctx, userID, post.SocialAccountID)
	if err != nil {
		return "", err
	}
	if post.Media, err = s.pm.ListByPostID(ctx, post.ID); err != nil {
		return "", fmt.Errorf("error loading media: %w", err)
	}
	if violations := validation.Validate(post, account); len(violations) > 0 {
		return "", &ValidationError{Violations: violations}
	}

	at := s.now()
	taskID, err := s.sched.ScheduleAt(ctx, at, scheduler.PublishPayload{PostID: post.ID, Force: true, Attempt: 1})
	if err != nil {
		return "", fmt.Errorf("error scheduling post %d: %w", post.ID, err)
	}

	from := []models.PostStatus{models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed}
	ok, err := s.pr.Schedule(ctx, post.ID, from, at, taskID)
	if err != nil {
		s.cancelTask(ctx, post.ID, &taskID)
		return "", fmt.Errorf("error scheduling post %d: %w", post.ID, err)
	}
	if !ok && !s.claimedBy(ctx, post.ID) {
		s.cancelTask(ctx, post.ID, &taskID)
		return "", fmt.Errorf("post %d changed status concurrently: %w", post.ID, ErrInvalidTransition)
	}

	s.cancelTask(ctx, post.ID, post.ScheduledTaskID)
	slog.Info("post queued for immediate publication", "post_id", post.ID, "task_id", taskID)
	return taskID, nil
}

func (s *postService) DuplicatePost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	original, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	media, err := s.pm.ListByPostID(ctx, original.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading media: %w", err)
	}

	copied := &models.Post{
		UserID:          original.UserID,
		SocialAccountID: original.SocialAccountID,
		Content:         original.Content,
		Status:          models.PostStatusDraft,
		ImageURL:        original.ImageURL,
		VideoURL:        original.VideoURL,
		PlatformConfigs: original.PlatformConfigs,
		Media:           media,
	}
	if original.Title != "" {
		copied.Title = "Copy of " + original.Title
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		id, err := s.pr.Create(ctx, tx, copied)
		if err != nil {
			return fmt.Errorf("error creating post: %w", err)
		}
		copied.ID = id
		return s.attach(ctx, tx, copied.ID, copied.Media)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, copied.ID)
}

func (s *postService) ValidatePost(ctx context.Context, userID, postID int64) (*validation.Report, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}

	var account *models.SocialAccount
	if post.SocialAccountID != nil {
		if account, err = s.ac.GetByID(ctx, *post.SocialAccountID); err != nil {
			return nil, fmt.Errorf("error loading account: %w", err)
		}
	}
	report := validation.ForPost(post, account)
	return &report, nil
}

func (s *postService) ValidateDraft(ctx context.Context, userID int64, dv *transfer.DraftValidation) (*validation.Report, error) {
	if dv == nil {
		return nil, fmt.Errorf("%w: validation data is nil", ErrInvalidInput)
	}

	summary := validation.MediaSummary{Images: max(dv.ImageCount, 0), Videos: max(dv.VideoCount, 0)}
	if len(dv.MediaIDs) > 0 {
		attachments, err := s.ownedMedia(ctx, userID, transfer.AttachedMedia(nil, dv.MediaIDs))
		if err != nil {
			return nil, err
		}
		counted := validation.Summarize(&models.Post{Media: attachments})
		summary.Images += counted.Images
		summary.Videos += counted.Videos
	}

	kind, ok := platform.ParseKind(dv.Platform)
	if !ok {
		kind = platform.Kind(dv.Platform)
	}
	report := validation.Draft(dv.Content, kind, summary)
	return &report, nil
}

func (s *postService) PostInfo(ctx context.Context, userID, postID int64) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64, status models.PostStatus) ([]*models.Post, error) {
	posts, err := s.pr.ListByUserID(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

// ListByAccount lists the user's posts targeting one of their accounts.
func (s *postService) ListByAccount(ctx context.Context, userID, accountID int64, status models.PostStatus) ([]*models.Post, error) {
	if _, err := s.ownedAccount(ctx, userID, &accountID); err != nil {
		return nil, err
	}
	posts, err := s.pr.ListByUserID(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if p.SocialAccountID != nil && *p.SocialAccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

// PostReport is the validation result of one stored post.
type PostReport struct {
	PostID int64 `json:"post_id"`
	validation.Report
}

// ValidateScheduled checks every scheduled post of the user against its
// account's current rules.
func (s *postService) ValidateScheduled(ctx context.Context, userID int64) ([]PostReport, error) {
	posts, err := s.pr.ListByUserID(ctx, userID, models.PostStatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}

	accounts := map[int64]*models.SocialAccount{}
	reports := make([]PostReport, 0, len(posts))
	for _, post := range posts {
		var account *models.SocialAccount
		if post.SocialAccountID != nil {
			var ok bool
			if account, ok = accounts[*post.SocialAccountID]; !ok {
				if account, err = s.ac.GetByID(ctx, *post.SocialAccountID); err != nil {
					return nil, fmt.Errorf("error loading account: %w", err)
				}
				accounts[*post.SocialAccountID] = account
			}
		}
		if post.Media, err = s.pm.ListByPostID(ctx, post.ID); err != nil {
			return nil, fmt.Errorf("error loading media: %w", err)
		}
		reports = append(reports, PostReport{PostID: post.ID, Report: validation.ForPost(post, account)})
	}
	return reports, nil
}

func (s *postService) Attempts(ctx context.Context, userID, postID int64) ([]*models.PublishAttempt, error) {
	if _, err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}
	attempts, err := s.pa.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error listing attempts: %w", err)
	}
	return attempts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublishing {
		return fmt.Errorf("post %d is being published: %w", post.ID, ErrInvalidTransition)
	}

	s.cancelTask(ctx, post.ID, post.ScheduledTaskID)
	if err := s.pr.Remove(ctx, post.ID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

func (s *postService) Stats(ctx context.Context, userID int64) (*transfer.PostStats, error) {
	byStatus, err := s.pr.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting posts: %w", err)
	}
	byPlatform, err := s.pr.CountByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting posts: %w", err)
	}

	stats := &transfer.PostStats{ByStatus: byStatus, ByPlatform: byPlatform}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// arm registers a task for at and moves the post to SCHEDULED from one of
// the given statuses. The task is withdrawn when the move is refused.
func (s *postService) arm(ctx context.Context, postID int64, at time.Time, force bool, from []models.PostStatus) (string, error) {
	taskID, err := s.sched.ScheduleAt(ctx, at, scheduler.PublishPayload{PostID: postID, Force: force, Attempt: 1})
	if err != nil {
		return "", fmt.Errorf("error scheduling post %d: %w", postID, err)
	}

	ok, err := s.pr.Schedule(ctx, postID, from, at, taskID)
	if err != nil || !ok {
		s.cancelTask(ctx, postID, &taskID)
		if err != nil {
			return "", fmt.Errorf("error scheduling post %d: %w", postID, err)
		}
		return "", fmt.Errorf("post %d changed status concurrently: %w", postID, ErrInvalidTransition)
	}
	return taskID, nil
}

// claimedBy reports whether a forced run has already moved the post past
// SCHEDULED.
func (s *postService) claimedBy(ctx context.Context, postID int64) bool {
	current, err := s.pr.GetByID(ctx, postID)
	if err != nil || current == nil {
		return false
	}
	return current.Status == models.PostStatusPublishing || current.Status == models.PostStatusPublished
}

func (s *postService) cancelTask(ctx context.Context, postID int64, taskID *string) {
	if taskID == nil || *taskID == "" {
		return
	}
	if err := s.sched.Cancel(ctx, *taskID); err != nil {
		slog.Error("error cancelling task", "post_id", postID, "task_id", *taskID, "error", err)
	}
}

func (s *postService) checkSchedulable(post *models.Post, account *models.SocialAccount, at time.Time) error {
	if !at.After(s.now()) {
		return &ValidationError{Violations: []string{msgScheduledPast}}
	}
	if violations := validation.Validate(post, account); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (s *postService) attach(ctx context.Context, tx *sql.Tx, postID int64, media []models.MediaAttachment) error {
	for i := range media {
		media[i].PostID = postID
		if err := s.pm.Create(ctx, tx, &media[i]); err != nil {
			return fmt.Errorf("error attaching media: %w", err)
		}
	}
	return nil
}

// owned returns the post when it belongs to userID. A foreign post reads as
// missing.
func (s *postService) owned(ctx context.Context, userID, postID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error loading post: %w", err)
	}
	if post == nil || post.UserID != userID {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return post, nil
}

func (s *postService) load(ctx context.Context, postID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error loading post: %w", err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	if post.Media, err = s.pm.ListByPostID(ctx, post.ID); err != nil {
		return nil, fmt.Errorf("error loading media: %w", err)
	}
	return post, nil
}

func (s *postService) ownedAccount(ctx context.Context, userID int64, accountID *int64) (*models.SocialAccount, error) {
	if accountID == nil {
		return nil, nil
	}
	account, err := s.ac.GetByID(ctx, *accountID)
	if err != nil {
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	if account == nil || account.UserID != userID {
		return nil, fmt.Errorf("social account %d: %w", *accountID, ErrNotFound)
	}
	return account, nil
}

// ownedMedia resolves assets into attachments, keeping the given order and
// each attachment's overrides.
func (s *postService) ownedMedia(ctx context.Context, userID int64, media []transfer.MediaInput) ([]models.MediaAttachment, error) {
	if len(media) == 0 {
		return []models.MediaAttachment{}, nil
	}

	ids := make([]int64, 0, len(media))
	seen := make(map[int64]bool, len(media))
	for _, m := range media {
		if seen[m.AssetID] {
			return nil, fmt.Errorf("%w: media %d attached twice", ErrInvalidInput, m.AssetID)
		}
		seen[m.AssetID] = true
		ids = append(ids, m.AssetID)
	}

	assets, err := s.ma.ListByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading media: %w", err)
	}
	byID := make(map[int64]*models.MediaAsset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	attachments := make([]models.MediaAttachment, 0, len(media))
	for i, m := range media {
		asset, ok := byID[m.AssetID]
		if !ok {
			return nil, fmt.Errorf("media %d: %w", m.AssetID, ErrNotFound)
		}
		attachments = append(attachments, models.MediaAttachment{
			AssetID:      asset.ID,
			Order:        i,
			Overrides:    maps.Clone(m.Overrides),
			Kind:         asset.Kind,
			URL:          asset.FileURL,
			ThumbnailURL: asset.ThumbnailURL,
		})
	}
	return attachments, nil
}
