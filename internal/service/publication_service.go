package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/events"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/internal/repository"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	"github.com/maheshrc27/nextpost/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type OutcomeKind string

const (
	OutcomePublished OutcomeKind = "published"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeDeferred  OutcomeKind = "deferred"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeRetrying  OutcomeKind = "retrying"
)

const (
	SkipNotScheduled = "not_scheduled"
	SkipTerminal     = "terminal"
	SkipConcurrent   = "concurrent"
	SkipSuperseded   = "superseded"
)

// PublishRequest asks for one publication run. TaskID is the queue task
// that triggered the run, empty for direct calls.
type PublishRequest struct {
	PostID  int64
	Force   bool
	Attempt int
	TaskID  string
}

type Outcome struct {
	Kind           OutcomeKind `json:"kind"`
	Reason         string      `json:"reason,omitempty"`
	PlatformPostID string      `json:"platform_post_id,omitempty"`
	PublishedURL   string      `json:"published_url,omitempty"`
	RetryAt        *time.Time  `json:"retry_at,omitempty"`
	TaskID         string      `json:"task_id,omitempty"`
}

// PublisherRegistry resolves the adapter for a platform kind.
type PublisherRegistry interface {
	For(kind platform.Kind) (publisher.Publisher, error)
}

// PublicationService drives one post from SCHEDULED to a final state. Domain
// outcomes are reported through Outcome; the error is reserved for storage
// and queue failures, ErrNotFound and unsupported platforms.
type PublicationService interface {
	Publish(ctx context.Context, req PublishRequest) (*Outcome, error)
}

type publicationService struct {
	posts      repository.PostRepository
	media      repository.PostMediaRepository
	accounts   repository.SocialAccountRepository
	attempts   repository.PublishAttemptRepository
	publishers PublisherRegistry
	scheduler  scheduler.Scheduler
	events     events.Publisher
	retry      scheduler.RetryPolicy
	secretKey  []byte
	deadline   time.Duration
	now        func() time.Time
	tracer     trace.Tracer
}

func NewPublicationService(
	cfg config.Config,
	posts repository.PostRepository,
	media repository.PostMediaRepository,
	accounts repository.SocialAccountRepository,
	attempts repository.PublishAttemptRepository,
	publishers PublisherRegistry,
	sched scheduler.Scheduler,
	ev events.Publisher,
) PublicationService {
	if ev == nil {
		ev = events.Noop{}
	}
	return &publicationService{
		posts:      posts,
		media:      media,
		accounts:   accounts,
		attempts:   attempts,
		publishers: publishers,
		scheduler:  sched,
		events:     ev,
		retry:      scheduler.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay},
		secretKey:  []byte(cfg.SecretKey),
		deadline:   cfg.PublishDeadline,
		now:        nowUTC,
		tracer:     otel.Tracer("github.com/maheshrc27/nextpost/internal/service"),
	}
}

// run carries the state of one Publish call.
type run struct {
	req     PublishRequest
	attempt int
	post    *models.Post
	account *models.SocialAccount
}

func (r *run) accountID() *int64 {
	if r.account == nil {
		return nil
	}
	return &r.account.ID
}

func (s *publicationService) Publish(ctx context.Context, req PublishRequest) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "PublicationService.Publish", trace.WithAttributes(
		attribute.Int64("post.id", req.PostID),
		attribute.Bool("publish.force", req.Force),
		attribute.Int("publish.attempt", req.Attempt),
	))
	defer span.End()

	out, err := s.publish(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	span.SetAttributes(attribute.String("publish.outcome", string(out.Kind)))
	return out, nil
}

func (s *publicationService) publish(ctx context.Context, req PublishRequest) (*Outcome, error) {
	r := &run{req: req, attempt: max(req.Attempt, 1)}

	post, err := s.posts.GetByID(ctx, req.PostID)
	if err != nil {
		return nil, fmt.Errorf("loading post %d: %w", req.PostID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", req.PostID, ErrNotFound)
	}
	r.post = post

	if post.Status.Terminal() {
		return skipped(SkipTerminal), nil
	}
	if post.Status == models.PostStatusPublishing {
		return skipped(SkipConcurrent), nil
	}
	if !req.Force {
		if post.Status != models.PostStatusScheduled {
			return skipped(SkipNotScheduled), nil
		}
		if req.TaskID != "" && post.ScheduledTaskID != nil && *post.ScheduledTaskID != req.TaskID {
			return skipped(SkipSuperseded), nil
		}
		if post.ScheduledTime != nil && post.ScheduledTime.After(s.now()) {
			return s.deferRun(ctx, r)
		}
	}

	if post.SocialAccountID != nil {
		if r.account, err = s.accounts.GetByID(ctx, *post.SocialAccountID); err != nil {
			return nil, fmt.Errorf("loading account %d: %w", *post.SocialAccountID, err)
		}
	}
	if post.Media, err = s.media.ListByPostID(ctx, post.ID); err != nil {
		return nil, fmt.Errorf("loading media of post %d: %w", post.ID, err)
	}

	from := startStatuses(req.Force)
	if violations := validation.Validate(post, r.account); len(violations) > 0 {
		return s.fail(ctx, r, from, models.AttemptInvalid, "", strings.Join(violations, "; "))
	}

	ok, err := s.posts.CompareAndSetStatus(ctx, post.ID, from, models.PostStatusPublishing)
	if err != nil {
		return nil, fmt.Errorf("claiming post %d: %w", post.ID, err)
	}
	if !ok {
		slog.Info("post already claimed", "post_id", post.ID)
		return skipped(SkipConcurrent), nil
	}

	return s.publishClaimed(ctx, r)
}

// publishClaimed runs everything after the claim. A post must never be left
// in PUBLISHING: when the run errors or panics the claim is released to
// FAILED before returning.
func (s *publicationService) publishClaimed(ctx context.Context, r *run) (out *Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("publication panicked", "post_id", r.post.ID, "panic", p)
			out, err = nil, fmt.Errorf("publishing post %d: panic: %v", r.post.ID, p)
		}
		if err != nil {
			if released := s.release(ctx, r, err); released != nil {
				out, err = released, nil
			}
		}
	}()

	claimed := []models.PostStatus{models.PostStatusPublishing}

	adapter, err := s.publishers.For(r.account.Platform)
	if err != nil {
		slog.Error("no publisher for platform", "post_id", r.post.ID, "platform", r.account.Platform, "error", err)
		out, failErr := s.fail(ctx, r, claimed, models.AttemptRejected, "", err.Error())
		if failErr != nil {
			return out, failErr
		}
		return out, err
	}

	cred, err := openCredential(r.account, s.secretKey)
	if err != nil {
		slog.Error(err.Error(), "post_id", r.post.ID)
		return s.fail(ctx, r, claimed, models.AttemptAuth, "", "stored credentials could not be read, reconnect the account")
	}

	res, err := s.call(ctx, adapter, cred, r)
	if err != nil {
		return s.handlePublishError(ctx, r, err)
	}
	return s.succeed(ctx, r, res)
}

// release moves a post still in PUBLISHING to FAILED after the run stopped
// on cause. It returns nil when the post had already left PUBLISHING or the
// write failed; the stale publishing job picks up the latter.
func (s *publicationService) release(ctx context.Context, r *run, cause error) *Outcome {
	ctx = context.WithoutCancel(ctx)
	message := "publication interrupted: " + cause.Error()
	ok, err := s.posts.MarkFailed(ctx, r.post.ID, []models.PostStatus{models.PostStatusPublishing}, message)
	if err != nil {
		slog.Error("releasing post claim", "post_id", r.post.ID, "cause", cause, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	slog.Warn("post claim released", "post_id", r.post.ID, "cause", cause)
	s.recordAttempt(ctx, r, models.AttemptTransient, "", message)
	s.emitFailed(ctx, r, message, false)
	return &Outcome{Kind: OutcomeFailed, Reason: message}
}

func (s *publicationService) call(ctx context.Context, adapter publisher.Publisher, cred *publisher.Credential, r *run) (*publisher.Result, error) {
	ctx, span := s.tracer.Start(ctx, "publisher.Publish", trace.WithAttributes(
		attribute.String("platform", string(r.account.Platform)),
		attribute.Int64("account.id", r.account.ID),
	))
	defer span.End()

	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	target := publisher.Target{
		ID:           r.account.PlatformUserID,
		Kind:         r.account.Platform,
		Username:     r.account.Username,
		LinkedPageID: r.account.LinkedPageID,
		AccessToken:  cred.AccessToken,
	}
	res, err := adapter.Publish(ctx, cred, target, r.post.Content, mediaRefs(r.post))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res == nil {
		res = &publisher.Result{}
	}
	return res, nil
}

func (s *publicationService) succeed(ctx context.Context, r *run, res *publisher.Result) (*Outcome, error) {
	publishedAt := s.now()
	ok, err := s.posts.MarkPublished(ctx, r.post.ID, r.account.ID, repository.PublishedResult{
		PlatformPostID: res.PlatformPostID,
		PublishedURL:   res.PublishedURL,
		PublishedAt:    publishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("recording publication of post %d as %q: %w", r.post.ID, res.PlatformPostID, err)
	}
	if !ok {
		slog.Warn("post left publishing while the platform call was in flight",
			"post_id", r.post.ID, "platform_post_id", res.PlatformPostID)
		return skipped(SkipConcurrent), nil
	}

	s.recordAttempt(ctx, r, models.AttemptPublished, "", "")
	s.emit(ctx, func(ctx context.Context) error {
		return s.events.PublishPostPublished(ctx, events.PostPublishedEvent{
			PostID:         r.post.ID,
			UserID:         r.post.UserID,
			AccountID:      r.account.ID,
			Platform:       r.account.Platform,
			PlatformPostID: res.PlatformPostID,
			PublishedURL:   res.PublishedURL,
			PublishedAt:    publishedAt,
		})
	})

	slog.Info("post published", "post_id", r.post.ID, "platform", r.account.Platform, "attempt", r.attempt)
	return &Outcome{
		Kind:           OutcomePublished,
		PlatformPostID: res.PlatformPostID,
		PublishedURL:   res.PublishedURL,
	}, nil
}

func (s *publicationService) handlePublishError(ctx context.Context, r *run, err error) (*Outcome, error) {
	claimed := []models.PostStatus{models.PostStatusPublishing}
	code := publisher.ErrorCode(err)

	var authErr *publisher.AuthError
	var rejected *publisher.PlatformRejectedError
	switch {
	case errors.As(err, &authErr):
		if deactivateErr := s.accounts.SetActive(ctx, r.account.ID, false); deactivateErr != nil {
			slog.Error("deactivating account", "account_id", r.account.ID, "error", deactivateErr)
		}
		return s.fail(ctx, r, claimed, models.AttemptAuth, code, err.Error())
	case errors.As(err, &rejected):
		return s.fail(ctx, r, claimed, models.AttemptRejected, code, err.Error())
	}

	// Anything else is transient. FAILED is committed before the retry is armed.
	ok, markErr := s.posts.MarkFailed(ctx, r.post.ID, claimed, err.Error())
	if markErr != nil {
		return nil, fmt.Errorf("recording failure of post %d: %w", r.post.ID, markErr)
	}
	s.recordAttempt(ctx, r, models.AttemptTransient, code, err.Error())
	if !ok {
		return skipped(SkipConcurrent), nil
	}

	if !s.retry.CanRetry(r.attempt) {
		slog.Warn("giving up on post", "post_id", r.post.ID, "attempts", r.attempt, "error", err)
		s.emitFailed(ctx, r, err.Error(), false)
		return &Outcome{Kind: OutcomeFailed, Reason: err.Error()}, nil
	}

	retryAt := s.now().Add(s.retry.Delay(r.attempt))
	taskID, schedErr := s.scheduler.ScheduleAt(ctx, retryAt, scheduler.PublishPayload{
		PostID:  r.post.ID,
		Attempt: r.attempt + 1,
	})
	if schedErr != nil {
		slog.Error("scheduling retry", "post_id", r.post.ID, "error", schedErr)
		s.emitFailed(ctx, r, err.Error(), false)
		return &Outcome{Kind: OutcomeFailed, Reason: err.Error()}, nil
	}

	rearmed, rearmErr := s.posts.Schedule(ctx, r.post.ID, []models.PostStatus{models.PostStatusFailed}, retryAt, taskID)
	if rearmErr != nil || !rearmed {
		if cancelErr := s.scheduler.Cancel(ctx, taskID); cancelErr != nil {
			slog.Error("cancelling orphaned retry", "post_id", r.post.ID, "task_id", taskID, "error", cancelErr)
		}
		if rearmErr != nil {
			return nil, fmt.Errorf("re-arming post %d: %w", r.post.ID, rearmErr)
		}
		s.emitFailed(ctx, r, err.Error(), false)
		return &Outcome{Kind: OutcomeFailed, Reason: err.Error()}, nil
	}

	slog.Info("publish retry scheduled", "post_id", r.post.ID, "attempt", r.attempt+1, "at", retryAt, "error", err)
	s.emitFailed(ctx, r, err.Error(), true)
	return &Outcome{Kind: OutcomeRetrying, Reason: err.Error(), RetryAt: &retryAt, TaskID: taskID}, nil
}

// fail commits FAILED from one of the given statuses. No retry follows.
func (s *publicationService) fail(ctx context.Context, r *run, from []models.PostStatus, outcome models.AttemptOutcome, code, message string) (*Outcome, error) {
	ok, err := s.posts.MarkFailed(ctx, r.post.ID, from, message)
	if err != nil {
		return nil, fmt.Errorf("recording failure of post %d: %w", r.post.ID, err)
	}
	s.recordAttempt(ctx, r, outcome, code, message)
	if !ok {
		return skipped(SkipConcurrent), nil
	}

	slog.Info("post failed", "post_id", r.post.ID, "outcome", outcome, "reason", message)
	s.emitFailed(ctx, r, message, false)
	return &Outcome{Kind: OutcomeFailed, Reason: message}, nil
}

// deferRun handles a run that fired before the post is due. When the run is
// the post's live task it is re-armed for the scheduled time.
func (s *publicationService) deferRun(ctx context.Context, r *run) (*Outcome, error) {
	post := r.post
	out := &Outcome{Kind: OutcomeDeferred, RetryAt: post.ScheduledTime}
	if r.req.TaskID == "" || post.ScheduledTaskID == nil || *post.ScheduledTaskID != r.req.TaskID {
		return out, nil
	}

	taskID, err := s.scheduler.ScheduleAt(ctx, *post.ScheduledTime, scheduler.PublishPayload{PostID: post.ID, Attempt: r.req.Attempt})
	if err != nil {
		return nil, fmt.Errorf("re-arming early task of post %d: %w", post.ID, err)
	}
	ok, err := s.posts.Schedule(ctx, post.ID, []models.PostStatus{models.PostStatusScheduled}, *post.ScheduledTime, taskID)
	if err != nil || !ok {
		if cancelErr := s.scheduler.Cancel(ctx, taskID); cancelErr != nil {
			slog.Error("cancelling orphaned task", "post_id", post.ID, "task_id", taskID, "error", cancelErr)
		}
		if err != nil {
			return nil, fmt.Errorf("re-arming early task of post %d: %w", post.ID, err)
		}
		return skipped(SkipConcurrent), nil
	}
	out.TaskID = taskID
	return out, nil
}

func (s *publicationService) recordAttempt(ctx context.Context, r *run, outcome models.AttemptOutcome, code, message string) {
	_, err := s.attempts.Create(ctx, &models.PublishAttempt{
		PostID:       r.post.ID,
		AccountID:    r.accountID(),
		Attempt:      r.attempt,
		Outcome:      outcome,
		ErrorCode:    code,
		ErrorMessage: models.TruncateError(message),
	})
	if err != nil {
		slog.Error("recording publish attempt", "post_id", r.post.ID, "error", err)
	}
}

func (s *publicationService) emitFailed(ctx context.Context, r *run, reason string, willRetry bool) {
	e := events.PostFailedEvent{
		PostID:    r.post.ID,
		UserID:    r.post.UserID,
		Reason:    models.TruncateError(reason),
		Attempt:   r.attempt,
		WillRetry: willRetry,
		FailedAt:  s.now(),
	}
	if r.account != nil {
		e.AccountID = r.account.ID
		e.Platform = r.account.Platform
	}
	s.emit(ctx, func(ctx context.Context) error { return s.events.PublishPostFailed(ctx, e) })
}

// emit never fails the run; the post row is the source of truth.
func (s *publicationService) emit(ctx context.Context, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		slog.Warn("publishing event", "error", err)
	}
}

func startStatuses(force bool) []models.PostStatus {
	if force {
		return []models.PostStatus{models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed}
	}
	return []models.PostStatus{models.PostStatusScheduled}
}

func skipped(reason string) *Outcome {
	return &Outcome{Kind: OutcomeSkipped, Reason: reason}
}
