package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePost_Draft(t *testing.T) {
	h := newHarness(t)
	sa := h.seedAccount(1, platform.FacebookPage)
	img := h.seedAsset(1, platform.MediaImage)

	post, err := h.posts.CreatePost(context.Background(), 1, &transfer.PostCreation{
		Title:           "  Launch  ",
		Content:         "we are live",
		SocialAccountID: &sa.ID,
		MediaIDs:        []int64{img.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Equal(t, "Launch", post.Title)
	assert.Nil(t, post.ScheduledTaskID)
	require.Len(t, post.Media, 1)
	assert.Equal(t, img.FileURL, post.Media[0].URL)
	assert.Empty(t, h.sched.outstanding())
}

func TestCreatePost_ScheduledThenCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	at := h.now.Add(time.Hour)

	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{
		Content:         "later",
		SocialAccountID: &sa.ID,
		ScheduledTime:   &at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	require.NotNil(t, post.ScheduledTaskID)

	task, ok := h.sched.task(*post.ScheduledTaskID)
	require.True(t, ok)
	assert.Equal(t, at, task.At)
	assert.Equal(t, post.ID, task.Payload.PostID)
	assert.Equal(t, 1, task.Payload.Attempt)

	require.NoError(t, h.posts.CancelSchedule(ctx, 1, post.ID))
	got := h.post(post.ID)
	assert.Equal(t, models.PostStatusDraft, got.Status)
	assert.Nil(t, got.ScheduledTaskID)
	assert.Empty(t, h.sched.outstanding())

	err = h.posts.CancelSchedule(ctx, 1, post.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreatePost_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "   "})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{msgContentEmpty}, verr.Violations)
	})

	t.Run("time in the past", func(t *testing.T) {
		h := newHarness(t)
		sa := h.seedAccount(1, platform.FacebookPage)
		at := h.now.Add(-time.Minute)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", SocialAccountID: &sa.ID, ScheduledTime: &at})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Error(), msgScheduledPast)
		assert.Empty(t, h.store.posts)
	})

	t.Run("schedule that cannot publish", func(t *testing.T) {
		h := newHarness(t)
		sa := h.seedAccount(1, platform.InstagramFeed)
		at := h.now.Add(time.Hour)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", SocialAccountID: &sa.ID, ScheduledTime: &at})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Error(), "requires at least one image")
		assert.Empty(t, h.sched.outstanding())
	})

	t.Run("foreign account", func(t *testing.T) {
		h := newHarness(t)
		sa := h.seedAccount(2, platform.FacebookPage)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", SocialAccountID: &sa.ID})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("foreign media", func(t *testing.T) {
		h := newHarness(t)
		img := h.seedAsset(2, platform.MediaImage)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", MediaIDs: []int64{img.ID}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("media attached twice", func(t *testing.T) {
		h := newHarness(t)
		img := h.seedAsset(1, platform.MediaImage)
		_, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", MediaIDs: []int64{img.ID, img.ID}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestUpdatePost_RescheduleKeepsOneTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	first := h.now.Add(time.Hour)

	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "v1", SocialAccountID: &sa.ID, ScheduledTime: &first})
	require.NoError(t, err)
	oldTask := *post.ScheduledTaskID

	second := h.now.Add(2 * time.Hour)
	updated, err := h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "v2", SocialAccountID: &sa.ID, ScheduledTime: &second})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)
	assert.Equal(t, models.PostStatusScheduled, updated.Status)
	assert.Equal(t, second, *updated.ScheduledTime)
	require.NotNil(t, updated.ScheduledTaskID)
	assert.NotEqual(t, oldTask, *updated.ScheduledTaskID)

	outstanding := h.sched.outstanding()
	require.Len(t, outstanding, 1)
	assert.Equal(t, *updated.ScheduledTaskID, outstanding[0].ID)
	assert.Contains(t, h.sched.cancelled, oldTask)

	// Dropping the time turns the post back into an unscheduled draft.
	draft, err := h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "v3", SocialAccountID: &sa.ID})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, draft.Status)
	assert.Empty(t, h.sched.outstanding())
}

func TestUpdatePost_KeepsMediaWhenOmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	img := h.seedAsset(1, platform.MediaImage)
	vid := h.seedAsset(1, platform.MediaVideo)

	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "x", MediaIDs: []int64{img.ID}})
	require.NoError(t, err)

	kept, err := h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "y"})
	require.NoError(t, err)
	require.Len(t, kept.Media, 1)
	assert.Equal(t, img.ID, kept.Media[0].AssetID)

	replaced, err := h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "z", MediaIDs: []int64{vid.ID, img.ID}})
	require.NoError(t, err)
	require.Len(t, replaced.Media, 2)
	assert.Equal(t, vid.ID, replaced.Media[0].AssetID)
	assert.Equal(t, img.ID, replaced.Media[1].AssetID)

	cleared, err := h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "z", MediaIDs: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, cleared.Media)
}

func TestUpdatePost_RefusesTerminal(t *testing.T) {
	h := newHarness(t)
	sa := h.seedAccount(1, platform.FacebookPage)
	post := h.seedScheduledPost(sa, "x")
	_, err := h.svc.Publish(context.Background(), PublishRequest{PostID: post.ID, Attempt: 1})
	require.NoError(t, err)

	_, err = h.posts.UpdatePost(context.Background(), 1, post.ID, &transfer.PostUpdate{Content: "edit"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.posts.UpdatePost(context.Background(), 2, post.ID, &transfer.PostUpdate{Content: "edit"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchedulePost_FromFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.Twitter)
	post := h.seedScheduledPost(sa, strings.Repeat("a", 300))
	_, err := h.svc.Publish(ctx, PublishRequest{PostID: post.ID, Attempt: 1})
	require.NoError(t, err)
	require.Equal(t, models.PostStatusFailed, h.post(post.ID).Status)

	_, err = h.posts.SchedulePost(ctx, 1, post.ID, h.now.Add(time.Hour))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = h.posts.UpdatePost(ctx, 1, post.ID, &transfer.PostUpdate{Content: "short now", SocialAccountID: &sa.ID})
	require.NoError(t, err)
	scheduled, err := h.posts.SchedulePost(ctx, 1, post.ID, h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, scheduled.Status)
	assert.Nil(t, scheduled.ErrorMessage)

	_, err = h.posts.SchedulePost(ctx, 1, post.ID, h.now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPublishNow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	at := h.now.Add(24 * time.Hour)
	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: "soon", SocialAccountID: &sa.ID, ScheduledTime: &at})
	require.NoError(t, err)
	oldTask := *post.ScheduledTaskID

	taskID, err := h.posts.PublishNow(ctx, 1, post.ID)
	require.NoError(t, err)

	task, ok := h.sched.task(taskID)
	require.True(t, ok)
	assert.True(t, task.Payload.Force)
	assert.Equal(t, h.now, task.At)
	assert.Contains(t, h.sched.cancelled, oldTask)
	assert.Equal(t, taskID, *h.post(post.ID).ScheduledTaskID)

	out, err := h.svc.Publish(ctx, PublishRequest{PostID: post.ID, Force: true, Attempt: 1, TaskID: taskID})
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Kind)

	_, err = h.posts.PublishNow(ctx, 1, post.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPublishNow_InvalidPost(t *testing.T) {
	h := newHarness(t)
	sa := h.seedAccount(1, platform.InstagramFeed)
	post, err := h.posts.CreatePost(context.Background(), 1, &transfer.PostCreation{Content: "x", SocialAccountID: &sa.ID})
	require.NoError(t, err)

	_, err = h.posts.PublishNow(context.Background(), 1, post.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, h.sched.outstanding())
}

func TestCancelPost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	post := h.seedScheduledPost(sa, "x")

	require.NoError(t, h.posts.CancelPost(ctx, 1, post.ID))
	got := h.post(post.ID)
	assert.Equal(t, models.PostStatusCancelled, got.Status)
	assert.Empty(t, h.sched.outstanding())

	// The task may still fire if cancellation raced with delivery.
	out, err := h.svc.Publish(ctx, PublishRequest{PostID: post.ID, Attempt: 1, TaskID: *post.ScheduledTaskID})
	require.NoError(t, err)
	assert.Equal(t, SkipTerminal, out.Reason)
	assert.Zero(t, h.pub.count.Load())

	assert.ErrorIs(t, h.posts.CancelPost(ctx, 1, post.ID), ErrInvalidTransition)
}

func TestDuplicatePost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.InstagramFeed)
	a := h.seedAsset(1, platform.MediaImage)
	b := h.seedAsset(1, platform.MediaImage)
	post := h.seedScheduledPost(sa, "carousel", a, b)
	post.Title = "Spring"
	h.store.posts[post.ID] = *post

	dup, err := h.posts.DuplicatePost(ctx, 1, post.ID)
	require.NoError(t, err)
	assert.NotEqual(t, post.ID, dup.ID)
	assert.Equal(t, "Copy of Spring", dup.Title)
	assert.Equal(t, models.PostStatusDraft, dup.Status)
	assert.Nil(t, dup.ScheduledTime)
	assert.Nil(t, dup.ScheduledTaskID)
	require.Len(t, dup.Media, 2)
	assert.Equal(t, a.ID, dup.Media[0].AssetID)
	assert.Equal(t, b.ID, dup.Media[1].AssetID)

	_, err = h.posts.DuplicatePost(ctx, 2, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaOverridesReachThePublisher(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	a := h.seedAsset(1, platform.MediaImage)
	b := h.seedAsset(1, platform.MediaImage)

	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{
		Content:         "two photos",
		SocialAccountID: &sa.ID,
		MediaIDs:        []int64{b.ID},
		Media: []transfer.MediaInput{
			{AssetID: a.ID, Overrides: map[string]any{"caption": "first"}},
			{AssetID: b.ID},
		},
	})
	require.NoError(t, err)
	require.Len(t, post.Media, 2)
	assert.Equal(t, "first", post.Media[0].Overrides["caption"])
	assert.Nil(t, post.Media[1].Overrides)

	dup, err := h.posts.DuplicatePost(ctx, 1, post.ID)
	require.NoError(t, err)
	require.Len(t, dup.Media, 2)
	assert.Equal(t, "first", dup.Media[0].Overrides["caption"])

	taskID, err := h.posts.PublishNow(ctx, 1, dup.ID)
	require.NoError(t, err)
	out, err := h.svc.Publish(ctx, PublishRequest{PostID: dup.ID, Force: true, Attempt: 1, TaskID: taskID})
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, out.Kind)

	require.Len(t, h.pub.calls, 1)
	media := h.pub.calls[0].Media
	require.Len(t, media, 2)
	assert.Equal(t, a.FileURL, media[0].URL)
	assert.Equal(t, "first", media[0].Caption("two photos"))
	assert.Equal(t, "two photos", media[1].Caption("two photos"))
}

func TestValidatePost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.Twitter)
	post, err := h.posts.CreatePost(ctx, 1, &transfer.PostCreation{Content: strings.Repeat("b", 281), SocialAccountID: &sa.ID})
	require.NoError(t, err)

	report, err := h.posts.ValidatePost(ctx, 1, post.ID)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "281")
	assert.Equal(t, 280, report.Rules.MaxLength)

	_, err = h.posts.ValidatePost(ctx, 2, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	img := h.seedAsset(1, platform.MediaImage)

	report, err := h.posts.ValidateDraft(ctx, 1, &transfer.DraftValidation{
		Content:  "caption",
		Platform: "instagram_feed",
		MediaIDs: []int64{img.ID},
	})
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	report, err = h.posts.ValidateDraft(ctx, 1, &transfer.DraftValidation{
		Content:  strings.Repeat("c", 300),
		Platform: "myspace",
	})
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Equal(t, platform.RestrictiveRules.MaxLength, report.Rules.MaxLength)
}

func TestRemovePost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.seedAccount(1, platform.FacebookPage)
	post := h.seedScheduledPost(sa, "x")

	require.NoError(t, h.posts.Remove(ctx, 1, post.ID))
	assert.Empty(t, h.sched.outstanding())
	_, err := h.posts.PostInfo(ctx, 1, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostStatsAndListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fb := h.seedAccount(1, platform.FacebookPage)
	tw := h.seedAccount(1, platform.Twitter)
	h.seedScheduledPost(fb, "one")
	h.seedScheduledPost(tw, "two")
	published := h.seedScheduledPost(fb, "three")
	_, err := h.svc.Publish(ctx, PublishRequest{PostID: published.ID, Attempt: 1})
	require.NoError(t, err)
	h.seedAccount(2, platform.FacebookPage)

	stats, err := h.posts.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus[models.PostStatusScheduled])
	assert.EqualValues(t, 1, stats.ByStatus[models.PostStatusPublished])
	assert.EqualValues(t, 0, stats.ByStatus[models.PostStatusFailed])
	assert.EqualValues(t, 2, stats.ByPlatform[platform.FacebookPage])
	assert.EqualValues(t, 1, stats.ByPlatform[platform.Twitter])

	scheduled, err := h.posts.List(ctx, 1, models.PostStatusScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)

	attempts, err := h.posts.Attempts(ctx, 1, published.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptPublished, attempts[0].Outcome)
}

func TestListByAccountAndValidateScheduled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fb := h.seedAccount(1, platform.FacebookPage)
	ig := h.seedAccount(1, platform.InstagramFeed)
	other := h.seedAccount(2, platform.FacebookPage)
	good := h.seedScheduledPost(fb, "fine")
	bad := h.seedScheduledPost(ig, "no image")
	h.seedScheduledPost(other, "not mine")

	posts, err := h.posts.ListByAccount(ctx, 1, fb.ID, "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, good.ID, posts[0].ID)

	_, err = h.posts.ListByAccount(ctx, 1, other.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	reports, err := h.posts.ValidateScheduled(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	byID := map[int64]PostReport{}
	for _, r := range reports {
		byID[r.PostID] = r
	}
	assert.True(t, byID[good.ID].IsValid)
	assert.False(t, byID[bad.ID].IsValid)
	assert.NotEmpty(t, byID[bad.ID].Errors)
}
