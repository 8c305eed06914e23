package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/events"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/internal/repository"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	"github.com/maheshrc27/nextpost/pkg/utils"
	"github.com/stretchr/testify/require"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

// store is an in-memory database shared by the repository fakes. Every
// method holds the mutex for its whole body, which gives the same
// single-statement atomicity the SQL implementations rely on.
type store struct {
	mu          sync.Mutex
	nextID      int64
	posts       map[int64]models.Post
	accounts    map[int64]models.SocialAccount
	assets      map[int64]models.MediaAsset
	attachments map[int64][]models.MediaAttachment
	attempts    []models.PublishAttempt
}

func newStore() *store {
	return &store{
		posts:       map[int64]models.Post{},
		accounts:    map[int64]models.SocialAccount{},
		assets:      map[int64]models.MediaAsset{},
		attachments: map[int64][]models.MediaAttachment{},
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

type memPosts struct{ *store }

func (m memPosts) Create(_ context.Context, _ *sql.Tx, post *models.Post) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *post
	p.ID = m.id()
	p.Media = nil
	if p.Status == "" {
		p.Status = models.PostStatusDraft
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.posts[p.ID] = p
	return p.ID, nil
}

func (m memPosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m memPosts) ListByUserID(_ context.Context, userID int64, status models.PostStatus) ([]*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Post
	for _, p := range m.posts {
		if p.UserID == userID && (status == "" || p.Status == status) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m memPosts) ListByStatus(_ context.Context, status models.PostStatus, limit int) ([]*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Post
	for _, p := range m.posts {
		if p.Status == status && len(out) < limit {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m memPosts) Update(_ context.Context, _ *sql.Tx, post *models.Post, from []models.PostStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.posts[post.ID]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	p := *post
	p.Media = nil
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now()
	m.posts[p.ID] = p
	return true, nil
}

func (m memPosts) CompareAndSetStatus(_ context.Context, id int64, from []models.PostStatus, to models.PostStatus) (bool, error) {
	if to == models.PostStatusScheduled {
		return false, errors.New("use Schedule to enter the scheduled status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.ScheduledTaskID = nil
	m.posts[id] = p
	return true, nil
}

func (m memPosts) Schedule(_ context.Context, id int64, from []models.PostStatus, at time.Time, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = models.PostStatusScheduled
	p.ScheduledTime = &at
	p.ScheduledTaskID = &taskID
	p.ErrorMessage = nil
	m.posts[id] = p
	return true, nil
}

func (m memPosts) MarkFailed(_ context.Context, id int64, from []models.PostStatus, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	msg := models.TruncateError(message)
	p.Status = models.PostStatusFailed
	p.ScheduledTaskID = nil
	p.ErrorMessage = &msg
	m.posts[id] = p
	return true, nil
}

func (m memPosts) MarkPublished(_ context.Context, id, accountID int64, res repository.PublishedResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return false, nil
	}
	p.Status = models.PostStatusPublished
	p.ScheduledTaskID = nil
	p.ErrorMessage = nil
	p.PlatformPostID = &res.PlatformPostID
	p.PublishedURL = &res.PublishedURL
	p.PublishedAt = &res.PublishedAt
	m.posts[id] = p

	if sa, ok := m.accounts[accountID]; ok {
		sa.PostsCount++
		sa.LastUsedAt = &res.PublishedAt
		m.accounts[accountID] = sa
	}
	return true, nil
}

func (m memPosts) CountByStatus(_ context.Context, userID int64) (map[models.PostStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.PostStatus]int64{}
	for _, s := range models.PostStatuses {
		counts[s] = 0
	}
	for _, p := range m.posts {
		if p.UserID == userID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

func (m memPosts) CountByPlatform(_ context.Context, userID int64) (map[platform.Kind]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[platform.Kind]int64{}
	for _, p := range m.posts {
		if p.UserID != userID || p.SocialAccountID == nil {
			continue
		}
		if sa, ok := m.accounts[*p.SocialAccountID]; ok {
			counts[sa.Platform]++
		}
	}
	return counts, nil
}

func (m memPosts) CountFailedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.posts {
		if p.Status == models.PostStatusFailed && p.UpdatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (m memPosts) FailStalePublishing(_ context.Context, before time.Time, message string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, p := range m.posts {
		if p.Status != models.PostStatusPublishing || !p.UpdatedAt.Before(before) {
			continue
		}
		msg := models.TruncateError(message)
		p.Status = models.PostStatusFailed
		p.ScheduledTaskID = nil
		p.ErrorMessage = &msg
		m.posts[id] = p
		ids = append(ids, id)
	}
	return ids, nil
}

func (m memPosts) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	delete(m.attachments, id)
	return nil
}

type memPostMedia struct{ *store }

func (m memPostMedia) Create(_ context.Context, _ *sql.Tx, pm *models.MediaAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attachments[pm.PostID] {
		if a.Order == pm.Order {
			return fmt.Errorf("duplicate order %d", pm.Order)
		}
	}
	m.attachments[pm.PostID] = append(m.attachments[pm.PostID], *pm)
	return nil
}

func (m memPostMedia) ListByPostID(_ context.Context, postID int64) ([]models.MediaAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MediaAttachment
	for _, a := range m.attachments[postID] {
		asset := m.assets[a.AssetID]
		a.Kind = asset.Kind
		a.URL = asset.FileURL
		a.ThumbnailURL = asset.ThumbnailURL
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.MediaAttachment) int { return a.Order - b.Order })
	return out, nil
}

func (m memPostMedia) RemoveByPostID(_ context.Context, _ *sql.Tx, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attachments, postID)
	return nil
}

type memAssets struct{ *store }

func (m memAssets) Create(_ context.Context, _ *sql.Tx, ma *models.MediaAsset) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *ma
	a.ID = m.id()
	m.assets[a.ID] = a
	return a.ID, nil
}

func (m memAssets) GetByID(_ context.Context, id int64) (*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m memAssets) ListByIDs(_ context.Context, userID int64, ids []int64) ([]*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MediaAsset
	for _, id := range ids {
		if a, ok := m.assets[id]; ok && a.UserID == userID {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m memAssets) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, id)
	return nil
}

type memAccounts struct{ *store }

func (m memAccounts) Upsert(_ context.Context, _ *sql.Tx, sa *models.SocialAccount) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.accounts {
		if cur.UserID == sa.UserID && cur.Platform == sa.Platform && cur.PlatformUserID == sa.PlatformUserID {
			cur.Username = sa.Username
			cur.AccessToken = sa.AccessToken
			cur.RefreshToken = sa.RefreshToken
			cur.TokenExpiresAt = sa.TokenExpiresAt
			cur.IsActive = true
			m.accounts[id] = cur
			return id, nil
		}
	}
	a := *sa
	a.ID = m.id()
	a.IsActive = true
	m.accounts[a.ID] = a
	return a.ID, nil
}

func (m memAccounts) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m memAccounts) ListByUserID(_ context.Context, userID int64) ([]*models.SocialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m memAccounts) ListExpiring(_ context.Context, before time.Time) ([]*models.SocialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range m.accounts {
		if a.IsActive && a.TokenExpiresAt != nil && a.TokenExpiresAt.Before(before) {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m memAccounts) CheckByUserID(_ context.Context, accountID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	return ok && a.UserID == userID, nil
}

func (m memAccounts) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.IsActive = active
		m.accounts[id] = a
	}
	return nil
}

func (m memAccounts) SetToken(_ context.Context, id int64, oldAccessToken string, sa *models.SocialAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.AccessToken != oldAccessToken {
		return repository.ErrStaleToken
	}
	if sa.AccessToken != "" {
		a.AccessToken = sa.AccessToken
	}
	if sa.RefreshToken != "" {
		a.RefreshToken = sa.RefreshToken
	}
	if sa.TokenExpiresAt != nil {
		a.TokenExpiresAt = sa.TokenExpiresAt
	}
	m.accounts[id] = a
	return nil
}

func (m memAccounts) StatsByPlatform(_ context.Context, userID int64) ([]models.PlatformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind := map[platform.Kind]*models.PlatformStats{}
	for _, a := range m.accounts {
		if a.UserID != userID {
			continue
		}
		st, ok := byKind[a.Platform]
		if !ok {
			st = &models.PlatformStats{Platform: a.Platform, DisplayName: a.Platform.DisplayName()}
			byKind[a.Platform] = st
		}
		st.TotalAccounts++
		if a.IsActive {
			st.ActiveAccounts++
		}
		st.TotalPosts += a.PostsCount
	}
	var out []models.PlatformStats
	for _, st := range byKind {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b models.PlatformStats) int {
		if a.Platform < b.Platform {
			return -1
		}
		return 1
	})
	return out, nil
}

func (m memAccounts) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

type memAttempts struct{ *store }

func (m memAttempts) Create(_ context.Context, a *models.PublishAttempt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *a
	row.ID = m.id()
	m.attempts = append(m.attempts, row)
	return row.ID, nil
}

func (m memAttempts) ListByPostID(_ context.Context, postID int64) ([]*models.PublishAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PublishAttempt
	for _, a := range m.attempts {
		if a.PostID == postID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

type memTx struct{}

func (memTx) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type scheduledTask struct {
	ID      string
	At      time.Time
	Payload scheduler.PublishPayload
}

type fakeScheduler struct {
	mu        sync.Mutex
	seq       int
	tasks     map[string]scheduledTask
	cancelled []string
	err       error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: map[string]scheduledTask{}}
}

func (f *fakeScheduler) ScheduleAt(_ context.Context, at time.Time, payload scheduler.PublishPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.seq++
	id := fmt.Sprintf("task-%d", f.seq)
	f.tasks[id] = scheduledTask{ID: id, At: at, Payload: payload}
	return id, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
	delete(f.tasks, taskID)
	return nil
}

// outstanding returns the tasks registered and not cancelled.
func (f *fakeScheduler) outstanding() []scheduledTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []scheduledTask
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeScheduler) task(id string) (scheduledTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

type publishCall struct {
	Target  publisher.Target
	Content string
	Media   []publisher.MediaRef
}

type fakePublisher struct {
	mu        sync.Mutex
	calls     []publishCall
	count     atomic.Int32
	publishFn func(n int) (*publisher.Result, error)
	refreshFn func(cred *publisher.Credential) (*publisher.Credential, error)
	targets   []publisher.Target
	revoked   []string
	testErr   error
	delay     time.Duration
}

func (f *fakePublisher) ExchangeCodeForToken(_ context.Context, code, _ string) (*publisher.Credential, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	return &publisher.Credential{
		AccessToken:  "user-token-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresAt:    time.Now().Add(publisher.LongLivedTokenTTL),
	}, nil
}

func (f *fakePublisher) ListPublishableTargets(context.Context, *publisher.Credential) ([]publisher.Target, error) {
	return f.targets, nil
}

func (f *fakePublisher) Publish(_ context.Context, _ *publisher.Credential, target publisher.Target, content string, media []publisher.MediaRef) (*publisher.Result, error) {
	n := int(f.count.Add(1))
	f.mu.Lock()
	f.calls = append(f.calls, publishCall{Target: target, Content: content, Media: media})
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.publishFn != nil {
		return f.publishFn(n)
	}
	return &publisher.Result{PlatformPostID: fmt.Sprintf("remote-%d", n), PublishedURL: "https://example.com/p/1"}, nil
}

func (f *fakePublisher) RefreshToken(_ context.Context, cred *publisher.Credential) (*publisher.Credential, error) {
	if f.refreshFn != nil {
		return f.refreshFn(cred)
	}
	return cred, nil
}

func (f *fakePublisher) TestConnection(_ context.Context, cred *publisher.Credential) (map[string]any, error) {
	if f.testErr != nil {
		return nil, f.testErr
	}
	return map[string]any{"token": cred.AccessToken}, nil
}

func (f *fakePublisher) RevokeAccess(_ context.Context, cred *publisher.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, cred.AccessToken)
	return nil
}

func (f *fakePublisher) AuthURL(kind platform.Kind, state string) string {
	return "https://auth.example.com/" + string(kind) + "?state=" + state
}

type captureEvents struct {
	mu        sync.Mutex
	published []events.PostPublishedEvent
	failed    []events.PostFailedEvent
}

func (c *captureEvents) PublishPostPublished(_ context.Context, e events.PostPublishedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, e)
	return nil
}

func (c *captureEvents) PublishPostFailed(_ context.Context, e events.PostFailedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, e)
	return nil
}

// harness wires the services over the in-memory fakes with a settable clock.
type harness struct {
	t         *testing.T
	store     *store
	sched     *fakeScheduler
	events    *captureEvents
	pub       *fakePublisher
	registry  *publisher.Registry
	now       time.Time
	svc       *publicationService
	posts     *postService
	accounts  *accountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		store:    newStore(),
		sched:    newFakeScheduler(),
		events:   &captureEvents{},
		pub:      &fakePublisher{},
		registry: publisher.NewRegistry(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.registry.Register(h.pub,
		platform.FacebookPage, platform.InstagramFeed, platform.InstagramStory,
		platform.Twitter, platform.Tiktok, platform.Youtube)

	cfg := testConfig()
	clock := func() time.Time { return h.now }

	h.svc = NewPublicationService(cfg, memPosts{h.store}, memPostMedia{h.store}, memAccounts{h.store},
		memAttempts{h.store}, h.registry, h.sched, h.events).(*publicationService)
	h.svc.now = clock

	h.posts = NewPostService(memTx{}, memPosts{h.store}, memPostMedia{h.store}, memAssets{h.store},
		memAccounts{h.store}, memAttempts{h.store}, h.sched).(*postService)
	h.posts.now = clock

	h.accounts = NewAccountService(cfg, memAccounts{h.store}, h.registry).(*accountService)
	return h
}

func testConfig() config.Config {
	return config.Config{
		SecretKey:       testSecretKey,
		PublishTimeout:  5 * time.Second,
		PublishDeadline: 30 * time.Second,
		Retry: config.Retry{
			MaxAttempts:      5,
			BaseDelay:        time.Minute,
			InfraMaxAttempts: 3,
		},
	}
}

func (h *harness) seedAccount(userID int64, kind platform.Kind) *models.SocialAccount {
	h.t.Helper()
	token, err := utils.Encrypt([]byte("access-"+string(kind)), []byte(testSecretKey))
	require.NoError(h.t, err)

	id, err := memAccounts{h.store}.Upsert(context.Background(), nil, &models.SocialAccount{
		UserID:         userID,
		Platform:       kind,
		PlatformUserID: "ext-" + string(kind),
		Username:       "brand",
		AccessToken:    token,
	})
	require.NoError(h.t, err)
	sa, _ := memAccounts{h.store}.GetByID(context.Background(), id)
	return sa
}

func (h *harness) seedAsset(userID int64, kind platform.MediaKind) *models.MediaAsset {
	h.t.Helper()
	id, err := memAssets{h.store}.Create(context.Background(), nil, &models.MediaAsset{
		UserID:  userID,
		Kind:    kind,
		FileURL: fmt.Sprintf("https://cdn.example.com/%s-%d", kind, h.store.nextID+1),
	})
	require.NoError(h.t, err)
	a, _ := memAssets{h.store}.GetByID(context.Background(), id)
	return a
}

// seedScheduledPost stores a post that is due now with a live task.
func (h *harness) seedScheduledPost(sa *models.SocialAccount, content string, assets ...*models.MediaAsset) *models.Post {
	h.t.Helper()
	ctx := context.Background()
	at := h.now.Add(-time.Second)
	id, err := memPosts{h.store}.Create(ctx, nil, &models.Post{
		UserID:          sa.UserID,
		SocialAccountID: &sa.ID,
		Content:         content,
		ScheduledTime:   &at,
	})
	require.NoError(h.t, err)
	for i, a := range assets {
		require.NoError(h.t, memPostMedia{h.store}.Create(ctx, nil, &models.MediaAttachment{PostID: id, AssetID: a.ID, Order: i}))
	}
	taskID, err := h.sched.ScheduleAt(ctx, at, scheduler.PublishPayload{PostID: id, Attempt: 1})
	require.NoError(h.t, err)
	ok, err := memPosts{h.store}.Schedule(ctx, id, []models.PostStatus{models.PostStatusDraft}, at, taskID)
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return h.post(id)
}

func (h *harness) post(id int64) *models.Post {
	h.t.Helper()
	p, err := memPosts{h.store}.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	require.NotNil(h.t, p)
	return p
}

func (h *harness) account(id int64) *models.SocialAccount {
	h.t.Helper()
	sa, err := memAccounts{h.store}.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	require.NotNil(h.t, sa)
	return sa
}

func (h *harness) attemptsFor(postID int64) []*models.PublishAttempt {
	out, _ := memAttempts{h.store}.ListByPostID(context.Background(), postID)
	return out
}
