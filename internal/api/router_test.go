package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/service"
	"github.com/maheshrc27/nextpost/internal/transfer"
	"github.com/maheshrc27/nextpost/internal/validation"
	"github.com/maheshrc27/nextpost/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubPosts struct {
	service.PostService
	userID int64
}

func (s *stubPosts) PostInfo(_ context.Context, userID, postID int64) (*models.Post, error) {
	s.userID = userID
	if postID != 1 {
		return nil, fmt.Errorf("post %d: %w", postID, service.ErrNotFound)
	}
	return &models.Post{ID: 1, UserID: userID, Content: "hello", Status: models.PostStatusDraft}, nil
}

func (s *stubPosts) PublishNow(_ context.Context, _, postID int64) (string, error) {
	switch postID {
	case 1:
		return "task-1", nil
	case 2:
		return "", &service.ValidationError{Violations: []string{"Instagram Feed requires at least one image"}}
	case 3:
		return "", fmt.Errorf("cannot publish a published post: %w", service.ErrInvalidTransition)
	default:
		return "", errors.New("redis: connection refused")
	}
}

func (s *stubPosts) ValidateDraft(_ context.Context, _ int64, dv *transfer.DraftValidation) (*validation.Report, error) {
	r := validation.Draft(dv.Content, platform.Kind(dv.Platform), validation.MediaSummary{Images: dv.ImageCount})
	return &r, nil
}

func (s *stubPosts) Stats(_ context.Context, _ int64) (*transfer.PostStats, error) {
	return &transfer.PostStats{Total: 2, ByStatus: map[models.PostStatus]int64{models.PostStatusDraft: 2}}, nil
}

func (s *stubPosts) ListByAccount(_ context.Context, _, accountID int64, status models.PostStatus) ([]*models.Post, error) {
	if accountID != 5 {
		return nil, fmt.Errorf("social account %d: %w", accountID, service.ErrNotFound)
	}
	return []*models.Post{{ID: 1, SocialAccountID: &accountID, Status: status}}, nil
}

func (s *stubPosts) ValidateScheduled(_ context.Context, _ int64) ([]service.PostReport, error) {
	return []service.PostReport{
		{PostID: 1, Report: validation.Report{IsValid: true}},
		{PostID: 2, Report: validation.Report{Errors: []string{"account is not active"}}},
	}, nil
}

type stubAccounts struct {
	service.AccountService
	connected []string
}

func (s *stubAccounts) AuthURL(_ context.Context, kind platform.Kind, state string) (string, error) {
	return "https://consent.example.com/" + string(kind) + "?state=" + url.QueryEscape(state), nil
}

func (s *stubAccounts) ConnectAccount(_ context.Context, userID int64, kind platform.Kind, code, _ string) ([]*models.SocialAccount, error) {
	s.connected = append(s.connected, string(kind)+":"+code)
	return []*models.SocialAccount{{ID: 1, UserID: userID, Platform: kind}}, nil
}

type harness struct {
	t        *testing.T
	posts    *stubPosts
	accounts *stubAccounts
	app      *fiber.App
	token    string
}

func newHarness(t *testing.T) *harness {
	cfg := config.Config{SecretKey: testSecret, CookieName: "nextpost_session", FrontendURL: "https://app.example.com"}
	h := &harness{t: t, posts: &stubPosts{}, accounts: &stubAccounts{}}
	h.app = NewApp(cfg, Services{Posts: h.posts, Accounts: h.accounts})

	token, err := utils.GenerateToken(testSecret, 42, time.Hour)
	require.NoError(t, err)
	h.token = token
	return h
}

func (h *harness) do(method, target, body string, authed bool) (*http.Response, map[string]any) {
	h.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func TestAPI_RequiresSession(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/api/posts/1", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.token = "not-a-token"
	resp, _ = h.do(http.MethodGet, "/api/posts/1", "", true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_GetPost(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodGet, "/api/posts/1", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body["content"])
	assert.EqualValues(t, 42, h.posts.userID)

	resp, _ = h.do(http.MethodGet, "/api/posts/9", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/api/posts/abc", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PublishNowErrorMapping(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodPost, "/api/posts/1/publish", "", true)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "task-1", body["task_id"])
	assert.EqualValues(t, 1, body["post_id"])

	resp, body = h.do(http.MethodPost, "/api/posts/2/publish", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{"Instagram Feed requires at least one image"}, body["errors"])

	resp, _ = h.do(http.MethodPost, "/api/posts/3/publish", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(http.MethodPost, "/api/posts/4/publish", "", true)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body["error"], "redis")
}

func TestAPI_StaticRoutesWinOverIDs(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodGet, "/api/posts/stats", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])

	resp, body = h.do(http.MethodPost, "/api/posts/validate", `{"content":"caption","platform":"instagram_feed","image_count":0}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_valid"])
}

func TestAPI_ConnectFlow(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/auth/instagram_feed", "", true)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	consent, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	resp, _ = h.do(http.MethodGet, "/auth/instagram_feed/callback?code=abc&state="+url.QueryEscape(state), "", false)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/dashboard/accounts?status=connected", resp.Header.Get("Location"))
	assert.Equal(t, []string{"instagram_feed:abc"}, h.accounts.connected)

	// A state minted for one platform cannot complete another.
	resp, _ = h.do(http.MethodGet, "/auth/tiktok/callback?code=abc&state="+url.QueryEscape(state), "", false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/auth/myspace", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AccountPosts(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/5/posts?status=scheduled", nil)
	req.Header.Set("Authorization", "Bearer "+h.token)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var posts []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "scheduled", posts[0]["status"])

	resp, _ = h.do(http.MethodGet, "/api/accounts/6/posts", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/api/accounts/5/posts?status=lost", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ValidateScheduled(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodPost, "/api/posts/validate-scheduled", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts, ok := body["posts"].([]any)
	require.True(t, ok)
	require.Len(t, posts, 2)
	second := posts[1].(map[string]any)
	assert.EqualValues(t, 2, second["post_id"])
	assert.Equal(t, false, second["is_valid"])
}
