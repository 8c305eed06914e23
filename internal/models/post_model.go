package models

import (
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/nextpost/internal/platform"
)

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// MaxErrorMessageLength bounds Post.ErrorMessage.
const MaxErrorMessageLength = 1000

var PostStatuses = []PostStatus{
	PostStatusDraft,
	PostStatusScheduled,
	PostStatusPublishing,
	PostStatusPublished,
	PostStatusFailed,
	PostStatusCancelled,
}

// Terminal statuses accept no further mutation.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPublished || s == PostStatusCancelled
}

// Editable statuses allow content, media and schedule changes.
func (s PostStatus) Editable() bool {
	return s == PostStatusDraft || s == PostStatusScheduled || s == PostStatusFailed
}

func ParsePostStatus(s string) (PostStatus, bool) {
	for _, st := range PostStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type Post struct {
	ID              int64                     `db:"id" json:"id"`
	UserID          int64                     `db:"user_id" json:"user_id"`
	SocialAccountID *int64                    `db:"social_account_id" json:"social_account_id"`
	Title           string                    `db:"title" json:"title"`
	Content         string                    `db:"content" json:"content"`
	ScheduledTime   *time.Time                `db:"scheduled_time" json:"scheduled_time"`
	Status          PostStatus                `db:"status" json:"status"`
	ImageURL        *string                   `db:"image_url" json:"image_url,omitempty"`
	VideoURL        *string                   `db:"video_url" json:"video_url,omitempty"`
	PlatformConfigs map[string]map[string]any `db:"platform_configs" json:"platform_configs"`
	ScheduledTaskID *string                   `db:"scheduled_task_id" json:"scheduled_task_id,omitempty"`
	PlatformPostID  *string                   `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PublishedURL    *string                   `db:"published_url" json:"published_url,omitempty"`
	ErrorMessage    *string                   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                 `db:"updated_at" json:"updated_at"`
	PublishedAt     *time.Time                `db:"published_at" json:"published_at,omitempty"`

	Media []MediaAttachment `db:"-" json:"media"`
}

// TruncateError bounds msg to MaxErrorMessageLength runes.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	return string([]rune(msg)[:MaxErrorMessageLength])
}

// IsDue reports whether a scheduled post has reached its publication time.
func (p *Post) IsDue(now time.Time) bool {
	if p.Status != PostStatusScheduled || p.ScheduledTime == nil {
		return false
	}
	return !p.ScheduledTime.After(now)
}

type MediaAsset struct {
	ID           int64              `db:"id" json:"id"`
	UserID       int64              `db:"user_id" json:"user_id"`
	FileName     string             `db:"file_name" json:"file_name"`
	Kind         platform.MediaKind `db:"kind" json:"kind"`
	MIMEType     string             `db:"mime_type" json:"mime_type"`
	FileSize     int64              `db:"file_size" json:"file_size"`
	FileURL      string             `db:"file_url" json:"file_url"`
	ThumbnailURL string             `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}

// MediaAttachment is a post_media row joined with its asset.
type MediaAttachment struct {
	PostID       int64              `db:"post_id" json:"post_id"`
	AssetID      int64              `db:"asset_id" json:"asset_id"`
	Order        int                `db:"display_order" json:"order"`
	Overrides    map[string]any     `db:"overrides" json:"overrides,omitempty"`
	Kind         platform.MediaKind `db:"kind" json:"kind"`
	URL          string             `db:"file_url" json:"url"`
	ThumbnailURL string             `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}
