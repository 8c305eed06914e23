package models

import (
	"time"

	"github.com/maheshrc27/nextpost/internal/platform"
)

// SocialAccount holds encrypted credentials; AccessToken and RefreshToken are
// never stored or returned in plaintext.
type SocialAccount struct {
	ID             int64         `db:"id" json:"id"`
	UserID         int64         `db:"user_id" json:"user_id"`
	Platform       platform.Kind `db:"platform" json:"platform"`
	PlatformUserID string        `db:"platform_user_id" json:"platform_user_id"`
	Username       string        `db:"username" json:"username"`
	ProfilePicture string        `db:"profile_picture_url" json:"profile_picture"`
	LinkedPageID   string        `db:"linked_page_id" json:"linked_page_id,omitempty"`
	AccessToken    string        `db:"access_token" json:"-"`
	RefreshToken   string        `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time    `db:"token_expires_at" json:"token_expires_at"`
	IsActive       bool          `db:"is_active" json:"is_active"`
	PostsCount     int64         `db:"posts_count" json:"posts_count"`
	LastUsedAt     *time.Time    `db:"last_used_at" json:"last_used_at"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

type PlatformStats struct {
	Platform       platform.Kind `json:"platform"`
	DisplayName    string        `json:"display_name"`
	TotalAccounts  int64         `json:"total_accounts"`
	ActiveAccounts int64         `json:"active_accounts"`
	TotalPosts     int64         `json:"total_posts"`
}
