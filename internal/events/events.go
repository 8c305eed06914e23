// Package events announces publication outcomes to other services.
package events

import (
	"context"
	"time"

	"github.com/maheshrc27/nextpost/internal/platform"
)

const (
	SubjectPostPublished = "post.published"
	SubjectPostFailed    = "post.failed"
)

type PostPublishedEvent struct {
	PostID         int64         `json:"post_id"`
	UserID         int64         `json:"user_id"`
	AccountID      int64         `json:"account_id"`
	Platform       platform.Kind `json:"platform"`
	PlatformPostID string        `json:"platform_post_id"`
	PublishedURL   string        `json:"published_url"`
	PublishedAt    time.Time     `json:"published_at"`
}

type PostFailedEvent struct {
	PostID    int64         `json:"post_id"`
	UserID    int64         `json:"user_id"`
	AccountID int64         `json:"account_id,omitempty"`
	Platform  platform.Kind `json:"platform,omitempty"`
	Reason    string        `json:"reason"`
	Attempt   int           `json:"attempt"`
	WillRetry bool          `json:"will_retry"`
	FailedAt  time.Time     `json:"failed_at"`
}

type Publisher interface {
	PublishPostPublished(ctx context.Context, e PostPublishedEvent) error
	PublishPostFailed(ctx context.Context, e PostFailedEvent) error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishPostPublished(context.Context, PostPublishedEvent) error { return nil }
func (Noop) PublishPostFailed(context.Context, PostFailedEvent) error       { return nil }
