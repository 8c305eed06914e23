package transfer

import (
	"time"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
)

// MediaInput attaches one uploaded asset with optional per-attachment
// settings, such as {"caption": "..."}.
type MediaInput struct {
	AssetID   int64          `json:"asset_id"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// AttachedMedia merges the two request forms of a media list. Media wins
// when both are sent; nil means neither was.
func AttachedMedia(media []MediaInput, ids []int64) []MediaInput {
	if media != nil {
		return media
	}
	if ids == nil {
		return nil
	}
	out := make([]MediaInput, 0, len(ids))
	for _, id := range ids {
		out = append(out, MediaInput{AssetID: id})
	}
	return out
}

type PostCreation struct {
	Title           string                    `json:"title"`
	Content         string                    `json:"content"`
	SocialAccountID *int64                    `json:"social_account_id"`
	ScheduledTime   *time.Time                `json:"scheduled_time"`
	MediaIDs        []int64                   `json:"media_ids"`
	Media           []MediaInput              `json:"media"`
	ImageURL        *string                   `json:"image_url"`
	VideoURL        *string                   `json:"video_url"`
	PlatformConfigs map[string]map[string]any `json:"platform_configs"`
}

// PostUpdate replaces the editable fields of a post. When neither Media nor
// MediaIDs is sent the current attachments are kept; an empty list removes
// them.
type PostUpdate struct {
	Title           string                    `json:"title"`
	Content         string                    `json:"content"`
	SocialAccountID *int64                    `json:"social_account_id"`
	ScheduledTime   *time.Time                `json:"scheduled_time"`
	MediaIDs        []int64                   `json:"media_ids"`
	Media           []MediaInput              `json:"media"`
	ImageURL        *string                   `json:"image_url"`
	VideoURL        *string                   `json:"video_url"`
	PlatformConfigs map[string]map[string]any `json:"platform_configs"`
}

type ScheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

// DraftValidation checks unsaved content against a platform. Media may be
// given as uploaded asset ids, as counts, or both.
type DraftValidation struct {
	Content    string  `json:"content"`
	Platform   string  `json:"platform"`
	MediaIDs   []int64 `json:"media_ids"`
	ImageCount int     `json:"image_count"`
	VideoCount int     `json:"video_count"`
}

type PublishNowResponse struct {
	TaskID string `json:"task_id"`
	PostID int64  `json:"post_id"`
}

type PostStats struct {
	Total      int64                       `json:"total"`
	ByStatus   map[models.PostStatus]int64 `json:"by_status"`
	ByPlatform map[platform.Kind]int64     `json:"by_platform"`
}
