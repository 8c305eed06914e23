// Package validation checks posts against the capability profile of their
// target platform. Nothing here performs I/O or mutates its inputs.
package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
)

const (
	MsgAccountMissing  = "no social account is attached to the post"
	MsgAccountInactive = "the social account is not active"
	MsgTokenMissing    = "the social account has no access token"
)

// Report is the result of a dry validation.
type Report struct {
	IsValid bool           `json:"is_valid"`
	Errors  []string       `json:"errors"`
	Rules   platform.Rules `json:"rules"`
}

// MediaSummary counts attachments by kind, including the legacy single
// image/video fields.
type MediaSummary struct {
	Images int
	Videos int
}

func Summarize(post *models.Post) MediaSummary {
	var s MediaSummary
	for _, m := range post.Media {
		switch m.Kind {
		case platform.MediaImage:
			s.Images++
		case platform.MediaVideo:
			s.Videos++
		}
	}
	if s.Images == 0 && post.ImageURL != nil && *post.ImageURL != "" {
		s.Images = 1
	}
	if s.Videos == 0 && post.VideoURL != nil && *post.VideoURL != "" {
		s.Videos = 1
	}
	return s
}

// Validate returns the violations of post against account's platform, in a
// fixed order. An empty result means the post can be published.
func Validate(post *models.Post, account *models.SocialAccount) []string {
	violations := []string{}

	switch {
	case account == nil:
		return append(violations, MsgAccountMissing)
	case !account.IsActive:
		return append(violations, MsgAccountInactive)
	case account.AccessToken == "":
		return append(violations, MsgTokenMissing)
	}

	return append(violations, Content(post.Content, account.Platform, Summarize(post))...)
}

// Content runs the platform checks that do not depend on the account state.
func Content(content string, kind platform.Kind, media MediaSummary) []string {
	rules := platform.RulesFor(kind)
	name := kind.DisplayName()
	violations := []string{}

	if n := utf8.RuneCountInString(content); n > rules.MaxLength {
		violations = append(violations, fmt.Sprintf("content is %d characters long, %s allows at most %d", n, name, rules.MaxLength))
	}
	if rules.Requires(platform.MediaImage) && media.Images == 0 {
		violations = append(violations, fmt.Sprintf("%s requires at least one image", name))
	}
	if rules.Requires(platform.MediaVideo) && media.Videos == 0 {
		violations = append(violations, fmt.Sprintf("%s requires at least one video", name))
	}
	if media.Images > 0 && !rules.SupportsImages {
		violations = append(violations, fmt.Sprintf("%s does not support images", name))
	} else if rules.SupportsImages && media.Images > rules.MaxImages {
		violations = append(violations, fmt.Sprintf("%s allows at most %d images, got %d", name, rules.MaxImages, media.Images))
	}
	if media.Videos > 0 && !rules.SupportsVideos {
		violations = append(violations, fmt.Sprintf("%s does not support videos", name))
	}

	return violations
}

// Draft validates unsaved content for kind and returns the rules used.
func Draft(content string, kind platform.Kind, media MediaSummary) Report {
	errs := Content(content, kind, media)
	return Report{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Rules:   platform.RulesFor(kind),
	}
}

// ForPost builds a Report for a stored post.
func ForPost(post *models.Post, account *models.SocialAccount) Report {
	errs := Validate(post, account)
	rules := platform.RestrictiveRules
	if account != nil {
		rules = platform.RulesFor(account.Platform)
	}
	return Report{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Rules:   rules,
	}
}
