package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/pkg/utils"
)

// openCredential decrypts the tokens stored on an account.
func openCredential(sa *models.SocialAccount, key []byte) (*publisher.Credential, error) {
	accessToken, err := utils.Decrypt(sa.AccessToken, key)
	if err != nil {
		return nil, fmt.Errorf("decrypting access token of account %d: %w", sa.ID, err)
	}

	cred := &publisher.Credential{AccessToken: accessToken, PlatformUserID: sa.PlatformUserID}
	if sa.RefreshToken != "" {
		if cred.RefreshToken, err = utils.Decrypt(sa.RefreshToken, key); err != nil {
			return nil, fmt.Errorf("decrypting refresh token of account %d: %w", sa.ID, err)
		}
	}
	if sa.TokenExpiresAt != nil {
		cred.ExpiresAt = *sa.TokenExpiresAt
	}
	return cred, nil
}

// sealCredential encrypts cred onto sa. An empty refresh token stays empty.
func sealCredential(sa *models.SocialAccount, cred *publisher.Credential, key []byte) error {
	var err error
	if sa.AccessToken, err = utils.Encrypt([]byte(cred.AccessToken), key); err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	sa.RefreshToken = ""
	if cred.RefreshToken != "" {
		if sa.RefreshToken, err = utils.Encrypt([]byte(cred.RefreshToken), key); err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
	}
	sa.TokenExpiresAt = nil
	if !cred.ExpiresAt.IsZero() {
		expiresAt := cred.ExpiresAt.UTC()
		sa.TokenExpiresAt = &expiresAt
	}
	return nil
}

// mediaRefs resolves what gets published: attachments in display order, or
// the legacy single image/video fields when there are none.
func mediaRefs(post *models.Post) []publisher.MediaRef {
	if len(post.Media) > 0 {
		attachments := slices.Clone(post.Media)
		slices.SortStableFunc(attachments, func(a, b models.MediaAttachment) int { return a.Order - b.Order })
		refs := make([]publisher.MediaRef, 0, len(attachments))
		for _, m := range attachments {
			refs = append(refs, publisher.MediaRef{URL: m.URL, Kind: m.Kind, ThumbnailURL: m.ThumbnailURL, Overrides: m.Overrides})
		}
		return refs
	}

	var refs []publisher.MediaRef
	if post.ImageURL != nil && *post.ImageURL != "" {
		refs = append(refs, publisher.MediaRef{URL: *post.ImageURL, Kind: platform.MediaImage})
	}
	if post.VideoURL != nil && *post.VideoURL != "" {
		refs = append(refs, publisher.MediaRef{URL: *post.VideoURL, Kind: platform.MediaVideo})
	}
	return refs
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
