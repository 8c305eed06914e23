// Package publisher holds the per-platform protocol drivers. Each driver
// translates remote failures into AuthError, TransientNetworkError or
// PlatformRejectedError so callers can decide on retries without knowing the
// platform.
package publisher

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/nextpost/internal/platform"
)

// LongLivedTokenTTL is assumed when a token response carries no expiry.
const LongLivedTokenTTL = 60 * 24 * time.Hour

type Credential struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	PlatformUserID string
}

// Target is an identity content can be published to: a page, a business
// account, a channel.
type Target struct {
	ID             string        `json:"id"`
	Kind           platform.Kind `json:"platform"`
	Name           string        `json:"name"`
	Username       string        `json:"username"`
	ProfilePicture string        `json:"profile_picture"`
	LinkedPageID   string        `json:"linked_page_id,omitempty"`
	// AccessToken is set when the target uses its own token (Facebook pages).
	AccessToken string `json:"-"`
}

// MediaRef is one attached file. Overrides carries the per-attachment
// settings saved with the post, such as "caption".
type MediaRef struct {
	URL          string
	Kind         platform.MediaKind
	ThumbnailURL string
	Overrides    map[string]any
}

// Caption returns the attachment's caption override, or fallback when none
// is set.
func (m MediaRef) Caption(fallback string) string {
	if c, ok := m.Overrides["caption"].(string); ok && strings.TrimSpace(c) != "" {
		return c
	}
	return fallback
}

type Result struct {
	PlatformPostID string
	PublishedURL   string
}

type Publisher interface {
	ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (*Credential, error)
	ListPublishableTargets(ctx context.Context, cred *Credential) ([]Target, error)
	Publish(ctx context.Context, cred *Credential, target Target, content string, media []MediaRef) (*Result, error)
}

// TokenRefresher is implemented by publishers whose tokens can be renewed
// without user interaction.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, cred *Credential) (*Credential, error)
}

// ConnectionTester checks that a credential is still accepted.
type ConnectionTester interface {
	TestConnection(ctx context.Context, cred *Credential) (map[string]any, error)
}

// Revoker withdraws the application's access when an account is removed.
type Revoker interface {
	RevokeAccess(ctx context.Context, cred *Credential) error
}

// AuthURLBuilder returns the consent page for the platform's OAuth flow.
type AuthURLBuilder interface {
	AuthURL(kind platform.Kind, state string) string
}

// NewHTTPClient bounds each platform API request by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewTransferClient shares the transport of client without its timeout.
// Media streams can outlast any single API request; they are bounded by the
// caller's context instead.
func NewTransferClient(client *http.Client) *http.Client {
	return &http.Client{Transport: client.Transport}
}

func images(media []MediaRef) []MediaRef {
	var out []MediaRef
	for _, m := range media {
		if m.Kind == platform.MediaImage {
			out = append(out, m)
		}
	}
	return out
}

func firstOfKind(media []MediaRef, kind platform.MediaKind) (MediaRef, bool) {
	for _, m := range media {
		if m.Kind == kind {
			return m, true
		}
	}
	return MediaRef{}, false
}
