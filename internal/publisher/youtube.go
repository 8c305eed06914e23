package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/platform"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeMaxTitle = 100

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

var youtubeScopes = []string{
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.upload",
}

type YoutubePublisher struct {
	oauth    *oauth2.Config
	client   *http.Client
	transfer *http.Client

	// endpoint overrides the YouTube Data API base URL when set.
	endpoint  string
	revokeURL string
}

func NewYoutubePublisher(cfg config.Google, client *http.Client) *YoutubePublisher {
	return &YoutubePublisher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       youtubeScopes,
			Endpoint:     google.Endpoint,
		},
		client:    client,
		transfer:  NewTransferClient(client),
		revokeURL: googleRevokeURL,
	}
}

func (s *YoutubePublisher) AuthURL(_ platform.Kind, state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *YoutubePublisher) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (*Credential, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" {
		return nil, errors.New("google oauth2 configuration is incomplete")
	}

	opts := []oauth2.AuthCodeOption{}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	token, err := s.oauth.Exchange(s.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, classifyGoogle(err)
	}
	if token.RefreshToken == "" {
		slog.Warn("google token exchange returned no refresh token")
	}

	return &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (s *YoutubePublisher) RefreshToken(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &AuthError{Platform: platform.Youtube, Message: "refresh token missing"}
	}

	token, err := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, classifyGoogle(err)
	}

	refresh := token.RefreshToken
	if refresh == "" {
		refresh = cred.RefreshToken
	}
	return &Credential{
		AccessToken:    token.AccessToken,
		RefreshToken:   refresh,
		ExpiresAt:      token.Expiry,
		PlatformUserID: cred.PlatformUserID,
	}, nil
}

// RevokeAccess revokes the refresh token when present, which also
// invalidates the access tokens minted from it.
func (s *YoutubePublisher) RevokeAccess(ctx context.Context, cred *Credential) error {
	token := cred.RefreshToken
	if token == "" {
		token = cred.AccessToken
	}
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransientNetworkError{Platform: platform.Youtube, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return &TransientNetworkError{Platform: platform.Youtube, Code: fmt.Sprint(resp.StatusCode), Err: errors.New(http.StatusText(resp.StatusCode))}
	default:
		return &AuthError{Platform: platform.Youtube, Code: fmt.Sprint(resp.StatusCode), Message: "token could not be revoked"}
	}
}

func (s *YoutubePublisher) ListPublishableTargets(ctx context.Context, cred *Credential) ([]Target, error) {
	svc, err := s.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(err)
	}

	targets := make([]Target, 0, len(resp.Items))
	for _, ch := range resp.Items {
		t := Target{ID: ch.Id, Kind: platform.Youtube}
		if ch.Snippet != nil {
			t.Name = ch.Snippet.Title
			t.Username = ch.Snippet.CustomUrl
			if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
				t.ProfilePicture = ch.Snippet.Thumbnails.Default.Url
			}
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (s *YoutubePublisher) TestConnection(ctx context.Context, cred *Credential) (map[string]any, error) {
	targets, err := s.ListPublishableTargets(ctx, cred)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &PlatformRejectedError{Platform: platform.Youtube, Message: "no channel for this account"}
	}
	return map[string]any{"id": targets[0].ID, "name": targets[0].Name}, nil
}

// Publish streams the first attached video from its public URL into a
// resumable upload. The first line of the content becomes the title.
func (s *YoutubePublisher) Publish(ctx context.Context, cred *Credential, _ Target, content string, media []MediaRef) (*Result, error) {
	video, ok := firstOfKind(media, platform.MediaVideo)
	if !ok {
		return nil, &PlatformRejectedError{Platform: platform.Youtube, Message: "YouTube requires a video"}
	}

	svc, err := s.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, video.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := s.transfer.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Platform: platform.Youtube, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransientNetworkError{Platform: platform.Youtube, Err: fmt.Errorf("downloading media: unexpected status %d", resp.StatusCode)}
	}

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(content),
			Description: content,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	created, err := svc.Videos.Insert([]string{"snippet", "status"}, upload).Media(resp.Body).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(err)
	}

	return &Result{
		PlatformPostID: created.Id,
		PublishedURL:   "https://youtu.be/" + created.Id,
	}, nil
}

func (s *YoutubePublisher) service(ctx context.Context, cred *Credential) (*youtube.Service, error) {
	token := &oauth2.Token{AccessToken: cred.AccessToken}
	httpClient := oauth2.NewClient(s.oauthContext(ctx), oauth2.StaticTokenSource(token))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube service: %w", err)
	}
	return svc, nil
}

func (s *YoutubePublisher) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func videoTitle(content string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > youtubeMaxTitle {
		title = string([]rune(title)[:youtubeMaxTitle])
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}

func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		reason := ""
		if len(apiErr.Errors) > 0 {
			reason = apiErr.Errors[0].Reason
		}
		switch {
		case apiErr.Code == http.StatusForbidden && (reason == "quotaExceeded" || reason == "rateLimitExceeded"):
			return &TransientNetworkError{Platform: platform.Youtube, Code: reason, Err: err}
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return &AuthError{Platform: platform.Youtube, Code: fmt.Sprint(apiErr.Code), Message: apiErr.Message}
		case apiErr.Code >= 500, apiErr.Code == http.StatusTooManyRequests:
			return &TransientNetworkError{Platform: platform.Youtube, Code: fmt.Sprint(apiErr.Code), Err: err}
		default:
			return &PlatformRejectedError{Platform: platform.Youtube, Code: fmt.Sprint(apiErr.Code), Subcode: reason, Message: apiErr.Message}
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return &TransientNetworkError{Platform: platform.Youtube, Code: retrieveErr.ErrorCode, Err: err}
		}
		return &AuthError{Platform: platform.Youtube, Code: retrieveErr.ErrorCode, Message: retrieveErr.ErrorDescription}
	}

	return &TransientNetworkError{Platform: platform.Youtube, Err: err}
}
