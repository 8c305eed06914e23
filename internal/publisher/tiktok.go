package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

const tiktokAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"

const tiktokScopes = "user.info.basic,user.info.profile,video.publish,video.upload"

type TiktokPublisher struct {
	cfg    config.Tiktok
	client *http.Client
}

func NewTiktokPublisher(cfg config.Tiktok, client *http.Client) *TiktokPublisher {
	return &TiktokPublisher{cfg: cfg, client: client}
}

func (s *TiktokPublisher) AuthURL(_ platform.Kind, state string) string {
	params := url.Values{}
	params.Set("client_key", s.cfg.ClientKey)
	params.Set("scope", tiktokScopes)
	params.Set("response_type", "code")
	params.Set("redirect_uri", s.cfg.RedirectURI)
	if state != "" {
		params.Set("state", state)
	}
	return tiktokAuthorizeURL + "?" + params.Encode()
}

func (s *TiktokPublisher) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (*Credential, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	if redirectURI == "" {
		redirectURI = s.cfg.RedirectURI
	}

	data := url.Values{}
	data.Set("client_key", s.cfg.ClientKey)
	data.Set("client_secret", s.cfg.ClientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)

	return s.token(ctx, data)
}

func (s *TiktokPublisher) RefreshToken(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &AuthError{Platform: platform.Tiktok, Message: "refresh token missing"}
	}

	data := url.Values{}
	data.Set("client_key", s.cfg.ClientKey)
	data.Set("client_secret", s.cfg.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)

	return s.token(ctx, data)
}

func (s *TiktokPublisher) token(ctx context.Context, data url.Values) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v2/oauth/token/"), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResponse transfer.TiktokTokenResponse
	status, err := s.send(req, &tokenResponse)
	if err != nil {
		return nil, err
	}
	if tokenResponse.Error != "" || status != http.StatusOK {
		code := tokenResponse.Error
		if code == "invalid_grant" {
			return nil, &AuthError{Platform: platform.Tiktok, Code: code, Message: tokenResponse.ErrorDescription}
		}
		return nil, classifyTiktok(status, code, tokenResponse.ErrorDescription)
	}

	return &Credential{
		AccessToken:    tokenResponse.AccessToken,
		RefreshToken:   tokenResponse.RefreshToken,
		ExpiresAt:      time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
		PlatformUserID: tokenResponse.OpenID,
	}, nil
}

func (s *TiktokPublisher) RevokeAccess(ctx context.Context, cred *Credential) error {
	data := url.Values{}
	data.Set("client_key", s.cfg.ClientKey)
	data.Set("client_secret", s.cfg.ClientSecret)
	data.Set("token", cred.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v2/oauth/revoke/"), strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result transfer.TiktokTokenResponse
	status, err := s.send(req, &result)
	if err != nil {
		return err
	}
	if result.Error != "" || status != http.StatusOK {
		return classifyTiktok(status, result.Error, result.ErrorDescription)
	}
	return nil
}

// ListPublishableTargets returns the authorizing user; TikTok has no
// secondary identities.
func (s *TiktokPublisher) ListPublishableTargets(ctx context.Context, cred *Credential) ([]Target, error) {
	user, err := s.userInfo(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	return []Target{{
		ID:             user.OpenID,
		Kind:           platform.Tiktok,
		Name:           user.DisplayName,
		Username:       user.Username,
		ProfilePicture: user.AvatarURL,
	}}, nil
}

func (s *TiktokPublisher) TestConnection(ctx context.Context, cred *Credential) (map[string]any, error) {
	user, err := s.userInfo(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": user.OpenID, "name": user.DisplayName, "username": user.Username}, nil
}

func (s *TiktokPublisher) userInfo(ctx context.Context, accessToken string) (*transfer.TiktokUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("/v2/user/info/?fields=open_id,avatar_url,display_name,username"), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var result transfer.TikTokResponse
	status, err := s.send(req, &result)
	if err != nil {
		return nil, err
	}
	if err := checkTiktok(status, result.Error); err != nil {
		return nil, err
	}
	return &result.Data.User, nil
}

// Publish pulls the media from its public URL. A video wins over images when
// both are attached.
func (s *TiktokPublisher) Publish(ctx context.Context, cred *Credential, target Target, content string, media []MediaRef) (*Result, error) {
	creator, err := s.creatorInfo(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	privacy := "SELF_ONLY"
	if slices.Contains(creator.PrivacyLevelOptions, "PUBLIC_TO_EVERYONE") {
		privacy = "PUBLIC_TO_EVERYONE"
	} else if len(creator.PrivacyLevelOptions) > 0 {
		privacy = creator.PrivacyLevelOptions[0]
	}

	var (
		path    string
		payload any
	)
	if video, ok := firstOfKind(media, platform.MediaVideo); ok {
		path = "/v2/post/publish/video/init/"
		payload = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 content,
				PrivacyLevel:          privacy,
				DisableDuet:           creator.DuetDisabled,
				DisableComment:        creator.CommentDisabled,
				DisableStitch:         creator.StitchDisabled,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: video.URL,
			},
		}
	} else if imgs := images(media); len(imgs) > 0 {
		urls := make([]string, 0, len(imgs))
		for _, img := range imgs {
			urls = append(urls, img.URL)
		}
		path = "/v2/post/publish/content/init/"
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:          content,
				PrivacyLevel:   privacy,
				DisableComment: creator.CommentDisabled,
				AutoAddMusic:   true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: urls,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	} else {
		return nil, &PlatformRejectedError{Platform: platform.Tiktok, Message: "TikTok requires a video or photos"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	var result transfer.TikTokUploadResponse
	status, err := s.send(req, &result)
	if err != nil {
		return nil, err
	}
	if err := checkTiktok(status, result.Error); err != nil {
		return nil, err
	}

	res := &Result{PlatformPostID: result.Data.PublishID}
	if target.Username != "" {
		res.PublishedURL = "https://www.tiktok.com/@" + target.Username
	}
	return res, nil
}

func (s *TiktokPublisher) creatorInfo(ctx context.Context, accessToken string) (*transfer.TiktokCreatorInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v2/post/publish/creator_info/query/"), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	var result transfer.TiktokCreatorInfoResponse
	status, err := s.send(req, &result)
	if err != nil {
		return nil, err
	}
	if err := checkTiktok(status, result.Error); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (s *TiktokPublisher) endpoint(path string) string {
	return strings.TrimRight(s.cfg.APIURL, "/") + path
}

func (s *TiktokPublisher) send(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, &TransientNetworkError{Platform: platform.Tiktok, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransientNetworkError{Platform: platform.Tiktok, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, classifyTiktok(resp.StatusCode, "", http.StatusText(resp.StatusCode))
		}
		return resp.StatusCode, &PlatformRejectedError{Platform: platform.Tiktok, Message: "invalid response: " + err.Error()}
	}
	return resp.StatusCode, nil
}

func checkTiktok(status int, e transfer.TiktokError) error {
	if status == http.StatusOK && (e.Code == "" || e.Code == "ok") {
		return nil
	}
	slog.Info("tiktok api error", "status", status, "code", e.Code, "message", e.Message, "log_id", e.LogID)
	return classifyTiktok(status, e.Code, e.Message)
}
