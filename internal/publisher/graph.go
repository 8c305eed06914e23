package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

const graphDialogURL = "https://www.facebook.com/v18.0/dialog/oauth"

var graphScopes = []string{
	"pages_manage_posts",
	"pages_read_engagement",
	"pages_show_list",
	"instagram_basic",
	"instagram_content_publish",
}

// GraphPublisher drives Facebook pages and the Instagram business accounts
// linked to them through the Graph API.
type GraphPublisher struct {
	cfg    config.Facebook
	client *http.Client

	pollInterval time.Duration
	pollAttempts int
}

func NewGraphPublisher(cfg config.Facebook, client *http.Client) *GraphPublisher {
	return &GraphPublisher{
		cfg:          cfg,
		client:       client,
		pollInterval: 3 * time.Second,
		pollAttempts: 10,
	}
}

func (g *GraphPublisher) AuthURL(_ platform.Kind, state string) string {
	params := url.Values{}
	params.Set("client_id", g.cfg.AppID)
	params.Set("redirect_uri", g.cfg.RedirectURI)
	params.Set("scope", strings.Join(graphScopes, ","))
	params.Set("response_type", "code")
	if state != "" {
		params.Set("state", state)
	}
	return graphDialogURL + "?" + params.Encode()
}

// ExchangeCodeForToken trades the OAuth code for a short-lived user token and
// immediately extends it to a long-lived one.
func (g *GraphPublisher) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (*Credential, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	if redirectURI == "" {
		redirectURI = g.cfg.RedirectURI
	}

	params := url.Values{}
	params.Set("client_id", g.cfg.AppID)
	params.Set("client_secret", g.cfg.AppSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("code", code)

	var short transfer.GraphToken
	if err := g.do(ctx, platform.FacebookPage, http.MethodGet, "/oauth/access_token", params, &short); err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}

	cred, err := g.exchange(ctx, short.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	return cred, nil
}

func (g *GraphPublisher) RefreshToken(ctx context.Context, cred *Credential) (*Credential, error) {
	next, err := g.exchange(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	next.PlatformUserID = cred.PlatformUserID
	return next, nil
}

func (g *GraphPublisher) exchange(ctx context.Context, token string) (*Credential, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", g.cfg.AppID)
	params.Set("client_secret", g.cfg.AppSecret)
	params.Set("fb_exchange_token", token)

	var long transfer.GraphToken
	if err := g.do(ctx, platform.FacebookPage, http.MethodGet, "/oauth/access_token", params, &long); err != nil {
		return nil, err
	}

	ttl := LongLivedTokenTTL
	if long.ExpiresIn > 0 {
		ttl = time.Duration(long.ExpiresIn) * time.Second
	}
	return &Credential{
		AccessToken: long.AccessToken,
		ExpiresAt:   time.Now().Add(ttl),
	}, nil
}

// ListPublishableTargets returns the pages the user may publish to, plus a
// feed and a story target for every linked Instagram business account.
func (g *GraphPublisher) ListPublishableTargets(ctx context.Context, cred *Credential) ([]Target, error) {
	params := url.Values{}
	params.Set("access_token", cred.AccessToken)
	params.Set("fields", "id,name,access_token,category,tasks,picture,instagram_business_account{id,username,profile_picture_url}")

	var pages transfer.GraphPages
	if err := g.do(ctx, platform.FacebookPage, http.MethodGet, "/me/accounts", params, &pages); err != nil {
		return nil, err
	}

	var targets []Target
	for _, page := range pages.Data {
		if !slices.Contains(page.Tasks, "MANAGE") || !slices.Contains(page.Tasks, "CREATE_CONTENT") {
			slog.Debug("skipping page without publish permission", "page_id", page.ID)
			continue
		}
		targets = append(targets, Target{
			ID:             page.ID,
			Kind:           platform.FacebookPage,
			Name:           page.Name,
			Username:       page.Name,
			ProfilePicture: page.Picture.Data.URL,
			AccessToken:    page.AccessToken,
		})

		ig := page.InstagramBusinessAccount
		if ig == nil || ig.ID == "" {
			continue
		}
		for _, kind := range []platform.Kind{platform.InstagramFeed, platform.InstagramStory} {
			targets = append(targets, Target{
				ID:             ig.ID,
				Kind:           kind,
				Name:           page.Name,
				Username:       ig.Username,
				ProfilePicture: ig.ProfilePictureURL,
				LinkedPageID:   page.ID,
				AccessToken:    page.AccessToken,
			})
		}
	}
	return targets, nil
}

func (g *GraphPublisher) TestConnection(ctx context.Context, cred *Credential) (map[string]any, error) {
	params := url.Values{}
	params.Set("access_token", cred.AccessToken)
	params.Set("fields", "id,name")

	var me transfer.GraphMe
	if err := g.do(ctx, platform.FacebookPage, http.MethodGet, "/me", params, &me); err != nil {
		return nil, err
	}
	return map[string]any{"id": me.ID, "name": me.Name}, nil
}

func (g *GraphPublisher) Publish(ctx context.Context, cred *Credential, target Target, content string, media []MediaRef) (*Result, error) {
	token := target.AccessToken
	if token == "" {
		token = cred.AccessToken
	}

	switch target.Kind {
	case platform.FacebookPage:
		return g.publishPage(ctx, token, target.ID, content, media)
	case platform.InstagramFeed, platform.InstagramStory:
		return g.publishInstagram(ctx, token, target, content, media)
	default:
		return nil, &UnsupportedPlatformError{Platform: target.Kind}
	}
}

func (g *GraphPublisher) publishPage(ctx context.Context, token, pageID, content string, media []MediaRef) (*Result, error) {
	params := url.Values{}
	params.Set("access_token", token)

	var path string
	imgs := images(media)
	video, hasVideo := firstOfKind(media, platform.MediaVideo)

	switch {
	case hasVideo:
		path = "/" + pageID + "/videos"
		params.Set("file_url", video.URL)
		params.Set("description", video.Caption(content))
	case len(imgs) == 1:
		path = "/" + pageID + "/photos"
		params.Set("url", imgs[0].URL)
		params.Set("caption", imgs[0].Caption(content))
	case len(imgs) > 1:
		// Multi-photo posts attach unpublished photos to a feed story.
		for i, img := range imgs {
			id, err := g.uploadUnpublishedPhoto(ctx, token, pageID, img)
			if err != nil {
				return nil, err
			}
			params.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, id))
		}
		path = "/" + pageID + "/feed"
		params.Set("message", content)
	default:
		path = "/" + pageID + "/feed"
		params.Set("message", content)
	}

	var created struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := g.do(ctx, platform.FacebookPage, http.MethodPost, path, params, &created); err != nil {
		return nil, err
	}

	id := created.PostID
	if id == "" {
		id = created.ID
	}
	return &Result{
		PlatformPostID: id,
		PublishedURL:   "https://facebook.com/" + id,
	}, nil
}

func (g *GraphPublisher) uploadUnpublishedPhoto(ctx context.Context, token, pageID string, img MediaRef) (string, error) {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("url", img.URL)
	params.Set("published", "false")
	if caption := img.Caption(""); caption != "" {
		params.Set("caption", caption)
	}

	var photo transfer.GraphID
	if err := g.do(ctx, platform.FacebookPage, http.MethodPost, "/"+pageID+"/photos", params, &photo); err != nil {
		return "", err
	}
	return photo.ID, nil
}

// publishInstagram runs the two-phase container flow. A failure in the
// second phase fails the whole publish and a retry starts over with a fresh
// container.
func (g *GraphPublisher) publishInstagram(ctx context.Context, token string, target Target, content string, media []MediaRef) (*Result, error) {
	if len(media) == 0 {
		return nil, &PlatformRejectedError{Platform: target.Kind, Message: "Instagram requires at least one image"}
	}

	var (
		containerID string
		err         error
	)
	imgs := images(media)
	switch {
	case target.Kind == platform.InstagramStory:
		containerID, err = g.createContainer(ctx, token, target, media[0], "", "STORIES", false)
	case len(imgs) > 1:
		containerID, err = g.createCarousel(ctx, token, target, content, imgs)
	case media[0].Kind == platform.MediaVideo:
		containerID, err = g.createContainer(ctx, token, target, media[0], media[0].Caption(content), "REELS", false)
	default:
		containerID, err = g.createContainer(ctx, token, target, media[0], media[0].Caption(content), "", false)
	}
	if err != nil {
		return nil, err
	}

	if err := g.waitContainer(ctx, token, target.Kind, containerID); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("access_token", token)
	params.Set("creation_id", containerID)

	var published transfer.GraphID
	if err := g.do(ctx, target.Kind, http.MethodPost, "/"+target.ID+"/media_publish", params, &published); err != nil {
		return nil, err
	}

	return &Result{
		PlatformPostID: published.ID,
		PublishedURL:   fmt.Sprintf("https://instagram.com/p/%s/", published.ID),
	}, nil
}

func (g *GraphPublisher) createContainer(ctx context.Context, token string, target Target, m MediaRef, caption, mediaType string, carouselItem bool) (string, error) {
	params := url.Values{}
	params.Set("access_token", token)
	if m.Kind == platform.MediaVideo {
		params.Set("video_url", m.URL)
		if mediaType == "" {
			mediaType = "VIDEO"
		}
	} else {
		params.Set("image_url", m.URL)
	}
	if mediaType != "" {
		params.Set("media_type", mediaType)
	}
	if caption != "" {
		params.Set("caption", caption)
	}
	if carouselItem {
		params.Set("is_carousel_item", "true")
	}

	var container transfer.GraphID
	if err := g.do(ctx, target.Kind, http.MethodPost, "/"+target.ID+"/media", params, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", &PlatformRejectedError{Platform: target.Kind, Message: "no container id returned"}
	}
	return container.ID, nil
}

func (g *GraphPublisher) createCarousel(ctx context.Context, token string, target Target, caption string, imgs []MediaRef) (string, error) {
	children := make([]string, 0, len(imgs))
	for _, img := range imgs {
		id, err := g.createContainer(ctx, token, target, img, "", "", true)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	params := url.Values{}
	params.Set("access_token", token)
	params.Set("media_type", "CAROUSEL")
	params.Set("caption", caption)
	params.Set("children", strings.Join(children, ","))

	var container transfer.GraphID
	if err := g.do(ctx, target.Kind, http.MethodPost, "/"+target.ID+"/media", params, &container); err != nil {
		return "", err
	}
	return container.ID, nil
}

// waitContainer polls until the container has finished processing. Image
// containers are usually ready on the first poll.
func (g *GraphPublisher) waitContainer(ctx context.Context, token string, kind platform.Kind, containerID string) error {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", "status_code")

	for i := 0; i < g.pollAttempts; i++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := g.do(ctx, kind, http.MethodGet, "/"+containerID, params, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case "", "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &PlatformRejectedError{Platform: kind, Message: "media container " + strings.ToLower(status.StatusCode)}
		}

		select {
		case <-ctx.Done():
			return &TransientNetworkError{Platform: kind, Err: ctx.Err()}
		case <-time.After(g.pollInterval):
		}
	}
	return &TransientNetworkError{Platform: kind, Err: errors.New("media container still processing")}
}

func (g *GraphPublisher) do(ctx context.Context, kind platform.Kind, method, path string, params url.Values, out any) error {
	endpoint := strings.TrimRight(g.cfg.GraphURL, "/") + path

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransientNetworkError{Platform: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientNetworkError{Platform: kind, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp transfer.GraphErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr != nil || errResp.Error == nil {
			errResp.Error = &transfer.GraphError{Message: http.StatusText(resp.StatusCode)}
		}
		slog.Info("graph api error",
			"path", path,
			"status", resp.StatusCode,
			"code", errResp.Error.Code,
			"subcode", errResp.Error.ErrorSubcode,
			"message", errResp.Error.Message,
		)
		return classifyGraph(kind, resp.StatusCode, *errResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &PlatformRejectedError{Platform: kind, Code: strconv.Itoa(resp.StatusCode), Message: "invalid response: " + err.Error()}
	}
	return nil
}
