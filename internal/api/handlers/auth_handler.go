package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/service"
	"github.com/maheshrc27/nextpost/pkg/utils"
)

const stateTTL = 15 * time.Minute

// AuthHandler runs the OAuth flow that links social accounts.
type AuthHandler struct {
	s   service.AccountService
	cfg config.Config
}

func NewAuthHandler(cfg config.Config, s service.AccountService) *AuthHandler {
	return &AuthHandler{s: s, cfg: cfg}
}

func (h *AuthHandler) AddSocialAccount(c *fiber.Ctx) error {
	kind, ok := platform.ParseKind(c.Params("platform"))
	if !ok {
		return badRequest(c, "unknown platform")
	}

	state, err := utils.GenerateStateToken(h.cfg.SecretKey, GetUserID(c), string(kind), stateTTL)
	if err != nil {
		return writeError(c, err)
	}

	authURL, err := h.s.AuthURL(c.Context(), kind, state)
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) CallbackHandler(c *fiber.Ctx) error {
	kind, ok := platform.ParseKind(c.Params("platform"))
	if !ok {
		return badRequest(c, "unknown platform")
	}
	if reason := c.Query("error"); reason != "" {
		slog.Info("consent declined", "platform", kind, "reason", reason)
		return c.Redirect(h.redirect("declined"), fiber.StatusTemporaryRedirect)
	}

	claims, err := utils.ValidateStateToken(h.cfg.SecretKey, c.Query("state"))
	if err != nil || claims.Platform != string(kind) {
		return badRequest(c, "unable to validate state")
	}

	accounts, err := h.s.ConnectAccount(c.Context(), claims.UserID, kind, c.Query("code"), h.redirectURI(kind))
	if err != nil {
		return writeError(c, err)
	}

	slog.Info("accounts connected", "user_id", claims.UserID, "platform", kind, "count", len(accounts))
	return c.Redirect(h.redirect("connected"), fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirect(status string) string {
	return fmt.Sprintf("%s/dashboard/accounts?status=%s", h.cfg.FrontendURL, status)
}

func (h *AuthHandler) redirectURI(kind platform.Kind) string {
	switch kind.Family() {
	case platform.FamilyMeta:
		return h.cfg.Facebook.RedirectURI
	case platform.FamilyTiktok:
		return h.cfg.Tiktok.RedirectURI
	case platform.FamilyGoogle:
		return h.cfg.Google.RedirectURI
	}
	return ""
}
