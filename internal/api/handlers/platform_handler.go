package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/service"
)

type PlatformHandler struct {
	s service.AccountService
}

func NewPlatformHandler(s service.AccountService) *PlatformHandler {
	return &PlatformHandler{s: s}
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accountList, err := h.s.ListAccounts(c.Context(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if accountList == nil {
		accountList = []*models.SocialAccount{}
	}
	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) PlatformStats(c *fiber.Ctx) error {
	stats, err := h.s.PlatformStats(c.Context(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if stats == nil {
		stats = []models.PlatformStats{}
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *PlatformHandler) Capabilities(c *fiber.Ctx) error {
	accountID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid account id")
	}

	caps, err := h.s.Capabilities(c.Context(), GetUserID(c), accountID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(caps)
}

func (h *PlatformHandler) ToggleSocialAccount(c *fiber.Ctx) error {
	accountID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid account id")
	}

	account, err := h.s.ToggleActive(c.Context(), GetUserID(c), accountID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(account)
}

func (h *PlatformHandler) TestConnection(c *fiber.Ctx) error {
	accountID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid account id")
	}

	result, err := h.s.TestConnection(c.Context(), GetUserID(c), accountID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	accountID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid account id")
	}

	if err := h.s.RemoveAccount(c.Context(), GetUserID(c), accountID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
