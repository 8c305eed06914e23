package handlers

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/nextpost/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(s service.MediaService) *MediaHandler {
	return &MediaHandler{s: s}
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if fileHeader.Size > service.MaxUploadSize {
		return badRequest(c, "file is too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "unable to read file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "unable to read file")
	}

	asset, err := h.s.Upload(c.Context(), GetUserID(c), fileHeader.Filename, data)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(asset)
}

func (h *MediaHandler) GetMedia(c *fiber.Ctx) error {
	assetID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid media id")
	}

	asset, err := h.s.Get(c.Context(), GetUserID(c), assetID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(asset)
}

func (h *MediaHandler) RemoveMedia(c *fiber.Ctx) error {
	assetID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid media id")
	}

	if err := h.s.Remove(c.Context(), GetUserID(c), assetID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
