package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/service"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return badRequest(c, "unable to parse request body")
	}

	post, err := h.s.CreatePost(c.Context(), GetUserID(c), &pc)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	status, ok := statusQuery(c)
	if !ok {
		return badRequest(c, "unknown status "+c.Query("status"))
	}

	posts, err := h.s.List(c.Context(), GetUserID(c), status)
	if err != nil {
		return writeError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) ListAccountPosts(c *fiber.Ctx) error {
	accountID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid account id")
	}
	status, ok := statusQuery(c)
	if !ok {
		return badRequest(c, "unknown status "+c.Query("status"))
	}

	posts, err := h.s.ListByAccount(c.Context(), GetUserID(c), accountID, status)
	if err != nil {
		return writeError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	post, err := h.s.PostInfo(c.Context(), GetUserID(c), postID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}
	var pu transfer.PostUpdate
	if err := c.BodyParser(&pu); err != nil {
		return badRequest(c, "unable to parse request body")
	}

	post, err := h.s.UpdatePost(c.Context(), GetUserID(c), postID, &pu)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	if err := h.s.Remove(c.Context(), GetUserID(c), postID); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledTime.IsZero() {
		return badRequest(c, "scheduled_time is required")
	}

	post, err := h.s.SchedulePost(c.Context(), GetUserID(c), postID, req.ScheduledTime)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) CancelSchedule(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	if err := h.s.CancelSchedule(c.Context(), GetUserID(c), postID); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "schedule cancelled",
	})
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	if err := h.s.CancelPost(c.Context(), GetUserID(c), postID); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "post cancelled",
	})
}

func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	taskID, err := h.s.PublishNow(c.Context(), GetUserID(c), postID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(transfer.PublishNowResponse{TaskID: taskID, PostID: postID})
}

func (h *PostHandler) DuplicatePost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	post, err := h.s.DuplicatePost(c.Context(), GetUserID(c), postID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ValidatePost(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	report, err := h.s.ValidatePost(c.Context(), GetUserID(c), postID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PostHandler) ValidateDraft(c *fiber.Ctx) error {
	var dv transfer.DraftValidation
	if err := c.BodyParser(&dv); err != nil {
		return badRequest(c, "unable to parse request body")
	}

	report, err := h.s.ValidateDraft(c.Context(), GetUserID(c), &dv)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PostHandler) Attempts(c *fiber.Ctx) error {
	postID, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid post id")
	}

	attempts, err := h.s.Attempts(c.Context(), GetUserID(c), postID)
	if err != nil {
		return writeError(c, err)
	}
	if attempts == nil {
		attempts = []*models.PublishAttempt{}
	}
	return c.Status(fiber.StatusOK).JSON(attempts)
}

func (h *PostHandler) ValidateScheduled(c *fiber.Ctx) error {
	reports, err := h.s.ValidateScheduled(c.Context(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"posts": reports})
}

func (h *PostHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.s.Stats(c.Context(), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

// statusQuery reads the optional status filter. An empty status means all.
func statusQuery(c *fiber.Ctx) (models.PostStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	return models.ParsePostStatus(raw)
}
