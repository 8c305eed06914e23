package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/api/handlers"
	"github.com/maheshrc27/nextpost/internal/api/middleware"
	"github.com/maheshrc27/nextpost/internal/service"
)

type Services struct {
	Posts    service.PostService
	Accounts service.AccountService
	Media    service.MediaService
}

func NewApp(cfg config.Config, s Services) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    int(service.MaxUploadSize) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error(err.Error(), "path", c.Path())
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg).AuthMiddleware()

	auth := handlers.NewAuthHandler(cfg, s.Accounts)
	app.Get("/auth/:platform", authMiddleware, auth.AddSocialAccount)
	app.Get("/auth/:platform/callback", auth.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware)

	post := handlers.NewPostHandler(s.Posts)
	api.Get("/posts/stats", post.Stats)
	api.Post("/posts/validate", post.ValidateDraft)
	api.Post("/posts/validate-scheduled", post.ValidateScheduled)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.GetPost)
	api.Put("/posts/:id", post.UpdatePost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Get("/posts/:id/validate", post.ValidatePost)
	api.Get("/posts/:id/attempts", post.Attempts)
	api.Post("/posts/:id/publish", post.PublishNow)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Post("/posts/:id/cancel-schedule", post.CancelSchedule)
	api.Post("/posts/:id/cancel", post.CancelPost)
	api.Post("/posts/:id/duplicate", post.DuplicatePost)

	// social accounts api routes
	accounts := handlers.NewPlatformHandler(s.Accounts)
	api.Get("/accounts", accounts.ListSocialAccounts)
	api.Get("/accounts/stats", accounts.PlatformStats)
	api.Get("/accounts/:id/capabilities", accounts.Capabilities)
	api.Get("/accounts/:id/posts", post.ListAccountPosts)
	api.Post("/accounts/:id/toggle", accounts.ToggleSocialAccount)
	api.Post("/accounts/:id/test", accounts.TestConnection)
	api.Delete("/accounts/:id", accounts.DeleteSocialAccount)

	media := handlers.NewMediaHandler(s.Media)
	api.Post("/media", media.Upload)
	api.Get("/media/:id", media.GetMedia)
	api.Delete("/media/:id", media.RemoveMedia)

	return app
}
