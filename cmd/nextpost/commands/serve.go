package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/nextpost/internal/api"
	"github.com/spf13/cobra"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the REST API for posts, media and connected accounts.

Publishing happens in the worker; the API only enqueues tasks.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, *cfg, "nextpost-api")
	if err != nil {
		return err
	}
	defer a.close()

	if serveMigrate {
		if err := applyMigrations(ctx, a.db); err != nil {
			return err
		}
	}

	app := api.NewApp(*cfg, api.Services{
		Posts:    a.posts,
		Accounts: a.accounts,
		Media:    a.media,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	return gracefulShutdown(app, errCh)
}

func gracefulShutdown(app *fiber.App, errCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	slog.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		return err
	}
	slog.Info("server shutdown complete")
	return nil
}
