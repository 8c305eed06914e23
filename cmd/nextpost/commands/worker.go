package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	job "github.com/maheshrc27/nextpost/internal/jobs"
	"github.com/maheshrc27/nextpost/internal/queue"
	"github.com/maheshrc27/nextpost/internal/scheduler"
	"github.com/spf13/cobra"
)

var workerNoCron bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the publication worker and maintenance jobs",
	Long: `Consume publish tasks from the queue and run the periodic jobs:
token refresh, scheduled post validation and the failed post report.

Several workers may run against the same queue; each post is published
at most once.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerNoCron, "no-cron", false, "Consume tasks only, without the periodic jobs")
	workerCmd.Flags().DurationVar(&failedRetention, "failed-retention", defaultFailedRetention, "Age after which failed posts are reported")
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), *cfg, "nextpost-worker")
	if err != nil {
		return err
	}
	defer a.close()

	srv := queue.NewServer(a.redis, queue.ServerConfig{
		Queue:       cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Retry:       scheduler.RetryPolicy{MaxAttempts: cfg.Retry.InfraMaxAttempts, BaseDelay: cfg.Retry.BaseDelay},
	})
	if err := srv.Start(queue.NewServeMux(queue.NewWorker(a.publications))); err != nil {
		return err
	}
	slog.Info("worker started", "queue", cfg.QueueName, "concurrency", cfg.WorkerConcurrency)

	if !workerNoCron {
		c, err := job.NewCron(a.jobs(failedRetention))
		if err != nil {
			srv.Shutdown()
			return err
		}
		c.Start()
		defer c.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker")
	srv.Shutdown()
	return nil
}
