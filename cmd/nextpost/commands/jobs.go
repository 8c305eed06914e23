package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	job "github.com/maheshrc27/nextpost/internal/jobs"
	"github.com/spf13/cobra"
)

const defaultFailedRetention = 30 * 24 * time.Hour

var failedRetention time.Duration

var jobsCmd = &cobra.Command{
	Use:   "jobs [refresh-tokens|validate-scheduled|report-failed|recover-publishing]",
	Short: "Run the maintenance jobs",
	Long: `Without arguments, run the periodic jobs on their cron schedule until
interrupted. With a job name, run that job once and exit.

Use this with "worker --no-cron" to keep the jobs on a single host.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"refresh-tokens", "validate-scheduled", "report-failed", "recover-publishing"},
	RunE:      runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().DurationVar(&failedRetention, "failed-retention", defaultFailedRetention, "Age after which failed posts are reported")
}

func runJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), *cfg, "nextpost-jobs")
	if err != nil {
		return err
	}
	defer a.close()

	jobs := a.jobs(failedRetention)

	if len(args) == 1 {
		switch args[0] {
		case "refresh-tokens":
			jobs.TokenRefresh.RefreshTokens()
		case "validate-scheduled":
			jobs.ScheduledValidation.ValidateScheduledPosts()
		case "report-failed":
			jobs.FailedCleanup.ReportFailedPosts()
		case "recover-publishing":
			jobs.StalePublishing.RecoverStalePosts()
		default:
			return fmt.Errorf("unknown job %q", args[0])
		}
		return nil
	}

	c, err := job.NewCron(jobs)
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()
	slog.Info("jobs scheduled", "entries", len(c.Entries()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	return nil
}
