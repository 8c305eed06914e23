package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/nextpost/configs"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nextpost",
	Short: "Nextpost - schedule and publish posts to social platforms",
	Long: `Nextpost schedules posts for connected social accounts and publishes
them when they fall due.

Run "serve" for the HTTP API, "worker" for the publication queue and
maintenance jobs, and "migrate" to bring the database schema up to date.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("failed to load environment file", "file", envFile, "error", err)
		}
		cfg = config.LoadConfig()
		initLogger(*cfg)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
}

func initLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
