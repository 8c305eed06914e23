package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/nextpost/migrations"
	"github.com/spf13/cobra"
)

var migrateList bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations that have not run yet.

Migrations run inside an advisory lock, so concurrent invocations are safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateList {
			all, err := migrations.Load()
			if err != nil {
				return err
			}
			for _, m := range all {
				fmt.Fprintln(cmd.OutOrStdout(), m.Version)
			}
			return nil
		}

		db, err := openDB(cmd.Context(), cfg.PostgresURI)
		if err != nil {
			return err
		}
		defer closeDB(db)

		return applyMigrations(cmd.Context(), db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "List embedded migrations without applying them")
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if len(applied) == 0 {
		slog.Info("schema is up to date")
		return nil
	}
	for _, v := range applied {
		slog.Info("migration applied", "version", v)
	}
	return nil
}
