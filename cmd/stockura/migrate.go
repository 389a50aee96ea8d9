package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ueebee/stockura-scheduler/internal/config"
)

// migrateCmd applies the embedded schema to a Postgres schedule_store_url.
// SQLite backends create their fixed schema at connection time and have
// nothing for this command to do.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the schedule store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("migrate: load config: %w", err)
			}
			if !strings.HasPrefix(cfg.ScheduleStoreURL, "postgres://") && !strings.HasPrefix(cfg.ScheduleStoreURL, "postgresql://") {
				slog.Info("migrate: schedule_store_url is not Postgres, nothing to do", "schedule_store_url", cfg.ScheduleStoreURL)
				return nil
			}

			db, _, err := openDB(cfg.ScheduleStoreURL)
			if err != nil {
				return fmt.Errorf("migrate: open database: %w", err)
			}
			defer db.Close()

			slog.Info("migrate: schema up to date")
			return nil
		},
	}
}
