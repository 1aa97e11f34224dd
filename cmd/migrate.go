package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/wellchat-backend/internal/config"
	"github.com/yungbote/wellchat-backend/internal/data/db"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			dbs, err := db.Open(cfg.Database, log)
			if err != nil {
				return err
			}
			defer dbs.Close()

			log.Info("Running migrations", "driver", dbs.Driver())
			if err := db.AutoMigrateAll(dbs.DB()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("Migrations executed successfully")
			return nil
		},
	}
}
