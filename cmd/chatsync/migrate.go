package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/chatsync/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции durable store (PostgreSQL)",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
		return database.Migrate(cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
