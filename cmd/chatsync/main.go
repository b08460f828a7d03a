// Точка входа chatsync — сервис синхронизации чатов между durable store
// (PostgreSQL) и локальным хранилищем (SQLite).
//
// Команды:
//   - serve (по умолчанию) — HTTP API, периодическая синхронизация, topologymetrics
//   - sync — один цикл синхронизации для сессии из CS_SESSION_TOKEN_FILE
//   - status — состояние последней синхронизации из локального хранилища
//   - migrate — применение миграций durable store
//
// Конфигурация задаётся только переменными окружения CS_*.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/chatsync/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "chatsync",
	Short:         "Синхронизация чатов между PostgreSQL и локальным SQLite",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("chatsync завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// bootstrap загружает конфигурацию и настраивает логирование.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
