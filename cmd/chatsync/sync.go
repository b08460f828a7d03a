package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/chatsync/internal/auth"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/service"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Выполнить один цикл синхронизации",
	Long: `Выполняет полный цикл синхронизации графа пользователя из PostgreSQL
в локальное хранилище. Сессия берётся из файла CS_SESSION_TOKEN_FILE.

Цикл:
  1. Проверка токена сессии через JWKS
  2. Подключение к PostgreSQL
  3. Чтение пользователя, сессий, сообщений и топиков
  4. Замена зеркальных таблиц в одной транзакции SQLite`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
		ctx := cmd.Context()

		localDB, err := localstore.Open(ctx, cfg.LocalDBPath, logger)
		if err != nil {
			return fmt.Errorf("ошибка открытия локального хранилища %s: %w", cfg.LocalDBPath, err)
		}
		defer localDB.Close()

		verifier, err := newVerifier(cfg, logger)
		if err != nil {
			return err
		}

		svc := service.NewDataSyncService(
			auth.NewResolver(verifier, cfg.SessionTokenFile, logger),
			newConnector(cfg, logger),
			localDB,
			logger,
		)
		result, err := svc.Start(ctx, service.StartParams{
			OnSyncStatusChange: func(s service.Status) {
				logger.Info("Статус синхронизации", slog.String("status", string(s)))
			},
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать состояние последней синхронизации",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
		ctx := cmd.Context()

		localDB, err := localstore.Open(ctx, cfg.LocalDBPath, logger)
		if err != nil {
			return fmt.Errorf("ошибка открытия локального хранилища %s: %w", cfg.LocalDBPath, err)
		}
		defer localDB.Close()

		state, err := localDB.SyncState(ctx)
		if err != nil {
			return err
		}

		counts := make(map[string]int)
		catalog := localstore.NewCatalog(localDB)
		for _, name := range catalog.Names() {
			m, _ := catalog.Table(name)
			n, err := m.Count(ctx)
			if err != nil {
				return err
			}
			counts[name] = n
		}

		return printJSON(map[string]any{
			"local_db":   cfg.LocalDBPath,
			"sync_state": state,
			"records":    counts,
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
