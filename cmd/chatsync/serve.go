package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/chatsync/internal/api/handlers"
	"github.com/bigkaa/chatsync/internal/api/middleware"
	"github.com/bigkaa/chatsync/internal/auth"
	"github.com/bigkaa/chatsync/internal/config"
	"github.com/bigkaa/chatsync/internal/database"
	"github.com/bigkaa/chatsync/internal/domain/model"
	"github.com/bigkaa/chatsync/internal/localstore"
	"github.com/bigkaa/chatsync/internal/repository"
	"github.com/bigkaa/chatsync/internal/server"
	"github.com/bigkaa/chatsync/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API и фоновую синхронизацию",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe загружает конфигурацию, применяет миграции, открывает оба хранилища,
// создаёт сервисный слой и API handlers, запускает фоновые задачи
// (периодическая синхронизация, topologymetrics) и HTTP-сервер
// с JWT middleware и graceful shutdown.
func runServe(ctx context.Context) error {
	// 1. Конфигурация и логирование
	cfg, logger, err := bootstrap()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	logger.Info("chatsync запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CS_DEPHEALTH_GROUP") == "" {
		logger.Warn("CS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 2. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("ошибка миграций БД: %w", err)
	}

	// 3. Общий пул PostgreSQL: настройки пользователя, readiness, topologymetrics.
	// Цикл синхронизации открывает собственный пул через PoolConnector.
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Локальное хранилище
	localDB, err := localstore.Open(ctx, cfg.LocalDBPath, logger)
	if err != nil {
		return fmt.Errorf("ошибка открытия локального хранилища %s: %w", cfg.LocalDBPath, err)
	}
	defer localDB.Close()

	usersMirror, err := localstore.For[model.User](localDB, localstore.TableUsers)
	if err != nil {
		return err
	}

	// 5. Проверка токенов (JWKS)
	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return err
	}
	jwtAuth := middleware.NewJWTAuth(verifier, logger)
	resolver := auth.NewResolver(verifier, cfg.SessionTokenFile, logger)

	// 6. Services
	syncSvc := service.NewDataSyncService(resolver, newConnector(cfg, logger), localDB, logger)
	settingsSvc := service.NewSettingsService(repository.NewUserRepository(pool), usersMirror, logger)

	// 7. Начальная синхронизация (сессия из CS_SESSION_TOKEN_FILE)
	if cfg.SyncOnStart {
		logger.Info("Начальная синхронизация...")
		if result, syncErr := syncSvc.Start(ctx, service.StartParams{}); syncErr != nil {
			logger.Warn("Ошибка начальной синхронизации", slog.String("error", syncErr.Error()))
		} else {
			logger.Info("Начальная синхронизация завершена", slog.Any("records", result.Records))
		}
	}

	// 8. Readiness checkers (PostgreSQL + SQLite) и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), localDB)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		syncSvc,
		settingsSvc,
		localstore.NewCatalog(localDB),
		logger,
	)

	// 9. Фоновые задачи
	syncSvc.StartPeriodic(ctx, cfg.SyncInterval)
	defer syncSvc.Stop()

	dephealthSvc, dephealthErr := service.NewDephealthService(
		"chatsync",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP-сервер; фоновые задачи останавливаются через defer
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		return err
	}

	logger.Info("Останавливаем фоновые задачи...")
	return nil
}

// newVerifier создаёт проверку JWT через JWKS из конфигурации.
func newVerifier(cfg *config.Config, logger *slog.Logger) (*auth.Verifier, error) {
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		Algorithms:      cfg.JWTAlgorithms,
		Leeway:          cfg.JWTLeeway,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания JWT verifier: %w", err)
	}
	logger.Info("JWT verifier инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)
	return verifier, nil
}

// newConnector открывает отдельный пул PostgreSQL на каждый цикл синхронизации.
func newConnector(cfg *config.Config, logger *slog.Logger) *service.PoolConnector {
	return service.NewPoolConnector(func(ctx context.Context) (*pgxpool.Pool, error) {
		return database.Connect(ctx, cfg, logger)
	})
}
