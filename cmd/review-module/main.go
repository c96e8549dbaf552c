// Точка входа Review Module — сервис приёма и проверки заявок.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт хранилище файлов, клиента сервиса проверки и сервисный слой,
// запускает обработчики проверки, relay outbox, topologymetrics
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/docreview/internal/api/handlers"
	"github.com/bigkaa/docreview/internal/api/middleware"
	"github.com/bigkaa/docreview/internal/config"
	"github.com/bigkaa/docreview/internal/database"
	"github.com/bigkaa/docreview/internal/repository"
	"github.com/bigkaa/docreview/internal/reviewclient"
	"github.com/bigkaa/docreview/internal/server"
	"github.com/bigkaa/docreview/internal/service"
	"github.com/bigkaa/docreview/internal/storage"
)

func main() {
	// 0. .env для локальной разработки; переменные окружения не перезаписываются
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Review Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)
	if envErr != nil {
		logger.Debug("Файл .env не найден, используются переменные окружения")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище файлов (local или s3)
	backend, err := storage.New(cfg)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов",
			slog.String("type", cfg.StorageType),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Хранилище файлов инициализировано", slog.String("type", cfg.StorageType))

	// 6. Клиент сервиса проверки
	reviewer, err := reviewclient.New(reviewclient.Options{
		BaseURL:        cfg.ReviewerURL,
		ConnectTimeout: cfg.ReviewerConnectTimeout,
		ReadTimeout:    cfg.ReviewerReadTimeout,
		CACertPath:     cfg.ReviewerCACertPath,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента сервиса проверки", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Repositories и транзакции
	store := repository.NewTxRunner(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	// 8. Services
	files := service.NewFileVersionStore(backend, logger)
	ledger := service.NewAuditLedger(logger)
	notifier := service.NewCommitNotifier(cfg.ReviewQueueSize, logger)

	catalogSvc := service.NewCatalogService(catalogRepo, store, files, service.CatalogOptions{
		CacheSize: cfg.CatalogCacheSize,
		CacheTTL:  cfg.CatalogCacheTTL,
		Location:  cfg.Location,
	}, logger)
	submissionsSvc := service.NewSubmissionService(store, catalogSvc, files, ledger, notifier, logger)
	adminSvc := service.NewAdminReviewService(store, catalogSvc, files, ledger, logger)
	recorder := service.NewReviewRecorder(store, ledger, cfg.ReviewDetailEnabled, logger)

	// 9. Фоновые сервисы: обработчики проверки и relay outbox
	orchestrator := service.NewReviewOrchestrator(store, files, reviewer, recorder, notifier,
		service.OrchestratorConfig{
			Workers:  cfg.ReviewWorkers,
			LeaseTTL: cfg.OutboxLeaseTTL,
		}, logger)
	relay := service.NewOutboxRelay(store, notifier, recorder, service.OutboxRelayConfig{
		Interval:    cfg.OutboxPollInterval,
		Grace:       cfg.OutboxGrace,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, logger)

	orchestrator.Start(ctx)
	relay.Start(ctx)

	// 9.1 topologymetrics — мониторинг PostgreSQL и сервиса проверки
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     "review-module",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		ReviewerURL:   cfg.ReviewerURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 10. Readiness checkers и API handler
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSClientTimeout),
	)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		submissionsSvc,
		adminSvc,
		catalogSvc,
		cfg.MaxFileSize,
		logger,
	)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleStudentGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	runErr := srv.Run(ctx)

	// 13. Остановка фоновых задач: сначала приём новых токенов, затем обработчики
	logger.Info("Останавливаем фоновые задачи...")
	relay.Stop()
	orchestrator.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Review Module остановлен")
}
