// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Review Module мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (critical)
//   - сервис проверки — HTTP checker к /healthz (non-critical: при его
//     недоступности заявки уходят в NEEDS_FIX, приём заявок продолжается)
//
// Метрики app_dependency_* публикуются на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ReviewerHealthPath — health endpoint сервиса проверки.
const ReviewerHealthPath = "/healthz"

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthOptions — параметры мониторинга.
type DephealthOptions struct {
	ServiceID     string
	Group         string
	DB            *sql.DB // из pgxpool через stdlib.OpenDBFromPool()
	PgConnURL     string  // для лейблов метрик, не для подключения
	ReviewerURL   string
	CheckInterval time.Duration
}

// NewDephealthService создаёт сервис мониторинга; метрики — в глобальном registry.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(opts, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(opts DephealthOptions, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(opts, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(opts DephealthOptions, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(opts.PgConnURL),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(true),
	}

	reviewerDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(opts.ReviewerURL),
		dephealth.WithHTTPHealthPath(ReviewerHealthPath),
		dephealth.CheckInterval(opts.CheckInterval),
		dephealth.Critical(false),
	}
	if parsed, err := url.Parse(opts.ReviewerURL); err == nil && parsed.Scheme == "https" {
		reviewerDepOpts = append(reviewerDepOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	dhOpts := make([]dephealth.Option, 0, 3+len(extraOpts))
	dhOpts = append(dhOpts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(opts.DB)), pgDepOpts...),
		dephealth.HTTP("reviewer", reviewerDepOpts...),
	)
	dhOpts = append(dhOpts, extraOpts...)

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + сервис проверки)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
