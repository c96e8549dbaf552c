// Пакет config — загрузка и валидация конфигурации Review Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Типы бэкендов хранилища файлов.
const (
	StorageTypeLocal = "local"
	StorageTypeS3    = "s3"
)

// Config содержит все параметры конфигурации Review Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Хранилище файлов ---

	// Тип бэкенда: local или s3
	StorageType string
	// Корневая директория для local
	StorageDir string
	// Параметры S3-совместимого хранилища
	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64

	// --- Сервис автоматической проверки ---

	// Базовый URL сервиса проверки (например, http://ocr:8000)
	ReviewerURL string
	// Таймаут установления соединения
	ReviewerConnectTimeout time.Duration
	// Таймаут чтения ответа (проверка может идти минутами)
	ReviewerReadTimeout time.Duration
	// Путь к CA-сертификату для TLS (опционально)
	ReviewerCACertPath string
	// Режим подробного аудита: дополнительная запись истории с сырым результатом
	ReviewDetailEnabled bool
	// Количество горутин-обработчиков проверки
	ReviewWorkers int
	// Размер буфера очереди проверок
	ReviewQueueSize int

	// --- Outbox ---

	// Интервал опроса outbox-таблицы
	OutboxPollInterval time.Duration
	// Возраст pending-события, после которого relay доставляет его повторно
	OutboxGrace time.Duration
	// Длительность аренды события обработчиком
	OutboxLeaseTTL time.Duration
	// Размер пачки relay
	OutboxBatchSize int
	// Максимум аренд, после которого событие помечается dead
	OutboxMaxAttempts int

	// --- Каталог ---

	// Часовой пояс для проверки сроков сдачи
	Location *time.Location
	// Размер LRU-кэша каталога
	CatalogCacheSize int
	// TTL записей кэша каталога
	CatalogCacheTTL time.Duration

	// --- JWT ---

	JWTIssuer           string
	JWTJWKSURL          string
	JWTLeeway           time.Duration
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	// Группы IdP, дающие роль admin / student
	RoleAdminGroups   []string
	RoleStudentGroups []string

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("RM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("RM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("RM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("RM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Хранилище файлов ---

	cfg.StorageType = getEnvDefault("RM_STORAGE_TYPE", StorageTypeLocal)
	switch cfg.StorageType {
	case StorageTypeLocal:
		cfg.StorageDir = getEnvDefault("RM_STORAGE_DIR", "./uploads")
	case StorageTypeS3:
		if cfg.S3Endpoint, err = getEnvRequired("RM_S3_ENDPOINT"); err != nil {
			return nil, err
		}
		if cfg.S3Bucket, err = getEnvRequired("RM_S3_BUCKET"); err != nil {
			return nil, err
		}
		if cfg.S3AccessKey, err = getEnvRequired("RM_S3_ACCESS_KEY"); err != nil {
			return nil, err
		}
		if cfg.S3SecretKey, err = getEnvRequired("RM_S3_SECRET_KEY"); err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("RM_S3_REGION", "auto")
	default:
		return nil, fmt.Errorf("RM_STORAGE_TYPE: недопустимое значение %q, допустимые: local, s3", cfg.StorageType)
	}

	cfg.MaxFileSize, err = getEnvInt64("RM_MAX_FILE_SIZE", 20*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// --- Сервис проверки ---

	if cfg.ReviewerURL, err = getEnvRequired("RM_REVIEWER_URL"); err != nil {
		return nil, err
	}
	cfg.ReviewerURL = strings.TrimRight(cfg.ReviewerURL, "/")

	cfg.ReviewerConnectTimeout, err = getEnvDuration("RM_REVIEWER_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_REVIEWER_CONNECT_TIMEOUT: %w", err)
	}
	cfg.ReviewerReadTimeout, err = getEnvDuration("RM_REVIEWER_READ_TIMEOUT", 600*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_REVIEWER_READ_TIMEOUT: %w", err)
	}
	if cfg.ReviewerConnectTimeout <= 0 || cfg.ReviewerReadTimeout <= 0 {
		return nil, fmt.Errorf("RM_REVIEWER_*_TIMEOUT: таймауты должны быть положительными")
	}
	cfg.ReviewerCACertPath = getEnvDefault("RM_REVIEWER_CA_CERT_PATH", "")

	cfg.ReviewDetailEnabled, err = getEnvBool("RM_REVIEW_DETAIL_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("RM_REVIEW_DETAIL_ENABLED: %w", err)
	}

	cfg.ReviewWorkers, err = getEnvInt("RM_REVIEW_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("RM_REVIEW_WORKERS: %w", err)
	}
	if cfg.ReviewWorkers < 1 || cfg.ReviewWorkers > 64 {
		return nil, fmt.Errorf("RM_REVIEW_WORKERS: значение %d вне допустимого диапазона 1-64", cfg.ReviewWorkers)
	}

	cfg.ReviewQueueSize, err = getEnvInt("RM_REVIEW_QUEUE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("RM_REVIEW_QUEUE_SIZE: %w", err)
	}
	if cfg.ReviewQueueSize < 1 {
		return nil, fmt.Errorf("RM_REVIEW_QUEUE_SIZE: значение должно быть положительным")
	}

	// --- Outbox ---

	cfg.OutboxPollInterval, err = getEnvDuration("RM_OUTBOX_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_OUTBOX_POLL_INTERVAL: %w", err)
	}
	cfg.OutboxGrace, err = getEnvDuration("RM_OUTBOX_GRACE", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_OUTBOX_GRACE: %w", err)
	}
	cfg.OutboxLeaseTTL, err = getEnvDuration("RM_OUTBOX_LEASE_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_OUTBOX_LEASE_TTL: %w", err)
	}
	// Аренда должна пережить самый долгий вызов сервиса проверки
	if cfg.OutboxLeaseTTL <= cfg.ReviewerConnectTimeout+cfg.ReviewerReadTimeout {
		return nil, fmt.Errorf("RM_OUTBOX_LEASE_TTL: значение %s должно превышать сумму таймаутов проверки (%s)",
			cfg.OutboxLeaseTTL, cfg.ReviewerConnectTimeout+cfg.ReviewerReadTimeout)
	}
	cfg.OutboxBatchSize, err = getEnvInt("RM_OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("RM_OUTBOX_BATCH_SIZE: %w", err)
	}
	if cfg.OutboxBatchSize < 1 || cfg.OutboxBatchSize > 1000 {
		return nil, fmt.Errorf("RM_OUTBOX_BATCH_SIZE: значение %d вне допустимого диапазона 1-1000", cfg.OutboxBatchSize)
	}
	cfg.OutboxMaxAttempts, err = getEnvInt("RM_OUTBOX_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("RM_OUTBOX_MAX_ATTEMPTS: %w", err)
	}
	if cfg.OutboxMaxAttempts < 1 {
		return nil, fmt.Errorf("RM_OUTBOX_MAX_ATTEMPTS: значение должно быть положительным")
	}

	// --- Каталог ---

	tz := getEnvDefault("RM_TIMEZONE", "Asia/Seoul")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("RM_TIMEZONE: неизвестный часовой пояс %q: %w", tz, err)
	}
	cfg.CatalogCacheSize, err = getEnvInt("RM_CATALOG_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("RM_CATALOG_CACHE_SIZE: %w", err)
	}
	if cfg.CatalogCacheSize < 1 {
		return nil, fmt.Errorf("RM_CATALOG_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CatalogCacheTTL, err = getEnvDuration("RM_CATALOG_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_CATALOG_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	if cfg.JWTIssuer, err = getEnvRequired("RM_JWT_ISSUER"); err != nil {
		return nil, err
	}
	if cfg.JWTJWKSURL, err = getEnvRequired("RM_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("RM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("RM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("RM_ROLE_ADMIN_GROUPS", "review-admins"))
	cfg.RoleStudentGroups = parseCSV(getEnvDefault("RM_ROLE_STUDENT_GROUPS", "students"))

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "docreview")
	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов dephealth).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool разбирает true/false/1/0 (регистр не важен).
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
