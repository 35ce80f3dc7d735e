// Пакет config — загрузка и валидация конфигурации Relay Module
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранения байтов.
const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

// Config содержит все параметры конфигурации Relay Module.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Внешний адрес сервиса для ссылок скачивания (пусто — из запроса)
	PublicURL string

	// Бэкенд хранения: disk или s3
	StorageBackend string
	// Путь к директории хранения файлов (disk)
	DataDir string

	// Параметры S3 (s3)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
	S3PathStyle bool

	// Максимальный размер тела загрузки в байтах
	MaxUploadSize int64
	// Срок хранения файла после загрузки
	FileTTL time.Duration
	// Срок простоя пустой сессии до удаления
	SessionTTL time.Duration
	// Интервал фоновой очистки
	SweepInterval time.Duration
	// Минимальный возраст объекта без метаданных перед удалением
	OrphanGrace time.Duration

	// Флаг Secure для cookie сессии
	CookieSecure bool

	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string

	// Таймауты HTTP-сервера
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// LoadDotEnv загружает переменные из .env файла, если он существует.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("ошибка чтения %s: %w", path, err)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// RM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("RM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// RM_PUBLIC_URL — внешний адрес (опционально)
	cfg.PublicURL = strings.TrimRight(getEnvDefault("RM_PUBLIC_URL", ""), "/")
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("RM_PUBLIC_URL: ожидается абсолютный http(s) URL, получено %q", cfg.PublicURL)
		}
	}

	// RM_STORAGE_BACKEND — бэкенд хранения (по умолчанию disk)
	cfg.StorageBackend = getEnvDefault("RM_STORAGE_BACKEND", BackendDisk)
	switch cfg.StorageBackend {
	case BackendDisk:
		cfg.DataDir = getEnvDefault("RM_DATA_DIR", "./data/uploads")
	case BackendS3:
		if err := loadS3(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("RM_STORAGE_BACKEND: недопустимое значение %q, допустимые: disk, s3", cfg.StorageBackend)
	}

	// RM_MAX_UPLOAD_SIZE — байты или человекочитаемый размер (по умолчанию 1 GiB)
	cfg.MaxUploadSize, err = getEnvSize("RM_MAX_UPLOAD_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("RM_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("RM_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"RM_FILE_TTL", &cfg.FileTTL, 4 * time.Hour},
		{"RM_SESSION_TTL", &cfg.SessionTTL, 24 * time.Hour},
		{"RM_SWEEP_INTERVAL", &cfg.SweepInterval, time.Minute},
		{"RM_ORPHAN_GRACE", &cfg.OrphanGrace, 10 * time.Minute},
		{"RM_HTTP_READ_TIMEOUT", &cfg.ReadTimeout, 30 * time.Minute},
		{"RM_HTTP_WRITE_TIMEOUT", &cfg.WriteTimeout, 30 * time.Minute},
		{"RM_HTTP_IDLE_TIMEOUT", &cfg.IdleTimeout, 2 * time.Minute},
		{"RM_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		*d.dst, err = getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if *d.dst <= 0 {
			return nil, fmt.Errorf("%s: значение должно быть положительным", d.key)
		}
	}

	// RM_COOKIE_SECURE — флаг Secure для cookie (по умолчанию false)
	cfg.CookieSecure, err = getEnvBool("RM_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("RM_COOKIE_SECURE: %w", err)
	}

	// RM_TLS_CERT / RM_TLS_KEY — задаются только парой
	cfg.TLSCert = getEnvDefault("RM_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("RM_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("RM_TLS_CERT и RM_TLS_KEY должны задаваться вместе")
	}

	// RM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	// RM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// loadS3 читает параметры бэкенда s3.
func loadS3(cfg *Config) error {
	var err error

	cfg.S3Endpoint = getEnvDefault("RM_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("RM_S3_REGION", "us-east-1")
	// Объекты сервиса живут под своим префиксом, чтобы не смешиваться
	// с чужими данными бакета
	cfg.S3Prefix = getEnvDefault("RM_S3_PREFIX", "relay/")

	if cfg.S3Bucket, err = getEnvRequired("RM_S3_BUCKET"); err != nil {
		return err
	}
	if cfg.S3AccessKey, err = getEnvRequired("RM_S3_ACCESS_KEY"); err != nil {
		return err
	}
	if cfg.S3SecretKey, err = getEnvRequired("RM_S3_SECRET_KEY"); err != nil {
		return err
	}

	cfg.S3PathStyle, err = getEnvBool("RM_S3_PATH_STYLE", false)
	if err != nil {
		return fmt.Errorf("RM_S3_PATH_STYLE: %w", err)
	}
	return nil
}

// TLSEnabled сообщает, задана ли пара сертификат/ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
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

// getEnvSize принимает как число байтов, так и размер вида "512MiB", "1GB".
func getEnvSize(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := humanize.ParseBytes(val)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер: %q (примеры: 1048576, 512MiB, 1GB)", val)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("слишком большой размер: %q", val)
	}
	return int64(n), nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 4h, 24h)", val)
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
