// Пакет config — загрузка и валидация конфигурации KR Stream
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultThumbnail — общая заглушка превью для записей без собственной миниатюры.
const DefaultThumbnail = "https://i.ibb.co/zs2tZ8L/netflix-poster.jpg"

// Config содержит все параметры конфигурации KR Stream.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Публичный базовый URL сайта для ссылок в ответах бота (опционально)
	PublicURL string

	// Токен Telegram-бота
	BotToken string
	// Бот отключён (только веб-каталог)
	BotDisabled bool
	// Альтернативный endpoint Bot API (локальный telegram-bot-api сервер), формат с %s и %s
	TelegramAPIEndpoint string
	// Telegram ID единственного оператора, которому разрешена загрузка
	OperatorID int64
	// Канал резервных копий (0 — отключён)
	BackupChannelID int64
	// Канал журнала событий (0 — отключён)
	LogChannelID int64
	// Минимальный интервал между сообщениями в каналы
	NotifyInterval time.Duration

	// Директория хранения медиафайлов
	DataDir string
	// Директория файлового каталога (*.attr.json)
	CatalogDir string
	// Директория WAL
	WALDir string
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// URL заглушки превью
	ThumbnailPlaceholder string

	// Интервал очистки осиротевших файлов
	SweepInterval time.Duration
	// Минимальный возраст файла, после которого он может быть удалён очисткой
	SweepGrace time.Duration

	// DSN PostgreSQL. Пустой — используется файловый каталог
	DBDSN string
	// Размер LRU-кэша записей каталога
	CacheSize int
	// TTL записи в LRU-кэше
	CacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Файл логов с ротацией (опционально, дополнительно к stdout)
	LogFile string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Имя сервиса в метриках topologymetrics
	ServiceID string
	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// KR_PORT — порт HTTP-сервера, при отсутствии берётся PORT (PaaS), по умолчанию 8000
	port, err := getEnvInt("KR_PORT", 0)
	if err != nil {
		return nil, fmt.Errorf("KR_PORT: %w", err)
	}
	if port == 0 {
		port, err = getEnvInt("PORT", 8000)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("KR_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	cfg.PublicURL = strings.TrimRight(getEnvDefault("KR_PUBLIC_URL", ""), "/")

	// KR_BOT_DISABLED — запуск без бота
	cfg.BotDisabled, err = getEnvBool("KR_BOT_DISABLED", false)
	if err != nil {
		return nil, fmt.Errorf("KR_BOT_DISABLED: %w", err)
	}

	// KR_BOT_TOKEN — обязательный, если бот включён
	if cfg.BotDisabled {
		cfg.BotToken = getEnvDefault("KR_BOT_TOKEN", "")
	} else {
		cfg.BotToken, err = getEnvRequired("KR_BOT_TOKEN")
		if err != nil {
			return nil, err
		}
	}
	cfg.TelegramAPIEndpoint = getEnvDefault("KR_TELEGRAM_API_ENDPOINT", "")

	// KR_OPERATOR_ID — обязательный, Telegram ID оператора
	cfg.OperatorID, err = getEnvInt64Required("KR_OPERATOR_ID")
	if err != nil {
		return nil, err
	}

	cfg.BackupChannelID, err = getEnvInt64("KR_BACKUP_CHANNEL_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("KR_BACKUP_CHANNEL_ID: %w", err)
	}
	cfg.LogChannelID, err = getEnvInt64("KR_LOG_CHANNEL_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("KR_LOG_CHANNEL_ID: %w", err)
	}

	cfg.NotifyInterval, err = getEnvDuration("KR_NOTIFY_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("KR_NOTIFY_INTERVAL: %w", err)
	}

	// Директории хранения
	cfg.DataDir = getEnvDefault("KR_DATA_DIR", "downloads")
	cfg.CatalogDir = getEnvDefault("KR_CATALOG_DIR", "catalog")
	cfg.WALDir = getEnvDefault("KR_WAL_DIR", "wal")
	// Очистка считает любой файл директории данных без записи каталога
	// осиротевшим, поэтому каталог и WAL не могут лежать в ней же.
	for _, dir := range []struct{ key, path string }{
		{"KR_CATALOG_DIR", cfg.CatalogDir},
		{"KR_WAL_DIR", cfg.WALDir},
	} {
		same, err := sameDir(dir.path, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dir.key, err)
		}
		if same {
			return nil, fmt.Errorf("%s (%s) должна отличаться от KR_DATA_DIR (%s)", dir.key, dir.path, cfg.DataDir)
		}
	}

	// KR_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 2 GB)
	cfg.MaxFileSize, err = getEnvInt64("KR_MAX_FILE_SIZE", 2<<30)
	if err != nil {
		return nil, fmt.Errorf("KR_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("KR_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.ThumbnailPlaceholder = getEnvDefault("KR_THUMBNAIL_PLACEHOLDER", DefaultThumbnail)

	cfg.SweepInterval, err = getEnvDuration("KR_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("KR_SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepGrace, err = getEnvDuration("KR_SWEEP_GRACE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("KR_SWEEP_GRACE: %w", err)
	}

	cfg.DBDSN = getEnvDefault("KR_DB_DSN", "")

	cfg.CacheSize, err = getEnvInt("KR_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("KR_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("KR_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheTTL, err = getEnvDuration("KR_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("KR_CACHE_TTL: %w", err)
	}

	// KR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("KR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("KR_LOG_LEVEL: %w", err)
	}

	// KR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("KR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("KR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	cfg.LogFile = getEnvDefault("KR_LOG_FILE", "")

	cfg.ShutdownTimeout, err = getEnvDuration("KR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("KR_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.ServiceID = getEnvDefault("KR_SERVICE_ID", "krstream")
	cfg.DephealthGroup = getEnvDefault("KR_DEPHEALTH_GROUP", "krstream")
	cfg.DephealthCheckInterval, err = getEnvDuration("KR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("KR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// WatchURL возвращает ссылку на страницу просмотра записи.
// Без KR_PUBLIC_URL возвращается относительный путь.
func (c *Config) WatchURL(id string) string {
	return c.PublicURL + "/watch/" + id
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// При заданном KR_LOG_FILE логи дублируются в файл с ротацией.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // МБ
			MaxBackups: 5,
			MaxAge:     30, // дней
			Compress:   true,
		})
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
// sameDir сравнивает директории по абсолютному очищенному пути.
func sameDir(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

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

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
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

// getEnvInt64Required возвращает обязательное int64 значение переменной окружения.
// Telegram ID может быть любым ненулевым числом.
func getEnvInt64Required(key string) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число: %q", key, val)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: значение не может быть нулевым", key)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
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
