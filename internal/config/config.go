// Package config loads service settings from the environment, after merging
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/MagnunAVF/shortlink/internal/logger"
)

const (
	RecorderDirect = "direct"
	RecorderQueue  = "queue"
)

// dbDrivers are the DB_DRIVER values store.Open knows how to dial.
var dbDrivers = map[string]struct{}{"postgres": {}, "sqlite": {}}

type Config struct {
	AppDomain      string
	APIPort        string
	DBDriver       string
	DBURL          string
	GormLogLevel   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheTTL       time.Duration
	RabbitMQURL    string
	ClickQueue     string
	ClickRecorder  string
	RecordTimeout  time.Duration
	RedirectStatus int
	IDServiceURL   string
	IDServicePort  string
	NodeID         int64

	WorkerBatchSize     int
	WorkerFlushInterval time.Duration
	WorkerPrefetch      int
}

var ErrInvalid = errors.New("invalid configuration")

// LoadDotEnv merges .env into the process environment when the file exists.
func LoadDotEnv() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "err", err)
	}
}

// Logging reads the LOG_* variables. service names the binary when
// LOG_SERVICE is unset. Malformed values fall back to defaults so the logger
// always comes up; Load reports the rest of the configuration.
func Logging(service string) logger.Config {
	p := &parser{}
	return logger.Config{
		Level:     p.str("LOG_LEVEL", "info"),
		Format:    p.str("LOG_FORMAT", "json"),
		AddSource: p.bool("LOG_ADD_SOURCE", false),
		Service:   p.str("LOG_SERVICE", p.str("SERVICE_NAME", service)),
		Env:       p.str("LOG_ENV", p.str("ENV", os.Getenv("APP_ENV"))),
		Version:   p.str("VERSION", ""),
		Output:    p.str("LOG_OUTPUT", "stdout"),
	}
}

// Load reads the configuration from the environment. Malformed values are
// reported instead of silently replaced by defaults.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		AppDomain:      p.str("APP_DOMAIN", "http://localhost:8080"),
		APIPort:        p.str("API_SERVICE_PORT", ":8080"),
		DBDriver:       strings.ToLower(p.str("DB_DRIVER", "postgres")),
		DBURL:          p.str("DB_URL", ""),
		GormLogLevel:   p.str("GORM_LOG_LEVEL", "warn"),
		RedisAddr:      p.str("REDIS_ADDR", ""),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        p.int("REDIS_DB", 0),
		CacheTTL:       p.duration("CACHE_TTL", time.Hour),
		RabbitMQURL:    p.str("RABBITMQ_URL", ""),
		ClickQueue:     p.str("CLICK_QUEUE_NAME", "click_events"),
		ClickRecorder:  strings.ToLower(p.str("CLICK_RECORDER", RecorderDirect)),
		RecordTimeout:  p.duration("CLICK_RECORD_TIMEOUT", 2*time.Second),
		RedirectStatus: p.int("REDIRECT_STATUS", fiber.StatusFound),
		IDServiceURL:   p.str("ID_SERVICE_URL", ""),
		IDServicePort:  p.str("ID_SERVICE_PORT", ":8081"),
		NodeID:         int64(p.int("ID_NODE_ID", 1)),

		WorkerBatchSize:     p.int("WORKER_BATCH_SIZE", 100),
		WorkerFlushInterval: p.duration("WORKER_FLUSH_INTERVAL", 2*time.Second),
		WorkerPrefetch:      p.int("WORKER_PREFETCH", 100),
	}
	cfg.AppDomain = strings.TrimRight(cfg.AppDomain, "/")

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if _, ok := dbDrivers[c.DBDriver]; !ok {
		errs = append(errs, fmt.Errorf("%w: DB_DRIVER %q", ErrInvalid, c.DBDriver))
	}
	switch c.ClickRecorder {
	case RecorderDirect:
	case RecorderQueue:
		if c.RabbitMQURL == "" {
			errs = append(errs, fmt.Errorf("%w: CLICK_RECORDER=queue needs RABBITMQ_URL", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: CLICK_RECORDER %q", ErrInvalid, c.ClickRecorder))
	}
	switch c.RedirectStatus {
	case fiber.StatusMovedPermanently, fiber.StatusFound, fiber.StatusTemporaryRedirect, fiber.StatusPermanentRedirect:
	default:
		errs = append(errs, fmt.Errorf("%w: REDIRECT_STATUS %d is not a redirect", ErrInvalid, c.RedirectStatus))
	}
	if c.RecordTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: CLICK_RECORD_TIMEOUT must be positive", ErrInvalid))
	}
	if c.WorkerBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: WORKER_BATCH_SIZE must be positive", ErrInvalid))
	}
	if c.WorkerFlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: WORKER_FLUSH_INTERVAL must be positive", ErrInvalid))
	}

	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, v))
		return def
	}
	return d
}
