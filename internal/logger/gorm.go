package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger routes GORM output through the request scoped slog logger, so SQL
// traces carry the request id of the HTTP call that issued them. Lookups that
// find nothing are normal traffic for a resolver and are not logged as errors.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger maps GORM_LOG_LEVEL (silent|error|warn|info) to a logger.
// Empty means warn.
func NewGormLogger(level string) *GormLogger {
	return &GormLogger{level: parseGormLevel(level), slowThreshold: defaultSlowQuery}
}

func parseGormLevel(name string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn", "warning", "":
		return gormlogger.Warn
	default:
		return gormlogger.Info
	}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{level: level, slowThreshold: g.slowThreshold}
}

func (g *GormLogger) Info(ctx context.Context, format string, args ...interface{}) {
	g.printf(ctx, gormlogger.Info, slog.LevelInfo, format, args)
}

func (g *GormLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	g.printf(ctx, gormlogger.Warn, slog.LevelWarn, format, args)
}

func (g *GormLogger) Error(ctx context.Context, format string, args ...interface{}) {
	g.printf(ctx, gormlogger.Error, slog.LevelError, format, args)
}

func (g *GormLogger) printf(ctx context.Context, at gormlogger.LogLevel, lvl slog.Level, format string, args []interface{}) {
	if g.level < at {
		return
	}
	FromContext(ctx).Log(ctx, lvl, "gorm", "detail", fmt.Sprintf(format, args...))
}

// Trace logs one statement: failures at error, slow queries at warn and the
// rest at debug when the level is info.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	log := FromContext(ctx)

	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	slow := g.slowThreshold > 0 && elapsed > g.slowThreshold

	switch {
	case failed && g.level >= gormlogger.Error:
		sql, rows := fc()
		log.Error("gorm query failed", "sql", sql, "rows", rows, "elapsed_ms", millis(elapsed), "err", err)
	case slow && g.level >= gormlogger.Warn:
		sql, rows := fc()
		log.Warn("gorm slow query", "sql", sql, "rows", rows, "elapsed_ms", millis(elapsed), "threshold_ms", millis(g.slowThreshold))
	case !failed && g.level >= gormlogger.Info:
		sql, rows := fc()
		log.Debug("gorm query", "sql", sql, "rows", rows, "elapsed_ms", millis(elapsed))
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
