// Package logger configures the process wide slog logger. Records are encoded
// by a zap core; only time, level and msg sit at the root, everything else is
// grouped under `data`.
package logger

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config is filled from the LOG_* variables by the config package.
type Config struct {
	Level     string
	Format    string
	AddSource bool
	Service   string
	Env       string
	Version   string
	// Output is stdout, stderr or a file path.
	Output string
}

type (
	loggerKey    struct{}
	requestIDKey struct{}
)

var (
	level         = zap.NewAtomicLevel()
	defaultLogger *slog.Logger
)

// Default returns the logger installed by Init, or slog's default before that.
func Default() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

func Init(cfg Config) *slog.Logger {
	SetLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, openOutput(cfg.Output), level)
	h := zapslog.NewHandler(core, zapslog.WithCaller(cfg.AddSource))

	base := slog.New(h).WithGroup("data").With("service", cmp.Or(cfg.Service, defaultServiceName()))
	if cfg.Env != "" {
		base = base.With("env", cfg.Env)
	}
	if cfg.Version != "" {
		base = base.With("version", cfg.Version)
	}

	defaultLogger = base
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// SetLevel changes the level of the running logger. Unknown names mean info.
func SetLevel(name string) {
	level.SetLevel(parseLevel(name))
}

func parseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IntoContext stores l in ctx; FromContext returns it from then on.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger scoped to ctx, or the process logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}

// WithRequestID records the request id in ctx and scopes the context logger
// to it, so every record logged through ctx carries request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return IntoContext(ctx, FromContext(ctx).With("request_id", requestID))
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// openOutput resolves LOG_OUTPUT: stdout, stderr or a file path. A path that
// cannot be opened falls back to stdout.
func openOutput(output string) zapcore.WriteSyncer {
	target := strings.TrimSpace(output)
	if target == "" {
		target = "stdout"
	}
	ws, _, err := zap.Open(target)
	if err != nil {
		return zapcore.Lock(os.Stdout)
	}
	return ws
}

func defaultServiceName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "app"
}
