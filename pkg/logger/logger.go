package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables read by ConfigFromEnv
const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
	EnvLogOutput = "LOG_OUTPUT"
)

// Logger is the logging interface used across the runtime. Every call takes
// the context so fields attached with WithLogField travel with the entry.
type Logger interface {
	Debug(ctx context.Context, msg string)
	Debugf(ctx context.Context, format string, args ...interface{})
	Info(ctx context.Context, msg string)
	Infof(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, msg string)
	Warnf(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, msg string)
	Errorf(ctx context.Context, format string, args ...interface{})
	// With returns a child logger carrying a static field
	With(key string, value interface{}) Logger
}

// Config configures NewLogger
type Config struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is text or json
	Format string
	// Output is stdout or stderr; ignored when Writer is set
	Output string
	// Writer overrides Output, mainly for tests
	Writer io.Writer

	Component string
	Version   string
}

// DefaultConfig returns info-level text logs on stderr
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// ConfigFromEnv returns DefaultConfig overridden by LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Output = v
	}
	return cfg
}

type zapLogger struct {
	base *zap.Logger
}

var _ Logger = (*zapLogger)(nil)

// NewLogger builds a zap-backed Logger from cfg
func NewLogger(cfg Config) (Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}

	var ws zapcore.WriteSyncer
	switch {
	case cfg.Writer != nil:
		ws = zapcore.AddSync(cfg.Writer)
	case cfg.Output == "" || cfg.Output == "stderr":
		ws = zapcore.Lock(os.Stderr)
	case cfg.Output == "stdout":
		ws = zapcore.Lock(os.Stdout)
	default:
		return nil, fmt.Errorf("invalid log output %q: must be stdout or stderr", cfg.Output)
	}

	base := zap.New(zapcore.NewCore(enc, ws, level))
	var static []zap.Field
	if cfg.Component != "" {
		static = append(static, zap.String(ComponentKey, cfg.Component))
	}
	if cfg.Version != "" {
		static = append(static, zap.String(VersionKey, cfg.Version))
	}
	if hostname, err := os.Hostname(); err == nil {
		static = append(static, zap.String(HostnameKey, hostname))
	}
	return &zapLogger{base: base.With(static...)}, nil
}

// NewTestLogger returns a logger that discards everything
func NewTestLogger() Logger {
	return &zapLogger{base: zap.NewNop()}
}

func (l *zapLogger) With(key string, value interface{}) Logger {
	return &zapLogger{base: l.base.With(zap.Any(key, value))}
}

func (l *zapLogger) Debug(ctx context.Context, msg string) { l.log(ctx, zapcore.DebugLevel, msg) }
func (l *zapLogger) Info(ctx context.Context, msg string)  { l.log(ctx, zapcore.InfoLevel, msg) }
func (l *zapLogger) Warn(ctx context.Context, msg string)  { l.log(ctx, zapcore.WarnLevel, msg) }
func (l *zapLogger) Error(ctx context.Context, msg string) { l.log(ctx, zapcore.ErrorLevel, msg) }

func (l *zapLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, zapcore.DebugLevel, format, args...)
}

func (l *zapLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, zapcore.InfoLevel, format, args...)
}

func (l *zapLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, zapcore.WarnLevel, format, args...)
}

func (l *zapLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.logf(ctx, zapcore.ErrorLevel, format, args...)
}

func (l *zapLogger) logf(ctx context.Context, level zapcore.Level, format string, args ...interface{}) {
	if !l.base.Core().Enabled(level) {
		return
	}
	l.log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, msg string) {
	if ce := l.base.Check(level, msg); ce != nil {
		ce.Write(contextFields(ctx)...)
	}
}

// contextFields converts the context log fields to zap fields in key order
func contextFields(ctx context.Context) []zap.Field {
	fields := GetLogFields(ctx)
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
