package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// redacted replaces values of sensitive keys before they reach the sink.
const redacted = "[REDACTED]"

var (
	sensitiveSubstrings = []string{"password", "private", "secret", "mnemonic", "keystore"}
	sensitiveExact      = []string{"iv", "salt", "authorization"}
)

// Logger wraps zerolog with service metadata and secret redaction
type Logger struct {
	logger  zerolog.Logger
	service string
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	Service     string
	Environment string
	Version     string
	Output      io.Writer
	PrettyLog   bool
	AddCaller   bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig(service string) *Config {
	env := getEnv("ENVIRONMENT", "development")
	return &Config{
		Level:       LogLevel(getEnv("LOG_LEVEL", string(LevelInfo))),
		Service:     service,
		Environment: env,
		Version:     getEnv("SERVICE_VERSION", "unknown"),
		Output:      os.Stdout,
		PrettyLog:   env == "development",
		AddCaller:   true,
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig("unknown")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	if config.PrettyLog {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(output).
		Level(parseLevel(config.Level)).
		With().
		Timestamp().
		Str("service", config.Service).
		Str("environment", config.Environment).
		Str("version", config.Version).
		Logger()

	if config.AddCaller {
		zl = zl.With().Caller().Logger()
	}

	return &Logger{logger: zl, service: config.Service}
}

// Nop returns a logger that discards everything. Used by tests and optional wiring.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop(), service: "nop"}
}

// WithContext creates a logger carrying the request and user ids stored in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.logger.With()
	if requestID := GetRequestID(ctx); requestID != "" {
		zc = zc.Str("request_id", requestID)
	}
	if userID := GetUserID(ctx); userID != "" {
		zc = zc.Str("user_id", userID)
	}
	return &Logger{logger: zc.Logger(), service: l.service}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger:  l.logger.With().Interface(key, sanitize(key, value)).Logger(),
		service: l.service,
	}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		logger:  l.logger.With().Fields(sanitizeFields(fields)).Logger(),
		service: l.service,
	}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		logger:  l.logger.With().Err(err).Str("error_type", fmt.Sprintf("%T", err)).Logger(),
		service: l.service,
	}
}

// Zerolog exposes the underlying logger for libraries that take one directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.logger.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.logger.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// Audit logs an audit event
func (l *Logger) Audit(event string, fields map[string]interface{}) {
	l.logger.Info().
		Str("audit_event", event).
		Time("audit_timestamp", time.Now()).
		Fields(sanitizeFields(fields)).
		Msg("AUDIT")
}

// Performance logs how long an operation took, as a warning past one second
func (l *Logger) Performance(operation string, duration time.Duration, fields map[string]interface{}) {
	ev := l.logger.Info()
	msg := "PERFORMANCE"
	if duration > time.Second {
		ev = l.logger.Warn()
		msg = "SLOW_OPERATION"
	}
	ev.Str("operation", operation).Dur("duration_ms", duration).Fields(sanitizeFields(fields)).Msg(msg)
}

// Security logs a security event
func (l *Logger) Security(event string, severity string, fields map[string]interface{}) {
	var ev *zerolog.Event
	switch severity {
	case "critical", "high":
		ev = l.logger.Error()
	case "medium":
		ev = l.logger.Warn()
	default:
		ev = l.logger.Info()
	}
	ev.Str("security_event", event).
		Str("severity", severity).
		Time("security_timestamp", time.Now()).
		Fields(sanitizeFields(fields)).
		Msg("SECURITY")
}

func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = sanitize(k, v)
	}
	return out
}

func sanitize(key string, value interface{}) interface{} {
	if isSensitive(key) {
		return redacted
	}
	return value
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveExact {
		if k == s {
			return true
		}
	}
	for _, s := range sensitiveSubstrings {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

func parseLevel(level LogLevel) zerolog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var globalLogger *Logger

// Init initializes the global logger
func Init(config *Config) {
	globalLogger = NewLogger(config)
}

// Default returns the default global logger
func Default() *Logger {
	if globalLogger == nil {
		Init(DefaultConfig("default"))
	}
	return globalLogger
}
