package logger

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// level is shared by every Logger so LOG_LEVEL applies process-wide.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	cookieRegex = regexp.MustCompile(`\bsid=[^\s;]+`)
)

// Logger is a centralized structured logger
type Logger struct {
	out *zap.Logger
}

// New creates a new Logger writing JSON lines to stdout.
func New() *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncoderConfig.MessageKey = "message"

	out, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		out = zap.NewNop()
	}
	return &Logger{out: out}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{out: zap.NewNop()}
}

// SetLevel changes the level of every Logger. Unknown names keep the current level.
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return
	}
	level.SetLevel(l)
}

// Anonymize replaces sensitive information in logs (emails, tokens, session cookies)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = cookieRegex.ReplaceAllString(s, "sid=[REDACTED_SESSION]")
	return s
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.out.Info(Anonymize(msg), zap.String("module", module))
}

func (l *Logger) Debug(module, msg string) {
	l.out.Debug(Anonymize(msg), zap.String("module", module))
}

func (l *Logger) Warn(module, msg string) {
	l.out.Warn(Anonymize(msg), zap.String("module", module))
}

func (l *Logger) Error(module, msg string, err error) {
	fields := []zap.Field{zap.String("module", module)}
	if err != nil {
		fields = append(fields, zap.String("error", Anonymize(err.Error())))
	}
	l.out.Error(Anonymize(msg), fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.out.Sync()
}
