package events

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/castleatlas/atlas/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Redacted replaces the value of any secret-looking field.
const Redacted = "[REDACTED]"

// Logger provides structured logging on top of zap.
type Logger struct {
	z     *zap.Logger
	level LogLevel

	// closer is the log file opened by NewLogger. Derived loggers leave it
	// nil so only the root closes it.
	closer io.Closer
}

// NewLogger creates a logger from config.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var output io.Writer = os.Stderr
	var file *os.File
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		output = f
	}

	color := cfg.Color && isTerminal(output)

	l := newLogger(level, cfg.Format, output, color, true)
	if file != nil {
		l.closer = file
	}
	return l, nil
}

// NewTestLogger creates a logger for testing. Entries carry no timestamp.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return newLogger(level, format, output, false, false)
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop(), level: ErrorLevel}
}

func newLogger(level LogLevel, format string, output io.Writer, color, timestamps bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.MessageKey = "msg"
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if !timestamps {
		encCfg.TimeKey = ""
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if color {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encCfg.CallerKey = ""
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), toZapLevel(level))

	return &Logger{
		z:     zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: level,
	}
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		z:     l.must().With(field(key, value)),
		level: l.Level(),
	}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, field(k, v))
	}

	return &Logger{
		z:     l.must().With(zf...),
		level: l.Level(),
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.must().Debug(sanitizeString(msg))
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.must().Info(sanitizeString(msg))
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.must().Warn(sanitizeString(msg))
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.must().Error(sanitizeString(msg))
}

// Level returns the minimum level this logger writes.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return ErrorLevel
	}
	return l.level
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.must().Sync()
}

// Close flushes buffered entries and closes the log file, if any. Entries
// written through this logger or its derivatives afterwards are lost.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}

	syncErr := l.z.Sync()
	closeErr := l.closer.Close()
	l.closer = nil
	if closeErr != nil {
		return fmt.Errorf("close log file: %w", closeErr)
	}
	// Sync on a regular file only fails if the file itself failed.
	return syncErr
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.must()
}

func (l *Logger) must() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// field builds a zap field, redacting secrets and escaping control characters.
func field(key string, value interface{}) zap.Field {
	if isSecretKey(key) {
		return zap.String(key, Redacted)
	}

	switch v := value.(type) {
	case string:
		return zap.String(key, sanitizeString(v))
	case fmt.Stringer:
		return zap.String(key, sanitizeString(v.String()))
	default:
		return zap.Any(key, v)
	}
}

var secretWords = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"api_key",
	"private_key",
	"authorization",
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, w := range secretWords {
		if k == w || strings.HasSuffix(k, "_"+w) {
			return true
		}
	}
	return false
}

// controlCharReplacer escapes characters that could forge entries in the
// console encoder.
var controlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitizeString(s string) string {
	return controlCharReplacer.Replace(s)
}

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ParseLevel converts a config level name. Unknown names map to InfoLevel.
func ParseLevel(s string) LogLevel {
	return parseLevel(s)
}

func toZapLevel(l LogLevel) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
