package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
}

// Config contains logger configuration
type Config struct {
	Level  string
	Format string // json or console
	File   *FileConfig
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled bool
	Path    string
}

// New creates a logger writing to stderr and, when enabled, to a JSON file
func New(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	// Cleaned text goes to stdout in -stdin mode, so logs use stderr.
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(config.Format), zapcore.AddSync(os.Stderr), level),
	}

	if config.File != nil && config.File.Enabled {
		core, err := newFileCore(config.File.Path, level)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: logger}, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "console" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// newFileCore appends JSON lines to path, creating its directory
func newFileCore(path string, level zapcore.Level) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return zapcore.NewCore(newEncoder("json"), zapcore.AddSync(file), level), nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithRequestID adds a request ID to the logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("request_id", requestID))}
}

// WithComponent adds a component name to the logger context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

// LogClean records one cleaning outcome. Text bodies are only logged at
// debug level; info carries sizes and stages.
func (l *Logger) LogClean(source string, original, cleaned string, changed bool, stages []string) {
	if !changed {
		l.Debug("Text unchanged",
			zap.String("source", source),
			zap.Int("length", len(original)),
		)
		return
	}

	l.Info("Text cleaned",
		zap.String("source", source),
		zap.Int("original_length", len(original)),
		zap.Int("cleaned_length", len(cleaned)),
		zap.Strings("stages", stages),
	)

	if ce := l.Check(zapcore.DebugLevel, "Cleaned text"); ce != nil {
		ce.Write(
			zap.String("source", source),
			zap.String("original", original),
			zap.String("cleaned", cleaned),
		)
	}
}
