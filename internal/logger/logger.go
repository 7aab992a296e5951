// Package logger wraps zap with the small surface the rest of the service
// needs: leveled sugared logging, structured fields, and a Sync hook for
// shutdown.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// New creates a logger. In production it emits JSON to stdout and a log file
// under dir; otherwise it emits console-encoded lines to stdout only.
func New(env, levelName, dir string) *Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var output io.Writer = os.Stdout
	var encoder zapcore.Encoder
	if env == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
		if dir != "" {
			if err := os.MkdirAll(dir, 0o755); err == nil {
				file, err := os.OpenFile(filepath.Join(dir, "zar.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err == nil {
					output = io.MultiWriter(os.Stdout, file)
				}
			}
		}
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), parseLevel(levelName))

	opts := []zap.Option{zap.AddCaller()}
	if env != "production" {
		opts = append(opts, zap.Development())
	}

	return &Logger{SugaredLogger: zap.New(core, opts...).Sugar()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(kv...)}
}

// Sync flushes buffered entries. Safe to call on shutdown paths.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
