// Package logging is the non-ISR reporting path for the stepper motion
// core: structured, leveled logging with console output plus a rotating
// file sink. Nothing in this package is built for a hard real-time
// interrupt: it allocates and may block on I/O. The hot path in
// motion.Controller.Tick reports through core.RecordTiming's lock-free
// ring, with one exception: discarding a stale busy block at pickup logs
// an error through this package.
package logging

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// FileOptions configures the rotating log file (github.com/natefinch/lumberjack).
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger wraps a zap.Logger with the sugared helpers the rest of this
// module calls. Rather than a package-level global, a Controller owns its
// own instance so multiple stepper cores in one process (e.g. tests)
// don't share log state.
type Logger struct {
	z *zap.Logger
}

func encoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// New builds a console+file tee logger at the given level. Pass a zero
// FileOptions to disable the file sink (console only), which is what
// tests should do.
func New(level Level, file FileOptions) *Logger {
	enc := encoder()
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}

	if file.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			LocalTime:  true,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(lj), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{z: z}
}

// Noop returns a Logger that discards everything, for tests that don't
// want console noise.
func Noop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) Sync() {
	if l == nil || l.z == nil {
		return
	}
	_ = l.z.Sync()
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l != nil && l.z != nil {
		l.z.Sugar().Infof(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l != nil && l.z != nil {
		l.z.Sugar().Warnf(format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l != nil && l.z != nil {
		l.z.Sugar().Errorf(format, args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l != nil && l.z != nil {
		l.z.Sugar().Debugf(format, args...)
	}
}
