// Package logger provides the logging facilities used across the library.
// It wraps zap with a custom SUCCESS level, a compact colored console
// encoder, and an optional rotating JSON file output.
//
// The task engine itself only ever logs at debug level, so with the default
// options (console at InfoLevel) a consumer of the library sees no output
// unless they opt in.
package logger

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level defines the log level. Levels map onto zapcore levels, with
// SuccessLevel handled by the console encoder for distinct display.
type Level int8

const (
	// DebugLevel logs are voluminous and disabled by default.
	DebugLevel Level = iota - 1
	// InfoLevel is the default priority for operational messages.
	InfoLevel
	// SuccessLevel marks successful completion of significant operations.
	// Rendered distinctively (green) on the console.
	SuccessLevel
	// WarnLevel marks potential issues that are not yet errors.
	WarnLevel
	// ErrorLevel marks problems that need attention.
	ErrorLevel
)

// String returns a lowercase representation of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case SuccessLevel:
		return "success"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", l)
	}
}

// CapitalString returns an uppercase representation of the level.
func (l Level) CapitalString() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case SuccessLevel:
		return "SUCCESS"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// ToZapLevel converts the level to its underlying zapcore.Level.
// SuccessLevel logs travel through zap as InfoLevel; the console encoder
// restores the SUCCESS tag from a marker field.
func (l Level) ToZapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel, SuccessLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options holds logger configuration.
type Options struct {
	// ConsoleLevel sets the minimum level for console output.
	ConsoleLevel Level
	// FileLevel sets the minimum level for file output.
	FileLevel Level
	// LogFilePath is the log file location. Required when FileOutput is set.
	LogFilePath string
	// ConsoleOutput enables logging to stdout.
	ConsoleOutput bool
	// FileOutput enables logging to a rotating JSON file.
	FileOutput bool
	// ColorConsole enables colored console output.
	ColorConsole bool
	// TimestampFormat is the timestamp layout for both outputs.
	TimestampFormat string
	// MaxFileSizeMB is the size at which the log file rotates. Default 50.
	MaxFileSizeMB int
	// MaxBackups is how many rotated files to keep. Default 3.
	MaxBackups int
}

// DefaultOptions returns the standard configuration: INFO+ to a colored
// console, no file output.
func DefaultOptions() Options {
	return Options{
		ConsoleLevel:    InfoLevel,
		FileLevel:       DebugLevel,
		LogFilePath:     "yakka.log",
		ConsoleOutput:   true,
		FileOutput:      false,
		ColorConsole:    true,
		TimestampFormat: time.RFC3339,
		MaxFileSizeMB:   50,
		MaxBackups:      3,
	}
}

// Logger wraps zap.SugaredLogger with custom level handling.
type Logger struct {
	*zap.SugaredLogger
	opts Options
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Init initializes the global logger. Call once at startup; later calls are
// no-ops. If construction fails, Init falls back to a plain development
// logger on stderr so logging is always available.
func Init(opts Options) {
	once.Do(func() {
		l, err := NewLogger(opts)
		if err != nil {
			cfg := zap.NewDevelopmentConfig()
			fallback, _ := cfg.Build(zap.AddCallerSkip(1))
			l = &Logger{SugaredLogger: fallback.Sugar(), opts: opts}
			l.Warnf("logger init failed, using fallback: %v", err)
		}
		globalLogger = l
	})
}

// Get returns the global logger, initializing it with DefaultOptions if
// Init was never called.
func Get() *Logger {
	if globalLogger == nil {
		Init(DefaultOptions())
	}
	return globalLogger
}

// SyncGlobal flushes buffered entries on the global logger.
func SyncGlobal() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

// NewLogger builds a logger instance from opts. Multiple instances with
// different configurations can coexist; most callers want Init/Get.
func NewLogger(opts Options) (*Logger, error) {
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = time.RFC3339
	}

	var cores []zapcore.Core

	if opts.ConsoleOutput {
		cores = append(cores, newConsoleCore(opts))
	}

	if opts.FileOutput {
		if opts.LogFilePath == "" {
			return nil, errors.New("log file path required when file output is enabled")
		}
		cores = append(cores, newFileCore(opts))
	}

	if len(cores) == 0 {
		return &Logger{SugaredLogger: zap.NewNop().Sugar(), opts: opts}, nil
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &Logger{SugaredLogger: z.Sugar(), opts: opts}, nil
}

func newFileCore(opts Options) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	maxSize := opts.MaxFileSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.LogFilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	})

	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= opts.FileLevel.ToZapLevel()
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, enabler)
}

// Successf logs a formatted message at SuccessLevel. It travels through zap
// at InfoLevel with a marker field the console encoder understands.
func (l *Logger) Successf(template string, args ...interface{}) {
	l.SugaredLogger.Infow(fmt.Sprintf(template, args...), levelMarkerKey, SuccessLevel.CapitalString())
}

// Success logs a message at SuccessLevel.
func (l *Logger) Success(args ...interface{}) {
	l.SugaredLogger.Infow(fmt.Sprint(args...), levelMarkerKey, SuccessLevel.CapitalString())
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
