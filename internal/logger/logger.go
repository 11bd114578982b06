// Package logger wraps zerolog for the server's error log and access log.
// File targets are rotated with lumberjack.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"example.com/listingfs/internal/config"
)

const (
	logMaxSize    = 10 // MB
	logMaxBackups = 5
	logMaxAge     = 28 // days
)

// LogFields carries structured key/value pairs attached to a log entry.
type LogFields map[string]interface{}

// Logger is a general logger that contains specific loggers for access and errors.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger // nil when access logging is disabled
	closers   []io.Closer
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, errors.New("logging configuration cannot be nil")
	}

	l := &Logger{}

	errorTarget := "stderr"
	if cfg.ErrorLog != nil && cfg.ErrorLog.Target != nil {
		errorTarget = *cfg.ErrorLog.Target
	}
	errOut, err := l.openTarget(errorTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log target %s: %w", errorTarget, err)
	}
	l.errorLog = zerolog.New(errOut).With().Timestamp().Logger().Level(toZerologLevel(cfg.LogLevel))

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		accessTarget := "stdout"
		if cfg.AccessLog.Target != nil {
			accessTarget = *cfg.AccessLog.Target
		}
		accessOut, err := l.openTarget(accessTarget)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log target %s: %w", accessTarget, err)
		}
		if cfg.AccessLog.Format == "text" {
			accessOut = zerolog.ConsoleWriter{Out: accessOut, NoColor: true}
		}
		al := zerolog.New(accessOut).With().Timestamp().Logger()
		l.accessLog = &al
	}

	return l, nil
}

// NewWithWriter returns a Logger whose error log writes JSON lines to w and whose
// access log is disabled. Intended for tests and embedding.
func NewWithWriter(w io.Writer, level config.LogLevel) *Logger {
	return &Logger{
		errorLog: zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level)),
	}
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

func (l *Logger) openTarget(target string) (io.Writer, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	if !config.IsFilePath(target) {
		return nil, fmt.Errorf("invalid log target: %s", target)
	}
	// Fail early on unwritable locations; lumberjack would only report it on first write.
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	lj := &lumberjack.Logger{
		Filename:   target,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAge,
	}
	l.closers = append(l.closers, lj)
	return lj, nil
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields LogFields) {
	if fields != nil {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields LogFields) { l.log(l.errorLog.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields LogFields) { l.log(l.errorLog.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields LogFields) { l.log(l.errorLog.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields LogFields) { l.log(l.errorLog.Error(), msg, fields) }

// Zerolog exposes the underlying error logger for libraries that want one.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.errorLog
}

// CloseLogFiles closes any open log files.
// This would be called during server shutdown.
func (l *Logger) CloseLogFiles() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}

// ReopenLogFiles rotates every file-backed target, e.g. on SIGHUP.
func (l *Logger) ReopenLogFiles() error {
	var errs []error
	for _, c := range l.closers {
		if lj, ok := c.(*lumberjack.Logger); ok {
			if err := lj.Rotate(); err != nil {
				errs = append(errs, fmt.Errorf("rotate %s: %w", lj.Filename, err))
			}
		}
	}
	return errors.Join(errs...)
}
