package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// baseWriter is the writer Init configured Logger with (stderr, or a
	// caller-supplied io.Writer such as a RotatingFileWriter). Init does not
	// open a rotating file by itself. WithBrokerSink fans out to it plus a
	// BrokerSink rather than replacing it outright.
	baseWriter io.Writer
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		baseWriter = output
	} else {
		baseWriter = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(baseWriter).With().Timestamp().Logger()
}

// WithBrokerSink fans l's output out to its existing writer plus a
// BrokerSink for module, added once the module's channel is up. The
// existing writer is whatever Init installed as baseWriter (stderr unless
// Config.Output named another writer); no rotating file is added here or by
// Init unless the caller passed a RotatingFileWriter as Config.Output.
func WithBrokerSink(l zerolog.Logger, module string, pub Publisher) zerolog.Logger {
	w := baseWriter
	if w == nil {
		w = os.Stderr
	}
	return l.Output(zerolog.MultiLevelWriter(w, NewBrokerSink(module, pub)))
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithModule creates a child logger tagged with a module's display name,
// mirroring the per-module logger the original BaseModule builds.
func WithModule(module string) zerolog.Logger {
	return Logger.With().Str("module", module).Logger()
}

// WithPrefix adds the module instance's routing prefix, if any.
func WithPrefix(l zerolog.Logger, prefix string) zerolog.Logger {
	if prefix == "" {
		return l
	}
	return l.With().Str("prefix", prefix).Logger()
}

func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
