// Package logging provides the structured loggers shared by the combination
// engine, its processors and the CLI.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service tags every record written through the global logger
const Service = "ltcombine"

// Logger is the global logger instance
var Logger *zap.Logger

// Config contains logging configuration
type Config struct {
	// Level is the minimum log level; unknown levels fall back to info
	Level string `json:"level"`

	// Format is json or console
	Format string `json:"format"`

	// Output is stdout, stderr or a file path opened for appending
	Output string `json:"output"`

	// Development adds stack traces on errors
	Development bool `json:"development"`
}

// DefaultConfig logs info and above to stderr in console format
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Build creates a logger writing to ws. Output in cfg is ignored.
func Build(cfg Config, ws zapcore.WriteSyncer) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	} else {
		encoder = zapcore.NewJSONEncoder(enc)
	}

	opts := []zap.Option{zap.AddCaller(), zap.Fields(zap.String("service", Service))}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, ws, level), opts...)
}

// Initialize replaces the global logger. On error the previous logger is kept.
func Initialize(cfg Config) error {
	var ws zapcore.WriteSyncer
	switch cfg.Output {
	case "stdout":
		ws = zapcore.AddSync(os.Stdout)
	case "stderr", "":
		ws = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		ws = zapcore.AddSync(file)
	}
	Logger = Build(cfg, ws)
	return nil
}

// Sync flushes the global logger
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Component returns the global logger tagged with a component name, or a
// no-op logger before initialization.
func Component(name string) *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger.With(zap.String("component", name))
}

// OrComponent returns l when set, otherwise the named component logger.
// Engine types accept an optional logger and fall back to the global one.
func OrComponent(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Component(name)
}

// Run tags l with the id of one pipeline run
func Run(l *zap.Logger, runID string) *zap.Logger {
	return l.With(zap.String("run_id", runID))
}

func init() {
	_ = Initialize(DefaultConfig())
}
