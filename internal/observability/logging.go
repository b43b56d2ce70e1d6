// Package observability provides process-wide logging.
//
// CLILogger is the logger for command-line execution paths. It defaults
// to a no-op logger so library code and tests never nil-check; Init
// replaces it once flags and configuration are parsed.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process logger. Safe to use before Init (no-op).
var CLILogger = zap.NewNop()

// Init builds the process logger.
//
// level is a zap level name ("debug", "info", "warn", "error").
// format is "console" for human-readable CLI output or "json" for
// structured output suitable for log shipping.
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return fmt.Errorf("invalid log format %q (console or json)", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// Logs go to stderr; stdout is reserved for command output.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	_ = CLILogger.Sync()
}
