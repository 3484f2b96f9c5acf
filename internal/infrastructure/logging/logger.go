package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/packpilot/internal/infrastructure/config"
)

// logFilePermissions is the permission mode for file log output.
const logFilePermissions = 0640

// Logger wraps slog.Logger with packpilot-specific functionality.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Format: "json" for machine-readable output, anything else for text
//   - Level: debug, info, warn or error (default info)
//   - Output: "stdout", "stderr" or a file path opened in append mode,
//     falling back to stderr when the file cannot be opened
//   - Default attributes: service name and build version
//
// Parameters:
//   - cfg: Logging section of the packpilot config
//   - version: Build version attached to every record
//
// Returns:
//   - *Logger: Ready to use, never nil
func New(cfg config.LoggingConfig, version string) *Logger {
	output := openOutput(cfg.Output)

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "packpilot"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// openOutput resolves the configured output destination.
func openOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return os.Stderr
	}
	return f
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	workerLog := logger.With("component", "worker", "device", serial)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a text logger on stdout at info level for use before
// configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}, "dev")
}
