// Package logging provides structured logging for packpilot.
//
// This package wraps Go's standard log/slog package so that every worker,
// the supervisor and the infrastructure clients log with the same fields.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	devLog := logger.With("device", "127.0.0.1:16384")
//	devLog.Info("step completed", "step", "opening/title")
package logging
