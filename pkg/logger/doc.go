// Package logger provides a thin wrapper around Go's slog package adding
// functional options for configuration and helper attribute constructors.
//
// The package standardises structured logging across binaries by exposing a
// single factory, New, that creates a *slog.Logger configured by a set of
// Option functions. These options allow you to:
//
//   - Select an output format (text or json)
//   - Set the minimum log level
//   - Supply default slog.Attr values applied to every record
//   - Apply sensible per-environment defaults (WithDevelopment, WithProduction)
//
// Helper constructors such as Error, JobID and Queue live in attr.go and
// return commonly-used slog.Attr instances to keep attribute naming
// consistent across the codebase.
//
// # Usage
//
//	import "github.com/dmitrymomot/jobqueue/pkg/logger"
//
//	func main() {
//	    log := logger.New(
//	        logger.WithEnvironment(cfg.Env, "jobqueue-worker"),
//	    )
//	    logger.SetAsDefault(log)
//
//	    log.Info("worker started", logger.Queue("default"))
//	}
package logger
