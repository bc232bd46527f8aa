/*
Package log provides structured logging for carry using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and optional file
rotation via lumberjack. All logs include timestamps and can be filtered
by severity for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all carry packages without being passed around
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console output
  - Output: io.Writer for log destination (stdout by default)
  - Rotation: optional lumberjack-backed file rotation

Context Loggers:
  - WithComponent: tag logs with a subsystem name ("store", "server", "cluster")
  - WithNodeID: tag logs with the local or remote node id
  - WithCollection: tag logs with a schema collection name
  - WithOpID: tag logs with an operation id

# Usage

Initializing the logger:

	import "github.com/carrysync/carry/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// route output through lumberjack instead
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Rotation: &log.FileRotation{
			Path:       "/var/log/carry/carry.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
	})

Simple logging:

	log.Info("store initialized")
	log.Debug("checking pending operations")
	log.Warn("rate limit exceeded for node")
	log.Error("failed to reach postgres")
	log.Fatal("cannot start without a node id") // exits process

Component loggers:

	storeLog := log.WithComponent("store")
	storeLog.Info().Str("collection", "docs").Msg("applied create")

	opLog := log.WithOpID(op.OpID)
	opLog.Debug().Msg("operation rejected by reconciler")

# Design Patterns

Global logger pattern: a single package-level Logger instance initialized
once at startup and read from everywhere, avoiding a logger parameter on
every function signature.

Context logger pattern: create a child logger with .With() once per
request or operation and pass that down, rather than re-attaching the
same fields at every call site.

# Best Practices

Do:
  - Use Info level in production
  - Use structured fields (.Str, .Err) instead of string concatenation
  - Tag logs with the node id and op id when handling a specific operation

Don't:
  - Log record payload contents (may contain sensitive application data)
  - Use Debug level in production
  - Log inside tight reconciliation loops without sampling
*/
package log
