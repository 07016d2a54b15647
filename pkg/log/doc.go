/*
Package log provides structured logging for Storeplane using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Usage

Initializing the logger:

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Component loggers:

	apiLog := log.WithComponent("api")
	apiLog.Info().Str("tenant_id", tenant).Msg("store created")

	storeLog := log.WithStoreID("store-abcd1234")
	storeLog.Error().Err(err).Msg("install failed")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields (component, store, tenant)
  - Automatically includes context in all logs

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Log errors with .Err() so they are machine-parseable

Don't:
  - Log secrets (database passwords, tenant data)
  - Use Debug level in production
  - Log inside the readiness poll loop at Info level
*/
package log
