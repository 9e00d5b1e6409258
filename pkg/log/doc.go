/*
Package log provides structured logging for stevedore built on zerolog.

A single global logger is initialized once at startup from the CLI flags
(console output by default, JSON with --json for CI pipelines). Components
derive child loggers carrying stable fields:

	logger := log.WithComponent("deploy")
	logger.Info().Str("tag", tag).Msg("starting release")

Recurring identifiers (service, attempt_id) are chained onto the
component logger with zerolog's With().
*/
package log
