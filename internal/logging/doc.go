// Package logging provides structured logging for the planning poker server.
//
// It wraps log/slog with a small [Logger] type that carries persistent
// attributes (team, node and component) into every entry. Output is JSON by
// default, with an optional text format for local development.
//
// # Destinations
//
// With an empty directory the logger writes to stderr, which is what
// container deployments collect. With a directory set, entries are appended
// to planningpoker.log inside it.
//
// # Levels
//
//   - DEBUG: cross-node replay details and lock contention
//   - INFO: team lifecycle, node initialization, server start and stop
//   - WARN: swallowed storage failures, peers that went quiet
//   - ERROR: failures that dropped work
//
// The level can be changed at runtime with [Logger.SetLevel]; child loggers
// created with With, WithTeam, WithNode or WithComponent follow the change.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{Level: "info"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	teamLog := logger.WithComponent("registry").WithTeam("Alpha")
//	teamLog.Info("team created", "leader", "Ann")
package logging
