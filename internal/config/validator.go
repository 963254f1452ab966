package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "poker.lock_timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validatePoker()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateCluster()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func positiveDuration(field string, d time.Duration) []ValidationError {
	if d > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: d, Message: "must be positive"}}
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must not be empty",
		})
	}
	errors = append(errors, positiveDuration("server.read_timeout", c.Server.ReadTimeout)...)
	errors = append(errors, positiveDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)...)

	// Long polls must finish before the server gives up on the response
	if c.Server.WriteTimeout <= c.Poker.WaitForMessageTimeout {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Value:   c.Server.WriteTimeout,
			Message: fmt.Sprintf("must exceed poker.wait_for_message_timeout (%v)", c.Poker.WaitForMessageTimeout),
		})
	}

	return errors
}

// validatePoker validates the PokerConfig
func (c *Config) validatePoker() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positiveDuration("poker.lock_timeout", c.Poker.LockTimeout)...)
	errors = append(errors, positiveDuration("poker.wait_for_message_timeout", c.Poker.WaitForMessageTimeout)...)
	errors = append(errors, positiveDuration("poker.inactivity_timeout", c.Poker.InactivityTimeout)...)
	errors = append(errors, positiveDuration("poker.inactivity_check_interval", c.Poker.InactivityCheckInterval)...)

	if c.Poker.SweepWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "poker.sweep_workers",
			Value:   c.Poker.SweepWorkers,
			Message: "must be at least 1",
		})
	}

	// Reasonable upper bound for sweep parallelism
	const maxSweepWorkers = 64
	if c.Poker.SweepWorkers > maxSweepWorkers {
		errors = append(errors, ValidationError{
			Field:   "poker.sweep_workers",
			Value:   c.Poker.SweepWorkers,
			Message: fmt.Sprintf("must be at most %d", maxSweepWorkers),
		})
	}

	return errors
}

// validateStorage validates the StorageConfig
func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStorageDrivers(), c.Storage.Driver) {
		errors = append(errors, ValidationError{
			Field:   "storage.driver",
			Value:   c.Storage.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStorageDrivers(), ", ")),
		})
	}

	switch c.Storage.Driver {
	case "file":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.dir",
				Value:   c.Storage.Dir,
				Message: "is required for the file driver",
			})
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.dsn",
				Value:   c.Storage.DSN,
				Message: "is required for the postgres driver",
			})
		}
	}

	return errors
}

// validateCluster validates the ClusterConfig
func (c *Config) validateCluster() []ValidationError {
	if !c.Cluster.Enabled {
		return nil
	}
	var errors []ValidationError

	if !slices.Contains(ValidBuses(), c.Cluster.Bus) {
		errors = append(errors, ValidationError{
			Field:   "cluster.bus",
			Value:   c.Cluster.Bus,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBuses(), ", ")),
		})
	}
	if c.Cluster.Bus == "postgres" {
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.dsn",
				Value:   c.Storage.DSN,
				Message: "is required for the postgres bus",
			})
		}
		if c.Cluster.Channel == "" {
			errors = append(errors, ValidationError{
				Field:   "cluster.channel",
				Value:   c.Cluster.Channel,
				Message: "must not be empty",
			})
		}
	}
	errors = append(errors, positiveDuration("cluster.initialization_timeout", c.Cluster.InitializationTimeout)...)
	errors = append(errors, positiveDuration("cluster.initialization_message_timeout", c.Cluster.InitializationMessageTimeout)...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}
