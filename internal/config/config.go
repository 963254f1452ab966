package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that overrides a setting,
// e.g. PLANNINGPOKER_STORAGE_DRIVER.
const EnvPrefix = "PLANNINGPOKER"

// Config represents the complete planningpoker configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Poker   PokerConfig   `mapstructure:"poker" yaml:"poker"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// ReadTimeout bounds reading a request, headers included
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout bounds writing a response. It must exceed
	// poker.wait_for_message_timeout or long polls are cut off.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowedOrigins lists origin patterns allowed to open message streams
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// PokerConfig controls team locking and inactivity
type PokerConfig struct {
	// LockTimeout bounds waiting for a team lock
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	// WaitForMessageTimeout bounds one message poll
	WaitForMessageTimeout time.Duration `mapstructure:"wait_for_message_timeout" yaml:"wait_for_message_timeout"`
	// InactivityTimeout disconnects participants not seen for this long.
	// Reloaded live when the config file changes.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" yaml:"inactivity_timeout"`
	// InactivityCheckInterval is how often the inactivity sweep runs
	InactivityCheckInterval time.Duration `mapstructure:"inactivity_check_interval" yaml:"inactivity_check_interval"`
	// SweepWorkers bounds how many teams are swept in parallel
	SweepWorkers int `mapstructure:"sweep_workers" yaml:"sweep_workers"`
}

// StorageConfig selects where teams are persisted
type StorageConfig struct {
	// Driver is one of: "memory", "file", "postgres"
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Dir holds one JSON file per team for the file driver
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DSN is the PostgreSQL connection string for the postgres driver
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// Migrate applies schema migrations on startup (postgres only)
	Migrate bool `mapstructure:"migrate" yaml:"migrate"`
}

// ClusterConfig controls team synchronization between nodes
type ClusterConfig struct {
	// Enabled turns on the synchronizer
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// NodeID names this node on the bus. Empty means a random id.
	NodeID string `mapstructure:"node_id" yaml:"node_id"`
	// Bus is one of: "memory", "postgres". The postgres bus shares
	// storage.dsn.
	Bus string `mapstructure:"bus" yaml:"bus"`
	// Channel is the LISTEN/NOTIFY channel of the postgres bus
	Channel string `mapstructure:"channel" yaml:"channel"`
	// InitializationTimeout bounds the wait for a peer's team list
	InitializationTimeout time.Duration `mapstructure:"initialization_timeout" yaml:"initialization_timeout"`
	// InitializationMessageTimeout bounds the silence between handed-over teams
	InitializationMessageTimeout time.Duration `mapstructure:"initialization_message_timeout" yaml:"initialization_message_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "text"
	Format string `mapstructure:"format" yaml:"format"`
	// Dir holds planningpoker.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second, // above the 60s message poll
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{},
		},
		Poker: PokerConfig{
			LockTimeout:             10 * time.Second,
			WaitForMessageTimeout:   60 * time.Second,
			InactivityTimeout:       15 * time.Minute,
			InactivityCheckInterval: time.Minute,
			SweepWorkers:            4,
		},
		Storage: StorageConfig{
			Driver:  "memory",
			Dir:     "",
			DSN:     "",
			Migrate: true,
		},
		Cluster: ClusterConfig{
			Enabled:                      false,
			NodeID:                       "",
			Bus:                          "postgres",
			Channel:                      "planningpoker_nodes",
			InitializationTimeout:        60 * time.Second,
			InitializationMessageTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Dir:    "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	viper.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Poker defaults
	viper.SetDefault("poker.lock_timeout", defaults.Poker.LockTimeout)
	viper.SetDefault("poker.wait_for_message_timeout", defaults.Poker.WaitForMessageTimeout)
	viper.SetDefault("poker.inactivity_timeout", defaults.Poker.InactivityTimeout)
	viper.SetDefault("poker.inactivity_check_interval", defaults.Poker.InactivityCheckInterval)
	viper.SetDefault("poker.sweep_workers", defaults.Poker.SweepWorkers)

	// Storage defaults
	viper.SetDefault("storage.driver", defaults.Storage.Driver)
	viper.SetDefault("storage.dir", defaults.Storage.Dir)
	viper.SetDefault("storage.dsn", defaults.Storage.DSN)
	viper.SetDefault("storage.migrate", defaults.Storage.Migrate)

	// Cluster defaults
	viper.SetDefault("cluster.enabled", defaults.Cluster.Enabled)
	viper.SetDefault("cluster.node_id", defaults.Cluster.NodeID)
	viper.SetDefault("cluster.bus", defaults.Cluster.Bus)
	viper.SetDefault("cluster.channel", defaults.Cluster.Channel)
	viper.SetDefault("cluster.initialization_timeout", defaults.Cluster.InitializationTimeout)
	viper.SetDefault("cluster.initialization_message_timeout", defaults.Cluster.InitializationMessageTimeout)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "planningpoker")
	}
	// Fall back to ~/.config/planningpoker
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planningpoker"
	}
	return filepath.Join(home, ".config", "planningpoker")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidStorageDrivers returns the list of valid storage drivers
func ValidStorageDrivers() []string {
	return []string{"memory", "file", "postgres"}
}

// ValidBuses returns the list of valid cluster bus kinds
func ValidBuses() []string {
	return []string{"memory", "postgres"}
}
