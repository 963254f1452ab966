package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantFields []string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:       "unknown storage driver",
			modify:     func(c *Config) { c.Storage.Driver = "redis" },
			wantFields: []string{"storage.driver"},
		},
		{
			name:       "file driver without dir",
			modify:     func(c *Config) { c.Storage.Driver = "file" },
			wantFields: []string{"storage.dir"},
		},
		{
			name:       "postgres driver without dsn",
			modify:     func(c *Config) { c.Storage.Driver = "postgres" },
			wantFields: []string{"storage.dsn"},
		},
		{
			name: "postgres bus without dsn",
			modify: func(c *Config) {
				c.Cluster.Enabled = true
				c.Cluster.Bus = "postgres"
			},
			wantFields: []string{"storage.dsn"},
		},
		{
			name: "cluster settings ignored while disabled",
			modify: func(c *Config) {
				c.Cluster.Bus = "kafka"
				c.Cluster.InitializationTimeout = 0
			},
		},
		{
			name: "unknown bus",
			modify: func(c *Config) {
				c.Cluster.Enabled = true
				c.Cluster.Bus = "kafka"
			},
			wantFields: []string{"cluster.bus"},
		},
		{
			name: "non-positive timeouts",
			modify: func(c *Config) {
				c.Poker.LockTimeout = 0
				c.Poker.InactivityTimeout = -time.Second
			},
			wantFields: []string{"poker.lock_timeout", "poker.inactivity_timeout"},
		},
		{
			name: "write timeout below message wait",
			modify: func(c *Config) {
				c.Server.WriteTimeout = 30 * time.Second
			},
			wantFields: []string{"server.write_timeout"},
		},
		{
			name:       "sweep workers out of range",
			modify:     func(c *Config) { c.Poker.SweepWorkers = 0 },
			wantFields: []string{"poker.sweep_workers"},
		},
		{
			name: "bad logging",
			modify: func(c *Config) {
				c.Logging.Level = "verbose"
				c.Logging.Format = "xml"
			},
			wantFields: []string{"logging.level", "logging.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Validate() = %v, want errors for %v", errs, tt.wantFields)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, field)
				}
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "storage.driver", Value: "redis", Message: "must be one of: memory"}}
	if got := single.Error(); got != "storage.driver: must be one of: memory (got: redis)" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	got := multi.Error()
	if !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("Error() = %q, want count prefix", got)
	}
	if !strings.Contains(got, "2. b: worse (got: 2)") {
		t.Errorf("Error() = %q, want numbered entries", got)
	}

	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should have empty message")
	}
}
