// Package station is the scanning-station edge client: its configuration,
// its HTTP link to the attendance server, and the controller that decides
// between the online path and the offline queue.
package station

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	id "flock/pkg/domain"
)

// Config is the station's YAML configuration file.
type Config struct {
	// ServerURL is the attendance server base URL.
	ServerURL string `yaml:"server_url"`
	// StationID identifies this station in every mark it records.
	StationID string `yaml:"station_id"`
	// QueuePath is the SQLite file for the offline queue.
	QueuePath string `yaml:"queue_path"`
	// ServiceType is the default service this station scans for.
	ServiceType string `yaml:"service_type"`
	// MinistryID scopes the station to a ministry; empty means
	// church-wide.
	MinistryID string `yaml:"ministry_id"`
	// BatchSize bounds one sync sweep.
	BatchSize int `yaml:"batch_size"`
	// SyncInterval is the periodic sweep backstop.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// LoadConfig reads and validates the station config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station config: %w", err)
	}

	cfg := &Config{
		QueuePath:    "station-queue.db",
		BatchSize:    25,
		SyncInterval: 30 * time.Second,
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse station config: %w", err)
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("station config: server_url is required")
	}
	if _, err := id.ParseStationID(cfg.StationID); err != nil {
		return nil, fmt.Errorf("station config: %w", err)
	}
	if cfg.ServiceType == "" {
		return nil, fmt.Errorf("station config: service_type is required")
	}
	return cfg, nil
}

// ParsedStationID returns the typed station ID. Valid after LoadConfig.
func (c *Config) ParsedStationID() id.StationID {
	parsed, _ := id.ParseStationID(c.StationID)
	return parsed
}
