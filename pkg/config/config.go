// Package config loads and validates the configuration for a carry node:
// its node identity, schema, merge strategy, storage backend, and the
// server/cluster/broadcast settings a server replica needs.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/carrysync/carry/pkg/broadcast"
	"github.com/carrysync/carry/pkg/cluster"
	"github.com/carrysync/carry/pkg/persistence/postgres"
	"github.com/carrysync/carry/pkg/reconcile"
)

var validate = validator.New()

// Config is the top-level node configuration, loaded from a YAML file and
// overridable per field by cmd/carry flags.
type Config struct {
	NodeID     string `yaml:"nodeId" validate:"required"`
	SchemaPath string `yaml:"schemaPath" validate:"required"`
	DataDir    string `yaml:"dataDir" validate:"required"`
	LogLevel   string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`

	Strategy reconcile.MergeStrategy `yaml:"strategy" validate:"omitempty,oneof=clockWins timestampWins"`

	Server   ServerConfig     `yaml:"server"`
	Cluster  cluster.Config   `yaml:"cluster"`
	Postgres postgres.Config  `yaml:"postgres"`
	Redis    broadcast.Config `yaml:"redis"`
}

// ServerConfig configures the HTTP+JSON sync server.
type ServerConfig struct {
	BindAddr        string  `yaml:"bindAddr" validate:"omitempty,hostname_port"`
	RateLimitPerSec float64 `yaml:"rateLimitPerSec"`
	RateLimitBurst  int     `yaml:"rateLimitBurst"`
}

// DefaultConfig returns a single-node, embedded-storage configuration
// suitable for running carry without Postgres, Raft, or Redis.
func DefaultConfig() Config {
	return Config{
		SchemaPath: "schema.yaml",
		DataDir:    "./data",
		LogLevel:   "info",
		Strategy:   reconcile.ClockWins,
		Server: ServerConfig{
			BindAddr:        "0.0.0.0:8080",
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Postgres: postgres.DefaultConfig(),
	}
}

// Load reads a YAML config file at path, applies it over DefaultConfig,
// and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
