// Package config loads the relay configuration from an optional YAML
// file overlaid with RELAY_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Storage   StorageConfig   `koanf:"storage"`
	Webhooks  []WebhookConfig `koanf:"webhooks"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RequestTimeout is a duration string like "30s".
	RequestTimeout string `koanf:"request_timeout"`
}

type PipelineConfig struct {
	// NormalizePolicy is "optimistic" (default) or "strict"; see the
	// pipeline package for the exact filter-before-path-known semantics.
	NormalizePolicy string `koanf:"normalize_policy"`
}

type StorageConfig struct {
	Type string `koanf:"type"` // sqlite, none
	Path string `koanf:"path"`
}

// WebhookConfig declares one remote refiner.
type WebhookConfig struct {
	Name    string `koanf:"name"`
	URL     string `koanf:"url"`
	Timeout string `koanf:"timeout"`
	Retries int    `koanf:"retries"`
	// OnError is "allow" (fail-open) or "deny" (fail-closed, default).
	OnError string `koanf:"on_error"`
	// Matcher optionally scopes the refiner to a path glob.
	Matcher string `koanf:"matcher"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads path (if non-empty and present) and the environment.
// Environment variables win: RELAY_SERVER_PORT=9090 overrides
// server.port from the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("RELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELAY_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("server.request_timeout") {
		k.Set("server.request_timeout", "30s")
	}
	if !k.Exists("pipeline.normalize_policy") {
		k.Set("pipeline.normalize_policy", "optimistic")
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "none")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Pipeline.NormalizePolicy {
	case "optimistic", "strict":
	default:
		return nil, fmt.Errorf("invalid pipeline.normalize_policy %q (must be 'optimistic' or 'strict')", cfg.Pipeline.NormalizePolicy)
	}

	return &cfg, nil
}
