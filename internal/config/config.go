// Package config holds engram configuration, loaded from TOML with defaults.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all engram configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Forget    ForgetConfig    `toml:"forget"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	URL   string `toml:"url"`   // Ollama endpoint
	Model string `toml:"model"` // e.g. "nomic-embed-text"
}

// ForgetConfig tunes the forgetting engine thresholds.
type ForgetConfig struct {
	MaxFacts             int     `toml:"max_facts"`
	DecayRate            float64 `toml:"decay_rate"`
	NeverAccessedPenalty float64 `toml:"never_accessed_penalty"`
	DemoteThreshold      float64 `toml:"demote_threshold"`
	RetentionDays        int     `toml:"retention_days"`
	MergeThreshold       float64 `toml:"merge_threshold"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			URL:   "http://localhost:11434",
			Model: "nomic-embed-text",
		},
		Forget: ForgetConfig{
			MaxFacts:             1000,
			DecayRate:            0.033,
			NeverAccessedPenalty: 0.1,
			DemoteThreshold:      0.3,
			RetentionDays:        90,
			MergeThreshold:       0.95,
		},
	}
}

// Load reads TOML config from path, overlaying it on defaults. A missing
// file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
