// Package config loads application configuration from an optional YAML file
// and RAG_-prefixed environment variables, environment taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Chat    ChatConfig    `koanf:"chat"`
	Storage StorageConfig `koanf:"storage"`
}

// ServerConfig configures the mock backend server.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// BackendConfig configures the chat API client.
type BackendConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// ChatConfig carries client-side chat defaults.
type ChatConfig struct {
	Mode              string `koanf:"mode"` // general or medical
	SessionID         string `koanf:"session_id"`
	FileID            string `koanf:"file_id"`
	EnableSafetyCheck bool   `koanf:"enable_safety_check"`
}

// StorageConfig configures the local transcript store.
type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite or none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// Load reads configuration. path may be empty or point to a YAML file; a
// missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Default values
	k.Set("server.port", 8001)
	k.Set("backend.base_url", "http://localhost:8001/api/v1")
	k.Set("backend.timeout", "120s")
	k.Set("chat.mode", "general")
	k.Set("chat.enable_safety_check", true)
	k.Set("storage.type", "none")
	k.Set("storage.sqlite.path", "./data/ragagent.db")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	// Environment variables override file values. Double underscore separates
	// nesting levels so multi-word keys survive, e.g.
	// RAG_BACKEND__BASE_URL -> backend.base_url
	if err := k.Load(env.Provider("RAG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RAG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
