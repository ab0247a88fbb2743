package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8001 {
		t.Errorf("server port = %d, want 8001", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://localhost:8001/api/v1" {
		t.Errorf("base url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 120*time.Second {
		t.Errorf("timeout = %v, want 120s", cfg.Backend.Timeout)
	}
	if cfg.Chat.Mode != "general" {
		t.Errorf("mode = %q, want general", cfg.Chat.Mode)
	}
	if !cfg.Chat.EnableSafetyCheck {
		t.Error("safety check should default to enabled")
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("storage type = %q, want none", cfg.Storage.Type)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  base_url: http://file.example/api/v1
  timeout: 30s
chat:
  mode: medical
storage:
  type: sqlite
  sqlite:
    path: /tmp/transcripts.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("RAG_BACKEND__BASE_URL", "http://env.example/api/v1")
	t.Setenv("RAG_CHAT__SESSION_ID", "s-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://env.example/api/v1" {
		t.Errorf("env should override file, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s from file", cfg.Backend.Timeout)
	}
	if cfg.Chat.Mode != "medical" {
		t.Errorf("mode = %q, want medical from file", cfg.Chat.Mode)
	}
	if cfg.Chat.SessionID != "s-from-env" {
		t.Errorf("session id = %q, want s-from-env", cfg.Chat.SessionID)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/transcripts.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config file should not be fatal: %v", err)
	}
}
