package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9100
checker:
  base_url: "http://localhost:9200"
  timeout_seconds: 30
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if err := LoadFrom(dir); err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if AppConfig.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", AppConfig.Server.Port)
	}
	if AppConfig.Checker.BaseURL != "http://localhost:9200" {
		t.Errorf("unexpected checker URL: %s", AppConfig.Checker.BaseURL)
	}
	if AppConfig.Checker.TimeoutSeconds != 30 {
		t.Errorf("expected timeout 30, got %d", AppConfig.Checker.TimeoutSeconds)
	}
	if AppConfig.Logging.Level != "debug" || AppConfig.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", AppConfig.Logging)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	if err := LoadFrom(t.TempDir()); err != nil {
		t.Fatalf("LoadFrom failed on missing file: %v", err)
	}

	if AppConfig.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", AppConfig.Server.Port)
	}
	if AppConfig.Checker.BaseURL == "" {
		t.Error("expected a default checker URL")
	}
	if AppConfig.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", AppConfig.Logging.Level)
	}
}

func TestLoadFromMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not-a-map"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if err := LoadFrom(dir); err == nil {
		t.Error("expected error for malformed config")
	}
}
