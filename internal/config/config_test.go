package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Fatalf("expected default failure threshold 3, got %d", cfg.Breaker.FailureThreshold)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  addr: \":9090\"\nbreaker:\n  failure_threshold: 7\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected overridden addr, got %q", cfg.Server.Addr)
	}
	if cfg.Breaker.FailureThreshold != 7 {
		t.Fatalf("expected overridden failure threshold, got %d", cfg.Breaker.FailureThreshold)
	}
	// A key the file never mentions keeps its default.
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected untouched key to keep its default, got %q", cfg.Logging.Level)
	}
}

func TestLoadFromEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("TASKFORGE_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("expected the environment to win over the file, got %q", cfg.Server.Addr)
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  addr: \"${TASKFORGE_TEST_ADDR}\"\nrepository:\n  path: \"${TASKFORGE_TEST_PATH:-/tmp/default.db}\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("TASKFORGE_TEST_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":6060" {
		t.Fatalf("expected ${VAR} to resolve from the environment, got %q", cfg.Server.Addr)
	}
	if cfg.Repository.Path != "/tmp/default.db" {
		t.Fatalf("expected an unset ${VAR:-default} to fall back to its default, got %q", cfg.Repository.Path)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	received := make(chan *Config, 1)
	w, err := Watch(path, func(cfg *Config) { received <- cfg })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-received:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("expected reloaded level debug, got %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a reload notification")
	}
}
