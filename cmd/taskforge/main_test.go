package main

import (
	"testing"

	"github.com/kadirpekel/taskforge/internal/config"
)

func TestBuildRepositoryMemoryDefault(t *testing.T) {
	repo, err := buildRepository(config.RepositoryConfig{})
	if err != nil {
		t.Fatalf("buildRepository: %v", err)
	}
	if repo == nil {
		t.Fatal("expected a non-nil memory repository")
	}
}

func TestBuildRepositoryRejectsUnknownBackend(t *testing.T) {
	_, err := buildRepository(config.RepositoryConfig{Backend: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestBuildRepositorySQLite(t *testing.T) {
	dir := t.TempDir()
	repo, err := buildRepository(config.RepositoryConfig{Backend: "sqlite", Path: dir + "/tasks.db"})
	if err != nil {
		t.Fatalf("buildRepository: %v", err)
	}
	if repo == nil {
		t.Fatal("expected a non-nil sqlite repository")
	}
}
