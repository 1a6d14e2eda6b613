package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/storage"
)

func TestEpisodeKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/spool/ep-20260831.json", "ep-20260831"},
		{"ep-001.json", "ep-001"},
		{"/spool/no-extension", "no-extension"},
		{"/spool/dotted.name.json", "dotted.name"},
	}
	for _, tt := range tests {
		if got := episodeKey(tt.path); got != tt.want {
			t.Errorf("episodeKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
llm:
  model: "gemini-2.5-pro"
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("unexpected model: %q", cfg.LLM.Model)
	}
}

func TestSeedCategories(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "categories.yaml")
	seed := `
categories:
  - name: Technology
    description: Hardware and software
  - name: Hardware
    parent: Technology
`
	if err := os.WriteFile(seedPath, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.CategorySeedPath = seedPath

	ctx := context.Background()
	if err := seedCategories(ctx, cfg, store, zap.NewNop()); err != nil {
		t.Fatalf("seedCategories error: %v", err)
	}
	count, err := store.CountCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("seeded %d categories, want 2", count)
	}

	// A second run must not duplicate or overwrite an existing taxonomy.
	if err := seedCategories(ctx, cfg, store, zap.NewNop()); err != nil {
		t.Fatalf("second seedCategories error: %v", err)
	}
	count, _ = store.CountCategories(ctx)
	if count != 2 {
		t.Errorf("reseed changed count to %d", count)
	}
}
