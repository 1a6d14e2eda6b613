// Package config provides configuration loading and structs for the Kiru pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`
	Tagger    TaggerConfig    `yaml:"tagger"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
}

// LLMConfig holds chat-model settings. The API key is read from the
// environment variable named by APIKeyEnv; the key itself never appears in
// config files.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EmbeddingConfig holds ONNX embedder settings. An empty ModelPath selects
// the deterministic fallback embedder (useful for development without the
// onnxruntime library).
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// GeneratorConfig holds clip generation and validation settings. MinMinutes
// and MaxMinutes are the binding validator bounds; TargetMinMinutes is the
// softer length target asked for in the prompt.
type GeneratorConfig struct {
	MaxIters         int     `yaml:"max_iters"`
	Retries          int     `yaml:"retries"`
	MaxClips         int     `yaml:"max_clips"`
	MinMinutes       float64 `yaml:"min_minutes"`
	MaxMinutes       float64 `yaml:"max_minutes"`
	TargetMinMinutes float64 `yaml:"target_min_minutes"`
	Refine           *bool   `yaml:"refine"`
}

// RefineEnabled returns whether critique/refinement runs; defaults to true.
func (g *GeneratorConfig) RefineEnabled() bool {
	if g.Refine != nil {
		return *g.Refine
	}
	return true
}

// TaggerConfig holds topic and category tagging settings.
type TaggerConfig struct {
	NearestNeighbors int `yaml:"nearest_neighbors"`
	MinMentions      int `yaml:"min_mentions"`
	MaxMentions      int `yaml:"max_mentions"`
}

// StorageConfig holds paths for the database, the topic vector index, the
// transcript spool, and the category taxonomy seed file.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	TopicIndexPath   string `yaml:"topic_index_path"`
	TranscriptDir    string `yaml:"transcript_dir"`
	CategorySeedPath string `yaml:"category_seed_path"`
}

// WatchConfig holds spool directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.TopicIndexPath = expandPath(cfg.Storage.TopicIndexPath, configDir)
	cfg.Storage.TranscriptDir = expandPath(cfg.Storage.TranscriptDir, configDir)
	if cfg.Storage.CategorySeedPath != "" {
		cfg.Storage.CategorySeedPath = expandPath(cfg.Storage.CategorySeedPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
