// Package main is the Kiru CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperclip/kiru/internal/clipper"
	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/embedding"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/pipeline"
	"github.com/hyperclip/kiru/internal/storage"
	"github.com/hyperclip/kiru/internal/tagger"
	"github.com/hyperclip/kiru/internal/vector"
	"github.com/hyperclip/kiru/internal/watcher"
	"github.com/hyperclip/kiru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kiru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "process":
		runProcess()
	case "watch":
		runWatch()
	case "topics":
		runTopics()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kiru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (loop states, validation feedback, etc.)")
	show := fs.String("show", "", "show name for prompting")
	title := fs.String("title", "", "episode title for prompting")
	description := fs.String("description", "", "episode description for prompting")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kiru process [flags] <episode-key-or-transcript.json>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	episode := models.Episode{Show: *show, Title: *title, Description: *description}
	clips, err := components.Pipeline.ProcessEpisode(context.Background(), key, episode)
	if err != nil {
		logger.Fatal("Processing failed", zap.String("episode", key), zap.Error(err))
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(clips); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printClips(clips)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printClips(clips []*models.Clip) {
	for i, clip := range clips {
		fmt.Printf("Clip %d: %s\n", i+1, clip.Name)
		fmt.Printf("  id:        %s\n", clip.ID)
		fmt.Printf("  sentences: %d-%d\n", clip.StartIndex, clip.EndIndex)
		fmt.Printf("  time:      %dms-%dms (%.1f min)\n", clip.StartMs, clip.EndMs, clip.DurationMinutes())
		if len(clip.Categories) > 0 {
			names := make([]string, len(clip.Categories))
			for j, c := range clip.Categories {
				names[j] = c.Category
			}
			fmt.Printf("  categories: %s\n", strings.Join(names, ", "))
		}
		for _, t := range clip.PrimaryTopics {
			fmt.Printf("  topic (primary):   %s (%.3f)\n", t.Topic, t.Score)
		}
		for _, t := range clip.MentionedTopics {
			fmt.Printf("  topic (mentioned): %s (%.3f)\n", t.Topic, t.Score)
		}
		fmt.Printf("  summary: %s\n\n", utils.Truncate(clip.Summary, 200))
	}
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	show := fs.String("show", "", "show name for prompting")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	dirs := cfg.Watch.Directories
	if len(dirs) == 0 {
		dirs = []string{cfg.Storage.TranscriptDir}
	}

	// Episodes are processed one at a time; the spool is the queue.
	pending := make(chan string, 64)
	watchSvc := watcher.New(dirs, cfg.Watch.Extensions, func(path string) {
		select {
		case pending <- path:
		default:
			logger.Warn("spool backlog full, dropping transcript", zap.String("path", path))
		}
	}, logger)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()
	logger.Info("watching for transcripts", zap.Strings("dirs", dirs))

	go func() {
		for path := range pending {
			episode := models.Episode{Show: *show, Title: episodeKey(path)}
			if _, err := components.Pipeline.ProcessEpisodeFile(watchCtx, path, episode); err != nil {
				logger.Error("episode failed",
					zap.String("path", path), zap.Error(err))
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	watchCancel()
	if cfg.Storage.TopicIndexPath != "" {
		if err := components.TopicIndex.Save(cfg.Storage.TopicIndexPath); err != nil {
			logger.Warn("topic index save failed",
				zap.String("path", cfg.Storage.TopicIndexPath), zap.Error(err))
		}
	}
}

// episodeKey derives an episode key from a spool path.
func episodeKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runTopics() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kiru topics <import|list> [flags]")
		fmt.Println("  kiru topics import <topics.json>  Import topics and rebuild the index")
		fmt.Println("  kiru topics list                  List the topic vocabulary")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("topics", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch sub {
	case "import":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kiru topics import [flags] <topics.json>")
			os.Exit(1)
		}
		if err := importTopics(context.Background(), cfg, logger, fs.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
			os.Exit(1)
		}
	case "list":
		if err := listTopics(context.Background(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown topics subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// importTopics reads a topics JSON file, embeds every topic, and replaces
// the stored vocabulary and the on-disk index.
func importTopics(ctx context.Context, cfg *config.Config, logger *zap.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read topics file: %w", err)
	}
	var topics []*models.Topic
	if err := json.Unmarshal(data, &topics); err != nil {
		return fmt.Errorf("parse topics file: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	embedder := newEmbedder(cfg, logger)
	defer embedder.Close()

	index, err := vector.NewTopicIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return err
	}
	defer index.Close()

	for _, topic := range topics {
		vec, err := embedder.Embed(ctx, tagger.TopicEmbeddingText(topic))
		if err != nil {
			return fmt.Errorf("embed topic %q: %w", topic.Name, err)
		}
		topic.Embedding = vec
		if err := store.UpsertTopic(ctx, topic); err != nil {
			return fmt.Errorf("store topic %q: %w", topic.Name, err)
		}
		if err := index.Add(ctx, []string{topic.Name}, [][]float32{vec}); err != nil {
			return fmt.Errorf("index topic %q: %w", topic.Name, err)
		}
	}

	if cfg.Storage.TopicIndexPath != "" {
		if err := index.Save(cfg.Storage.TopicIndexPath); err != nil {
			return fmt.Errorf("save topic index: %w", err)
		}
	}
	fmt.Printf("Imported %d topic(s)\n", len(topics))
	return nil
}

func listTopics(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	topics, err := store.ListTopics(ctx)
	if err != nil {
		return err
	}
	for _, t := range topics {
		if t.Description != "" {
			fmt.Printf("%s\t%s\n", t.Name, t.Description)
		} else {
			fmt.Println(t.Name)
		}
	}
	return nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	topicCount, err := store.CountTopics(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count topics failed: %v\n", err)
		os.Exit(1)
	}
	categoryCount, err := store.CountCategories(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count categories failed: %v\n", err)
		os.Exit(1)
	}

	status := struct {
		Topics        int64  `json:"topics"`
		Categories    int64  `json:"categories"`
		DatabasePath  string `json:"database_path"`
		TopicIndex    string `json:"topic_index_path,omitempty"`
		TranscriptDir string `json:"transcript_dir,omitempty"`
		Model         string `json:"model"`
		Dimensions    int    `json:"embedding_dimensions"`
	}{
		Topics:        topicCount,
		Categories:    categoryCount,
		DatabasePath:  cfg.Storage.DatabasePath,
		TopicIndex:    cfg.Storage.TopicIndexPath,
		TranscriptDir: cfg.Storage.TranscriptDir,
		Model:         cfg.LLM.Model,
		Dimensions:    cfg.Embedding.Dimensions,
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("topics:          %d\n", status.Topics)
		fmt.Printf("categories:      %d\n", status.Categories)
		fmt.Printf("model:           %s\n", status.Model)
		fmt.Printf("embedding_dims:  %d\n", status.Dimensions)
		fmt.Printf("database_path:   %s\n", status.DatabasePath)
		if status.TopicIndex != "" {
			fmt.Printf("topic_index:     %s\n", status.TopicIndex)
		}
		if status.TranscriptDir != "" {
			fmt.Printf("transcript_dir:  %s\n", status.TranscriptDir)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store      storage.Store
	Embedder   embedding.Embedder
	TopicIndex *vector.TopicIndex
	Pipeline   *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.TopicIndex != nil {
		_ = c.TopicIndex.Close()
	}
}

// newEmbedder returns the ONNX embedder when a model path is configured and
// loadable, falling back to the deterministic hash embedder otherwise.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.ModelPath != "" {
		onnx, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err == nil {
			return onnx
		}
		logger.Warn("onnx embedder unavailable, using hash embedder",
			zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
	}
	return embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := seedCategories(ctx, cfg, store, logger); err != nil {
		_ = store.Close()
		return nil, err
	}

	embedder := newEmbedder(cfg, logger)

	index, err := loadTopicIndex(ctx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, err
	}

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		_ = store.Close()
		_ = embedder.Close()
		_ = index.Close()
		return nil, fmt.Errorf("no API key in $%s", cfg.LLM.APIKeyEnv)
	}
	model, err := llm.NewGeminiModel(ctx, apiKey, logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		_ = index.Close()
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	transcripts := storage.NewFileTranscriptStore(cfg.Storage.TranscriptDir)
	p := pipeline.New(
		transcripts,
		clipper.NewGenerator(model, cfg.LLM, cfg.Generator, logger),
		clipper.NewCritic(model, cfg.LLM, cfg.Generator, logger),
		clipper.NewMetadataWriter(model, cfg.LLM, cfg.Generator, logger),
		tagger.New(model, embedder, index, store, cfg.LLM, cfg.Tagger, logger),
		store,
		cfg,
		logger,
	)

	return &Components{
		Store:      store,
		Embedder:   embedder,
		TopicIndex: index,
		Pipeline:   p,
	}, nil
}

// loadTopicIndex loads the saved index when present and consistent,
// otherwise rebuilds it from the stored topic embeddings.
func loadTopicIndex(ctx context.Context, cfg *config.Config, store storage.Store, logger *zap.Logger) (*vector.TopicIndex, error) {
	index, err := vector.NewTopicIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize topic index: %w", err)
	}
	if cfg.Storage.TopicIndexPath != "" {
		if loadErr := index.Load(cfg.Storage.TopicIndexPath); loadErr != nil {
			logger.Warn("topic index load skipped, rebuilding from storage",
				zap.String("path", cfg.Storage.TopicIndexPath), zap.Error(loadErr))
		}
	}
	if index.Size() > 0 {
		logger.Info("topic index loaded", zap.Int("topics", index.Size()))
		return index, nil
	}

	topics, err := store.ListTopics(ctx)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("list topics for index rebuild: %w", err)
	}
	for _, topic := range topics {
		if len(topic.Embedding) == 0 {
			continue
		}
		if err := index.Add(ctx, []string{topic.Name}, [][]float32{topic.Embedding}); err != nil {
			logger.Warn("topic skipped during index rebuild",
				zap.String("topic", topic.Name), zap.Error(err))
		}
	}
	logger.Info("topic index rebuilt", zap.Int("topics", index.Size()))
	return index, nil
}

// seedCategories loads the category taxonomy from the seed YAML the first
// time the database comes up empty.
func seedCategories(ctx context.Context, cfg *config.Config, store storage.Store, logger *zap.Logger) error {
	if cfg.Storage.CategorySeedPath == "" {
		return nil
	}
	count, err := store.CountCategories(ctx)
	if err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(cfg.Storage.CategorySeedPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("category seed file missing, taxonomy stays empty",
				zap.String("path", cfg.Storage.CategorySeedPath))
			return nil
		}
		return fmt.Errorf("read category seed: %w", err)
	}
	var seed struct {
		Categories []*models.Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse category seed: %w", err)
	}
	for _, c := range seed.Categories {
		if err := store.UpsertCategory(ctx, c); err != nil {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}
	logger.Info("category taxonomy seeded", zap.Int("categories", len(seed.Categories)))
	return nil
}

func printUsage() {
	fmt.Println(`kiru - Podcast clip extraction and tagging

Usage:
  kiru process [flags] <episode>   Extract, refine, and tag clips for one episode
  kiru watch [flags]               Watch spool directories and process arrivals
  kiru topics <import|list>        Manage the topic vocabulary
  kiru status [flags]              Show vocabulary/taxonomy/storage status
  kiru version                     Show version
  kiru help                        Show this help

Process Flags:
  --config string       Config file path (default: /usr/local/etc/kiru/config.yaml)
  --debug               Enable debug logging (loop states, validation feedback)
  --show string         Show name passed to the model
  --title string        Episode title passed to the model
  --description string  Episode description passed to the model
  --output string       Output format: text or json (default: text)

Watch Flags:
  --config string    Config file path
  --debug            Enable debug logging
  --show string      Show name passed to the model

Topics Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Examples:
  kiru process ep-20260831
  kiru process --show "Acquired" --title "The Lithium Episode" ep-20260831
  kiru process --output json /data/transcripts/ep-20260831.json
  kiru watch --show "Acquired"
  kiru topics import topics.json
  kiru status --output json`)
}
