package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8192
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Generator.MaxIters == 0 {
		cfg.Generator.MaxIters = 10
	}
	if cfg.Generator.Retries == 0 {
		cfg.Generator.Retries = 1
	}
	if cfg.Generator.MaxClips == 0 {
		cfg.Generator.MaxClips = 3
	}
	if cfg.Generator.MinMinutes == 0 {
		cfg.Generator.MinMinutes = 2.0
	}
	if cfg.Generator.MaxMinutes == 0 {
		cfg.Generator.MaxMinutes = 10.0
	}
	if cfg.Generator.TargetMinMinutes == 0 {
		cfg.Generator.TargetMinMinutes = 3.0
	}
	if cfg.Tagger.NearestNeighbors == 0 {
		cfg.Tagger.NearestNeighbors = 40
	}
	if cfg.Tagger.MinMentions == 0 {
		cfg.Tagger.MinMentions = 5
	}
	if cfg.Tagger.MaxMentions == 0 {
		cfg.Tagger.MaxMentions = 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kiru/data/db/clips.db"
	}
	if cfg.Storage.TopicIndexPath == "" {
		cfg.Storage.TopicIndexPath = "/usr/local/var/kiru/data/indices/topics"
	}
	if cfg.Storage.TranscriptDir == "" {
		cfg.Storage.TranscriptDir = "/usr/local/var/kiru/data/transcripts"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json"}
	}
}
