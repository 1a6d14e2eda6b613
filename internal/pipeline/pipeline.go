// Package pipeline orchestrates one episode end to end: load the
// transcript, generate clips, refine, annotate, tag, and persist.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/clipper"
	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/storage"
	"github.com/hyperclip/kiru/internal/tagger"
)

// Pipeline wires the per-episode stages together. Stages share nothing but
// the clip they mutate; the pipeline owns stage ordering and persistence.
type Pipeline struct {
	transcripts storage.TranscriptStore
	generator   *clipper.Generator
	critic      *clipper.Critic
	metadata    *clipper.MetadataWriter
	tagger      *tagger.Tagger
	store       storage.Store
	cfg         *config.Config
	logger      *zap.Logger
}

// New assembles a pipeline from its stages.
func New(
	transcripts storage.TranscriptStore,
	generator *clipper.Generator,
	critic *clipper.Critic,
	metadata *clipper.MetadataWriter,
	tg *tagger.Tagger,
	store storage.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		transcripts: transcripts,
		generator:   generator,
		critic:      critic,
		metadata:    metadata,
		tagger:      tg,
		store:       store,
		cfg:         cfg,
		logger:      logger,
	}
}

// ProcessEpisode runs the full flow for one episode and returns the
// persisted clips in generator order.
func (p *Pipeline) ProcessEpisode(ctx context.Context, key string, episode models.Episode) ([]*models.Clip, error) {
	return p.process(ctx, key, key, episode)
}

// ProcessEpisodeFile runs the full flow for a transcript sitting at a spool
// path. The path only locates the transcript; the persisted episode key is
// the file name without its extension.
func (p *Pipeline) ProcessEpisodeFile(ctx context.Context, path string, episode models.Episode) ([]*models.Clip, error) {
	base := filepath.Base(path)
	key := strings.TrimSuffix(base, filepath.Ext(base))
	return p.process(ctx, key, path, episode)
}

// process loads the transcript from source and runs the stages, stamping
// key onto every persisted clip.
func (p *Pipeline) process(ctx context.Context, key, source string, episode models.Episode) ([]*models.Clip, error) {
	start := time.Now()
	t, err := p.transcripts.Get(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load transcript %q: %w", source, err)
	}

	result, err := p.generator.GenerateWithRetry(ctx, t, episode)
	if err != nil {
		return nil, fmt.Errorf("generate clips for %q: %w", key, err)
	}
	p.logger.Info("clips generated",
		zap.String("episode", key),
		zap.Int("count", len(result.Clips)),
		zap.Int("iterations", result.Iterations),
	)

	refine := p.cfg.Generator.RefineEnabled()
	for i, clip := range result.Clips {
		if refine {
			refined, err := p.critic.Refine(ctx, t, clip)
			if err != nil {
				return nil, fmt.Errorf("refine clip %d of %q: %w", i+1, key, err)
			}
			clip = refined
			result.Clips[i] = refined
		}

		if err := p.metadata.Annotate(ctx, t, episode, clip); err != nil {
			return nil, fmt.Errorf("annotate clip %d of %q: %w", i+1, key, err)
		}

		tags, err := p.tagger.Tag(ctx, t, clip)
		if err != nil {
			return nil, fmt.Errorf("tag clip %d of %q: %w", i+1, key, err)
		}
		clip.Categories = tags.Categories
		clip.PrimaryTopics = tags.PrimaryTopics
		clip.MentionedTopics = tags.MentionedTopics

		clip.EpisodeKey = key
		clip.CreatedAt = time.Now().UTC()
		if err := p.persist(ctx, clip); err != nil {
			return nil, fmt.Errorf("persist clip %d of %q: %w", i+1, key, err)
		}
	}

	p.logger.Info("episode processed",
		zap.String("episode", key),
		zap.Int("clips", len(result.Clips)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result.Clips, nil
}

// persist writes the clip row and atomically replaces its tag rows.
func (p *Pipeline) persist(ctx context.Context, clip *models.Clip) error {
	if err := p.store.CreateClip(ctx, clip); err != nil {
		return err
	}
	topics := make([]models.ClipTopicAssignment, 0, len(clip.PrimaryTopics)+len(clip.MentionedTopics))
	topics = append(topics, clip.PrimaryTopics...)
	topics = append(topics, clip.MentionedTopics...)
	return p.store.ReplaceClipTags(ctx, clip.ID, clip.Categories, topics)
}
