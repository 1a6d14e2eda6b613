// Package tagger attaches categories and topics to accepted clips by
// combining model classification with nearest-neighbor lookup over the
// topic vocabulary.
package tagger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/embedding"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/storage"
	"github.com/hyperclip/kiru/internal/transcript"
	"github.com/hyperclip/kiru/internal/vector"
	"github.com/hyperclip/kiru/pkg/utils"
)

// Tagger classifies a clip against the category taxonomy and the
// embedding-indexed topic vocabulary. The index and store are read-only
// here; persisting the result is the caller's job.
type Tagger struct {
	model    llm.ChatModel
	embedder embedding.Embedder
	index    *vector.TopicIndex
	store    storage.Store
	llmCfg   config.LLMConfig
	cfg      config.TaggerConfig
	logger   *zap.Logger
}

// New creates a tagger over the given model, embedder, index, and store.
func New(model llm.ChatModel, embedder embedding.Embedder, index *vector.TopicIndex, store storage.Store, llmCfg config.LLMConfig, cfg config.TaggerConfig, logger *zap.Logger) *Tagger {
	return &Tagger{
		model:    model,
		embedder: embedder,
		index:    index,
		store:    store,
		llmCfg:   llmCfg,
		cfg:      cfg,
		logger:   logger,
	}
}

// Result is the tagging outcome for one clip.
type Result struct {
	Categories      []models.ClipCategoryAssignment
	PrimaryTopics   []models.ClipTopicAssignment
	MentionedTopics []models.ClipTopicAssignment
}

// generatedTopic is one free-form topic from the generation call. It is
// only embedded, never stored.
type generatedTopic struct {
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
}

// Tag runs the full tagging flow for one clip. An empty topic vocabulary
// or an empty model response produces empty topic lists; categories are
// still classified. Transport errors surface to the caller.
func (tg *Tagger) Tag(ctx context.Context, t *models.Transcript, clip *models.Clip) (*Result, error) {
	clipText := transcript.FormatByTime(t, clip.StartMs, clip.EndMs)

	categories, err := tg.classifyCategories(ctx, clipText, clip)
	if err != nil {
		return nil, fmt.Errorf("classify categories: %w", err)
	}
	result := &Result{Categories: categories}

	primary, mentioned, err := tg.assignTopics(ctx, clipText, clip)
	if err != nil {
		return nil, fmt.Errorf("assign topics: %w", err)
	}
	result.PrimaryTopics = primary
	result.MentionedTopics = mentioned

	tg.logger.Info("clip tagged",
		zap.String("clip_id", clip.ID),
		zap.Int("categories", len(result.Categories)),
		zap.Int("primary_topics", len(result.PrimaryTopics)),
		zap.Int("mentioned_topics", len(result.MentionedTopics)),
	)
	return result, nil
}

// classifyCategories asks the model to pick categories from the rendered
// taxonomy forest, then drops any name not actually in the taxonomy.
func (tg *Tagger) classifyCategories(ctx context.Context, clipText string, clip *models.Clip) ([]models.ClipCategoryAssignment, error) {
	categories, err := tg.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, nil
	}

	names := make([]string, len(categories))
	known := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		names[i] = c.Name
		known[c.Name] = struct{}{}
	}

	resp, err := tg.model.Generate(ctx, &llm.Request{
		Model:          tg.llmCfg.Model,
		Messages:       []llm.Message{{Role: llm.RoleUser, Text: categoryPrompt(clipText, clip, renderCategoryForest(categories))}},
		MaxTokens:      int32(tg.llmCfg.MaxTokens),
		ResponseSchema: categorySchema(names),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Explanation string   `json:"explanation"`
		Categories  []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("parse category response: %w", err)
	}

	var assignments []models.ClipCategoryAssignment
	seen := make(map[string]struct{})
	for _, name := range parsed.Categories {
		if _, ok := known[name]; !ok {
			tg.logger.Warn("model returned unknown category, dropping",
				zap.String("category", name))
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		assignments = append(assignments, models.ClipCategoryAssignment{
			Category: name,
			Score:    1.0,
		})
	}
	return assignments, nil
}

// assignTopics runs the topic flow: generate free-form topics, embed them
// into a centroid, retrieve the K nearest vocabulary topics, then have the
// model pick mentions from that closed candidate set.
func (tg *Tagger) assignTopics(ctx context.Context, clipText string, clip *models.Clip) (primary, mentioned []models.ClipTopicAssignment, err error) {
	if tg.index.Size() == 0 {
		tg.logger.Debug("topic index empty, skipping topic assignment")
		return nil, nil, nil
	}

	generated, err := tg.generateTopics(ctx, clipText, clip)
	if err != nil {
		return nil, nil, fmt.Errorf("generate topics: %w", err)
	}
	if len(generated) == 0 {
		tg.logger.Debug("model generated no topics, skipping assignment")
		return nil, nil, nil
	}

	centroid, err := tg.centroid(ctx, generated)
	if err != nil {
		return nil, nil, fmt.Errorf("embed generated topics: %w", err)
	}

	matches, err := tg.index.Search(ctx, centroid, tg.cfg.NearestNeighbors)
	if err != nil {
		return nil, nil, fmt.Errorf("topic knn: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil, nil
	}

	distances := make(map[string]float64, len(matches))
	candidateNames := make([]string, len(matches))
	for i, m := range matches {
		distances[m.ID] = m.Distance
		candidateNames[i] = m.ID
	}

	candidates, err := tg.store.GetTopicsByNames(ctx, candidateNames)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidate topics: %w", err)
	}

	picked, err := tg.pickMentions(ctx, clipText, clip, candidates)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{})
	for _, p := range picked {
		d, ok := distances[p.Name]
		if !ok {
			tg.logger.Warn("model assigned topic outside candidate set, dropping",
				zap.String("topic", p.Name))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		assignment := models.ClipTopicAssignment{
			Topic:     p.Name,
			Score:     1 - d,
			IsPrimary: p.IsPrimary,
		}
		if p.IsPrimary {
			primary = append(primary, assignment)
		} else {
			mentioned = append(mentioned, assignment)
		}
	}
	return primary, mentioned, nil
}

// generateTopics asks the model for free-form parent topics, topics, and
// mentioned topics, and flattens the three lists.
func (tg *Tagger) generateTopics(ctx context.Context, clipText string, clip *models.Clip) ([]generatedTopic, error) {
	resp, err := tg.model.Generate(ctx, &llm.Request{
		Model:          tg.llmCfg.Model,
		Messages:       []llm.Message{{Role: llm.RoleUser, Text: generateTopicsPrompt(clipText, clip)}},
		MaxTokens:      int32(tg.llmCfg.MaxTokens),
		ResponseSchema: generatedTopicsSchema(),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ParentTopics    []generatedTopic `json:"parent_topics"`
		Topics          []generatedTopic `json:"topics"`
		MentionedTopics []generatedTopic `json:"mentioned_topics"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("parse generated topics: %w", err)
	}

	var all []generatedTopic
	all = append(all, parsed.ParentTopics...)
	all = append(all, parsed.Topics...)
	all = append(all, parsed.MentionedTopics...)
	out := all[:0]
	for _, g := range all {
		if strings.TrimSpace(g.Name) != "" {
			out = append(out, g)
		}
	}
	return out, nil
}

// centroid embeds each generated topic's text and returns the normalized
// mean vector.
func (tg *Tagger) centroid(ctx context.Context, topics []generatedTopic) ([]float32, error) {
	texts := make([]string, len(topics))
	for i, g := range topics {
		texts[i] = topicEmbeddingText(g.Name, g.Keywords, g.Description)
	}
	vectors, err := tg.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	mean := utils.MeanVector(vectors)
	if mean == nil {
		return nil, fmt.Errorf("no vectors to average")
	}
	utils.NormalizeL2(mean)
	return mean, nil
}

// pickedMention is one element of the assignment response.
type pickedMention struct {
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

// pickMentions runs the constrained assignment call over the candidate set.
// An empty response is valid and yields no assignments.
func (tg *Tagger) pickMentions(ctx context.Context, clipText string, clip *models.Clip, candidates []*models.Topic) ([]pickedMention, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}

	resp, err := tg.model.Generate(ctx, &llm.Request{
		Model:          tg.llmCfg.Model,
		Messages:       []llm.Message{{Role: llm.RoleUser, Text: assignTopicsPrompt(clipText, clip, candidates, tg.cfg)}},
		MaxTokens:      int32(tg.llmCfg.MaxTokens),
		ResponseSchema: assignTopicsSchema(names),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Explanation string          `json:"explanation"`
		Topics      []pickedMention `json:"topics"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("parse topic assignment: %w", err)
	}
	return parsed.Topics, nil
}

// TopicEmbeddingText is the canonical text embedded for a vocabulary topic.
// The same concatenation is used when seeding the index and when computing
// clip centroids, so the two spaces line up.
func TopicEmbeddingText(t *models.Topic) string {
	return topicEmbeddingText(t.Name, t.Keywords, t.Description)
}

func topicEmbeddingText(name string, keywords []string, description string) string {
	var b strings.Builder
	b.WriteString(name)
	if len(keywords) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(keywords, " "))
	}
	if description != "" {
		b.WriteString(" ")
		b.WriteString(description)
	}
	return b.String()
}
