// Package storage provides SQLite persistence for the topic vocabulary,
// the category taxonomy, and clip tag rows, plus transcript retrieval.
package storage

import (
	"context"

	"github.com/hyperclip/kiru/internal/models"
)

// Store defines persistence operations for topics, categories, and clips.
type Store interface {
	// Topic vocabulary
	UpsertTopic(ctx context.Context, topic *models.Topic) error
	ListTopics(ctx context.Context) ([]*models.Topic, error)
	GetTopicsByNames(ctx context.Context, names []string) ([]*models.Topic, error)
	CountTopics(ctx context.Context) (int64, error)

	// Category taxonomy
	UpsertCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context) ([]*models.Category, error)
	CountCategories(ctx context.Context) (int64, error)

	// Clips and tag rows
	CreateClip(ctx context.Context, clip *models.Clip) error
	GetClip(ctx context.Context, id string) (*models.Clip, error)
	ListClipsByEpisode(ctx context.Context, episodeKey string) ([]*models.Clip, error)
	ReplaceClipTags(ctx context.Context, clipID string, categories []models.ClipCategoryAssignment, topics []models.ClipTopicAssignment) error

	Close() error
}
