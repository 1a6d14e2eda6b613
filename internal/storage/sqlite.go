package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/vector"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		name TEXT PRIMARY KEY,
		keywords TEXT,
		description TEXT,
		embedding BLOB
	);

	CREATE TABLE IF NOT EXISTS categories (
		name TEXT PRIMARY KEY,
		parent TEXT,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		episode_key TEXT,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		name TEXT,
		summary TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_clips_episode ON clips(episode_key);

	CREATE TABLE IF NOT EXISTS clip_topics (
		clip_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		score REAL NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (clip_id, topic),
		FOREIGN KEY (clip_id) REFERENCES clips(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS clip_categories (
		clip_id TEXT NOT NULL,
		category TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (clip_id, category),
		FOREIGN KEY (clip_id) REFERENCES clips(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertTopic inserts or replaces a topic row.
func (s *SQLiteStore) UpsertTopic(ctx context.Context, topic *models.Topic) error {
	keywordsJSON, err := json.Marshal(topic.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	var blob []byte
	if len(topic.Embedding) > 0 {
		blob = vector.Float32sToBytes(topic.Embedding)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO topics (name, keywords, description, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET keywords = excluded.keywords,
		 description = excluded.description, embedding = excluded.embedding`,
		topic.Name, string(keywordsJSON), topic.Description, blob,
	)
	return err
}

func scanTopics(rows *sql.Rows) ([]*models.Topic, error) {
	var topics []*models.Topic
	for rows.Next() {
		var t models.Topic
		var keywordsJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&t.Name, &keywordsJSON, &t.Description, &blob); err != nil {
			return nil, err
		}
		if keywordsJSON.Valid && keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &t.Keywords); err != nil {
				return nil, fmt.Errorf("failed to unmarshal keywords for %s: %w", t.Name, err)
			}
		}
		if len(blob) > 0 {
			t.Embedding = vector.BytesToFloat32s(blob)
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

// ListTopics returns all topics ordered by name.
func (s *SQLiteStore) ListTopics(ctx context.Context) ([]*models.Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, keywords, description, embedding FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

// GetTopicsByNames returns the topic rows matching the given names. Missing
// names are silently absent from the result.
func (s *SQLiteStore) GetTopicsByNames(ctx context.Context, names []string) ([]*models.Topic, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, keywords, description, embedding FROM topics WHERE name IN (`+placeholders+`) ORDER BY name`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

// CountTopics returns the number of topics.
func (s *SQLiteStore) CountTopics(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&count)
	return count, err
}

// UpsertCategory inserts or replaces a category row.
func (s *SQLiteStore) UpsertCategory(ctx context.Context, category *models.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, parent, description) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET parent = excluded.parent, description = excluded.description`,
		category.Name, category.Parent, category.Description,
	)
	return err
}

// ListCategories returns all categories, roots first, then by name.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, parent, description FROM categories ORDER BY parent, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []*models.Category
	for rows.Next() {
		var c models.Category
		var parent sql.NullString
		if err := rows.Scan(&c.Name, &parent, &c.Description); err != nil {
			return nil, err
		}
		c.Parent = parent.String
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

// CountCategories returns the number of categories.
func (s *SQLiteStore) CountCategories(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count)
	return count, err
}

// CreateClip inserts a clip row.
func (s *SQLiteStore) CreateClip(ctx context.Context, clip *models.Clip) error {
	clip.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clips (id, episode_key, start_index, end_index, start_ms, end_ms, name, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.ID, clip.EpisodeKey, clip.StartIndex, clip.EndIndex,
		clip.StartMs, clip.EndMs, clip.Name, clip.Summary, clip.CreatedAt,
	)
	return err
}

// GetClip returns a clip by ID with its tag rows attached.
func (s *SQLiteStore) GetClip(ctx context.Context, id string) (*models.Clip, error) {
	var clip models.Clip
	err := s.db.QueryRowContext(ctx,
		`SELECT id, episode_key, start_index, end_index, start_ms, end_ms, name, summary, created_at
		 FROM clips WHERE id = ?`, id,
	).Scan(&clip.ID, &clip.EpisodeKey, &clip.StartIndex, &clip.EndIndex,
		&clip.StartMs, &clip.EndMs, &clip.Name, &clip.Summary, &clip.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clip not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachTags(ctx, &clip); err != nil {
		return nil, err
	}
	return &clip, nil
}

// ListClipsByEpisode returns clips for an episode in chronological order,
// with tag rows attached.
func (s *SQLiteStore) ListClipsByEpisode(ctx context.Context, episodeKey string) ([]*models.Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, episode_key, start_index, end_index, start_ms, end_ms, name, summary, created_at
		 FROM clips WHERE episode_key = ? ORDER BY start_ms`, episodeKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var clips []*models.Clip
	for rows.Next() {
		var clip models.Clip
		if err := rows.Scan(&clip.ID, &clip.EpisodeKey, &clip.StartIndex, &clip.EndIndex,
			&clip.StartMs, &clip.EndMs, &clip.Name, &clip.Summary, &clip.CreatedAt); err != nil {
			return nil, err
		}
		clips = append(clips, &clip)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, clip := range clips {
		if err := s.attachTags(ctx, clip); err != nil {
			return nil, err
		}
	}
	return clips, nil
}

func (s *SQLiteStore) attachTags(ctx context.Context, clip *models.Clip) error {
	catRows, err := s.db.QueryContext(ctx,
		`SELECT category, score FROM clip_categories WHERE clip_id = ? ORDER BY category`, clip.ID)
	if err != nil {
		return err
	}
	defer catRows.Close()
	for catRows.Next() {
		var a models.ClipCategoryAssignment
		if err := catRows.Scan(&a.Category, &a.Score); err != nil {
			return err
		}
		clip.Categories = append(clip.Categories, a)
	}
	if err := catRows.Err(); err != nil {
		return err
	}

	topicRows, err := s.db.QueryContext(ctx,
		`SELECT topic, score, is_primary FROM clip_topics WHERE clip_id = ? ORDER BY score DESC`, clip.ID)
	if err != nil {
		return err
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var a models.ClipTopicAssignment
		if err := topicRows.Scan(&a.Topic, &a.Score, &a.IsPrimary); err != nil {
			return err
		}
		if a.IsPrimary {
			clip.PrimaryTopics = append(clip.PrimaryTopics, a)
		} else {
			clip.MentionedTopics = append(clip.MentionedTopics, a)
		}
	}
	return topicRows.Err()
}

// ReplaceClipTags atomically replaces the tag rows for a clip: old topic and
// category scores are deleted and the new rows inserted in one transaction.
func (s *SQLiteStore) ReplaceClipTags(ctx context.Context, clipID string, categories []models.ClipCategoryAssignment, topics []models.ClipTopicAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clip_topics WHERE clip_id = ?`, clipID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clip_categories WHERE clip_id = ?`, clipID); err != nil {
		return err
	}
	for _, c := range categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clip_categories (clip_id, category, score) VALUES (?, ?, ?)`,
			clipID, c.Category, c.Score); err != nil {
			return err
		}
	}
	for _, t := range topics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clip_topics (clip_id, topic, score, is_primary) VALUES (?, ?, ?, ?)`,
			clipID, t.Topic, t.Score, t.IsPrimary); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
