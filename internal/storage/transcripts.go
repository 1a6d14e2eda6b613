package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperclip/kiru/internal/models"
)

// ErrTranscriptNotFound is returned when no transcript exists for a key.
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptStore retrieves diarized transcripts by key. The production
// deployment backs this with an object store; the pipeline only needs Get.
type TranscriptStore interface {
	Get(ctx context.Context, key string) (*models.Transcript, error)
}

// FileTranscriptStore reads transcript JSON files from a directory. The key
// is the file name without the .json extension; absolute paths are also
// accepted directly.
type FileTranscriptStore struct {
	dir string
}

// NewFileTranscriptStore creates a transcript store rooted at dir.
func NewFileTranscriptStore(dir string) *FileTranscriptStore {
	return &FileTranscriptStore{dir: dir}
}

// Get reads and parses the transcript for key.
func (s *FileTranscriptStore) Get(ctx context.Context, key string) (*models.Transcript, error) {
	path := key
	if !filepath.IsAbs(key) {
		if !strings.HasSuffix(key, ".json") {
			key += ".json"
		}
		path = filepath.Join(s.dir, key)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrTranscriptNotFound)
		}
		return nil, fmt.Errorf("read transcript %s: %w", key, err)
	}
	var t models.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", key, err)
	}
	return &t, nil
}
