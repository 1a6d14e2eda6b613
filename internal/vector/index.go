// Package vector provides a brute-force cosine KNN index over the topic
// vocabulary. Vectors are expected to be L2-normalized so inner product
// equals cosine similarity. The vocabulary is small (thousands of topics),
// so exhaustive search is fast enough and keeps the index dependency-free.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Match is one KNN result: a topic name and its cosine distance from the
// query, in [0, 1].
type Match struct {
	ID       string
	Distance float64
}

// TopicIndex holds topic embeddings and answers nearest-neighbor queries.
// Safe for concurrent use; the pipeline only reads it while running.
type TopicIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewTopicIndex creates an empty index for vectors of the given dimension.
func NewTopicIndex(dimensions int) (*TopicIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &TopicIndex{dimensions: dimensions}, nil
}

// Add appends vectors with the given IDs. IDs already present are replaced.
func (x *TopicIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	existing := make(map[string]int, len(x.ids))
	for i, id := range x.ids {
		existing[id] = i
	}
	for i, id := range ids {
		if len(vectors[i]) != x.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), x.dimensions)
		}
		vec := make([]float32, x.dimensions)
		copy(vec, vectors[i])
		if j, ok := existing[id]; ok {
			x.vectors[j] = vec
			continue
		}
		existing[id] = len(x.ids)
		x.ids = append(x.ids, id)
		x.vectors = append(x.vectors, vec)
	}
	return nil
}

// Search returns the k nearest topics to query by cosine distance, closest
// first. Returns fewer than k when the index is smaller; nil when empty.
func (x *TopicIndex) Search(ctx context.Context, query []float32, k int) ([]*Match, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.ids) == 0 {
		return nil, nil
	}
	matches := make([]*Match, len(x.ids))
	for i, vec := range x.vectors {
		matches[i] = &Match{ID: x.ids[i], Distance: cosineDistance(query, vec)}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Remove deletes vectors by ID.
func (x *TopicIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	keptIDs := x.ids[:0]
	keptVecs := x.vectors[:0]
	for i, id := range x.ids {
		if !drop[id] {
			keptIDs = append(keptIDs, id)
			keptVecs = append(keptVecs, x.vectors[i])
		}
	}
	x.ids = keptIDs
	x.vectors = keptVecs
	return nil
}

// Size returns the number of vectors in the index.
func (x *TopicIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Close is a no-op; kept so callers can treat the index like other resources.
func (x *TopicIndex) Close() error {
	return nil
}

// cosineDistance returns 1 minus the inner product of two normalized
// vectors, clamped so the result lies in [0, 1].
func cosineDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	sim := math.Max(0, math.Min(1, dot))
	return 1 - sim
}

// CosineDistance is the exported form used when recomputing similarity
// scores outside the index.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	return cosineDistance(a, b)
}

// Save persists the index to path. Directory is created if needed.
// Format: dimensions (4), count (4), then per vector: idLen (4), id bytes,
// vector (dimensions*4 bytes), little-endian throughout.
func (x *TopicIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(x.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range x.ids {
		idBytes := []byte(id)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := f.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := f.Write(Float32sToBytes(x.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// A missing file is not an error; the index is left unchanged.
func (x *TopicIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != x.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, x.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		ids = append(ids, string(idBytes))
		vectors = append(vectors, BytesToFloat32s(buf))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ids = ids
	x.vectors = vectors
	return nil
}

// Float32sToBytes encodes a float32 slice as little-endian bytes. Shared
// with the storage layer for embedding blobs.
func Float32sToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32s decodes little-endian bytes into a float32 slice.
func BytesToFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
