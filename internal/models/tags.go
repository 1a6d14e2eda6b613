package models

// Category is a node in the fixed hierarchical category taxonomy. Categories
// form a forest; Parent is empty for roots.
type Category struct {
	Name        string `json:"name" yaml:"name"`
	Parent      string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Topic is a node in the open, embedding-indexed topic vocabulary.
type Topic struct {
	Name        string    `json:"name"`
	Keywords    []string  `json:"keywords,omitempty"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
}

// ClipTopicAssignment attributes one topic to a clip. Score is cosine
// similarity against the candidate-query centroid, in [0, 1].
type ClipTopicAssignment struct {
	Topic     string  `json:"topic"`
	Score     float64 `json:"score"`
	IsPrimary bool    `json:"is_primary"`
}

// ClipCategoryAssignment attributes one category to a clip. Score is a
// membership bit today (always 1.0), kept as a float for future confidences.
type ClipCategoryAssignment struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}
