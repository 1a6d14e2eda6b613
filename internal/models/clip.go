// Package models defines core data structures for transcripts, clips, and tags.
package models

import "time"

// ClipProposal is a model-proposed clip before validation. The four reasoning
// fields are required by the submission tool schema and kept for provenance.
type ClipProposal struct {
	ContentReasoning  string `json:"content_reasoning"`
	DurationReasoning string `json:"duration_reasoning"`
	StartReasoning    string `json:"start_reasoning"`
	EndReasoning      string `json:"end_reasoning"`
	StartIndex        int    `json:"start_index"`
	EndIndex          int    `json:"end_index"`
}

// Clip is a validated clip. StartMs/EndMs are resolved from sentence timings;
// Name, Summary and the tag lists are filled in by the later pipeline stages.
type Clip struct {
	ID         string `json:"id"`
	EpisodeKey string `json:"episode_key,omitempty"`

	ClipProposal

	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	Name    string `json:"name,omitempty"`
	Summary string `json:"summary,omitempty"`

	Categories      []ClipCategoryAssignment `json:"categories,omitempty"`
	PrimaryTopics   []ClipTopicAssignment    `json:"primary_topics,omitempty"`
	MentionedTopics []ClipTopicAssignment    `json:"mentioned_topics,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DurationMinutes returns the clip length in minutes.
func (c *Clip) DurationMinutes() float64 {
	return float64(c.EndMs-c.StartMs) / 60000.0
}

// Overlaps reports whether the half-open intervals [StartMs, EndMs) of the
// two clips intersect.
func (c *Clip) Overlaps(other *Clip) bool {
	return c.StartMs < other.EndMs && other.StartMs < c.EndMs
}

// Episode carries the show-level metadata threaded into prompts.
type Episode struct {
	Show        string `json:"show,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}
