package clipper

import (
	"google.golang.org/genai"

	"github.com/hyperclip/kiru/internal/llm"
)

// Tool names exposed to the model.
const (
	toolSubmitClips    = "submit_clips"
	toolSubmitMetadata = "submit_metadata"
)

// submitClipsTool declares the clip submission tool. Each clip carries four
// free-form reasoning strings plus integer sentence indices.
func submitClipsTool() llm.Tool {
	clipSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"content_reasoning": {
				Type:        genai.TypeString,
				Description: "Why this passage would work as a stand-alone clip",
			},
			"duration_reasoning": {
				Type:        genai.TypeString,
				Description: "Why the clip length is appropriate",
			},
			"start_reasoning": {
				Type:        genai.TypeString,
				Description: "Why the clip starts at this sentence",
			},
			"end_reasoning": {
				Type:        genai.TypeString,
				Description: "Why the clip ends at this sentence",
			},
			"start_index": {
				Type:        genai.TypeInteger,
				Description: "Sentence index of the first sentence in the clip",
			},
			"end_index": {
				Type:        genai.TypeInteger,
				Description: "Sentence index of the last sentence in the clip",
			},
		},
		Required: []string{
			"content_reasoning", "duration_reasoning",
			"start_reasoning", "end_reasoning",
			"start_index", "end_index",
		},
	}
	return llm.Tool{
		Name:        toolSubmitClips,
		Description: "Submit the proposed clips as sentence-index ranges.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"clips": {
					Type:  genai.TypeArray,
					Items: clipSchema,
				},
			},
			Required: []string{"clips"},
		},
	}
}

// applyCritiquesTool declares the critique consolidation tool: the model
// returns the final index pair after merging both critiques.
func applyCritiquesTool() llm.Tool {
	return llm.Tool{
		Name:        toolSubmitClips,
		Description: "Submit the final start and end sentence indices for the clip.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"start_index": {
					Type:        genai.TypeInteger,
					Description: "Final sentence index of the first sentence",
				},
				"end_index": {
					Type:        genai.TypeInteger,
					Description: "Final sentence index of the last sentence",
				},
			},
			Required: []string{"start_index", "end_index"},
		},
	}
}

// submitMetadataTool declares the title/summary submission tool.
func submitMetadataTool() llm.Tool {
	return llm.Tool{
		Name:        toolSubmitMetadata,
		Description: "Submit the clip title and one-paragraph description.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {
					Type:        genai.TypeString,
					Description: "Clip title, at most 20 words, no colons",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "One-paragraph clip summary, at most 500 words",
				},
			},
			Required: []string{"title", "description"},
		},
	}
}
