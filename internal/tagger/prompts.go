package tagger

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/models"
)

// renderCategoryForest renders the taxonomy as an indented tree, roots
// first with their children beneath them.
func renderCategoryForest(categories []*models.Category) string {
	children := make(map[string][]*models.Category)
	var roots []*models.Category
	for _, c := range categories {
		if c.Parent == "" {
			roots = append(roots, c)
		} else {
			children[c.Parent] = append(children[c.Parent], c)
		}
	}

	var b strings.Builder
	for _, root := range roots {
		writeCategory(&b, root, 0)
		for _, child := range children[root.Name] {
			writeCategory(&b, child, 1)
		}
	}
	// Orphans whose parent is missing from the table still need to be
	// selectable.
	listed := make(map[string]struct{})
	for _, root := range roots {
		listed[root.Name] = struct{}{}
		for _, child := range children[root.Name] {
			listed[child.Name] = struct{}{}
		}
	}
	for _, c := range categories {
		if _, ok := listed[c.Name]; !ok {
			writeCategory(&b, c, 0)
		}
	}
	return b.String()
}

func writeCategory(b *strings.Builder, c *models.Category, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("- ")
	b.WriteString(c.Name)
	if c.Description != "" {
		fmt.Fprintf(b, ": %s", c.Description)
	}
	b.WriteString("\n")
}

func categoryPrompt(clipText string, clip *models.Clip, forest string) string {
	return fmt.Sprintf(`Classify this podcast clip into the category taxonomy below.

Clip title: %s
Clip summary: %s

Clip transcript:
%s

Category taxonomy:
%s
Rules:
- Prefer a single category; only add a second when the clip genuinely spans two.
- Avoid catch-all categories like "Society & Culture" when a narrower one fits.
- Ignore topics that are only briefly mentioned.
- Use only the exact category names listed above.

Return an explanation followed by the chosen category names.`,
		clip.Name, clip.Summary, clipText, forest)
}

func categorySchema(names []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"explanation": {
				Type:        genai.TypeString,
				Description: "Why these categories fit the clip",
			},
			"categories": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeString,
					Enum: names,
				},
			},
		},
		Required: []string{"explanation", "categories"},
	}
}

func generateTopicsPrompt(clipText string, clip *models.Clip) string {
	return fmt.Sprintf(`List the topics discussed in this podcast clip.

Clip title: %s
Clip summary: %s

Clip transcript:
%s

Produce three lists:
- parent_topics: broad fields the clip belongs to.
- topics: the concrete subjects the clip is actually about.
- mentioned_topics: subjects touched on in passing.

Each entry needs a short name, a few keywords, and a one-sentence
description.`,
		clip.Name, clip.Summary, clipText)
}

func generatedTopicsSchema() *genai.Schema {
	topicSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        {Type: genai.TypeString},
			"keywords":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"description": {Type: genai.TypeString},
		},
		Required: []string{"name", "keywords", "description"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"parent_topics":    {Type: genai.TypeArray, Items: topicSchema},
			"topics":           {Type: genai.TypeArray, Items: topicSchema},
			"mentioned_topics": {Type: genai.TypeArray, Items: topicSchema},
		},
		Required: []string{"parent_topics", "topics", "mentioned_topics"},
	}
}

func assignTopicsPrompt(clipText string, clip *models.Clip, candidates []*models.Topic, cfg config.TaggerConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Assign topics to this podcast clip from the candidate list below.

Clip title: %s
Clip summary: %s

Clip transcript:
%s

Candidate topics:
`, clip.Name, clip.Summary, clipText)
	for _, c := range candidates {
		b.WriteString("- ")
		b.WriteString(c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, `
Pick between %d and %d topics the clip mentions, using only the candidate
names above. Mark is_primary true for topics that are a main focus of the
clip, false for topics merely mentioned.`, cfg.MinMentions, cfg.MaxMentions)
	return b.String()
}

func assignTopicsSchema(names []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"explanation": {
				Type:        genai.TypeString,
				Description: "Why these topics were chosen",
			},
			"topics": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":       {Type: genai.TypeString, Enum: names},
						"is_primary": {Type: genai.TypeBoolean},
					},
					Required: []string{"name", "is_primary"},
				},
			},
		},
		Required: []string{"explanation", "topics"},
	}
}
