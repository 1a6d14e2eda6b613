package clipper

import (
	"fmt"
	"strings"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/models"
)

func generatorSystemPrompt(episode models.Episode) string {
	var b strings.Builder
	b.WriteString("You are an expert short-form video editor. ")
	b.WriteString("You select the passages of a podcast episode most likely to go viral as stand-alone clips.")
	if episode.Show != "" {
		fmt.Fprintf(&b, "\n\nShow: %s", episode.Show)
	}
	if episode.Title != "" {
		fmt.Fprintf(&b, "\nEpisode: %s", episode.Title)
	}
	return b.String()
}

func generatorUserPrompt(view string, episode models.Episode, gen config.GeneratorConfig) string {
	var b strings.Builder
	b.WriteString("Below is the episode transcript. Each speaker turn starts with a header line ")
	b.WriteString("(# speaker timestamp) and every sentence is numbered.\n\n")
	if episode.Description != "" {
		fmt.Fprintf(&b, "Episode description:\n%s\n\n", episode.Description)
	}
	b.WriteString("Transcript:\n")
	b.WriteString(view)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, `Select up to %d clips and submit them with the submit_clips tool. Requirements:
- Each clip must run between %.0f and %.0f minutes; aim for at least %.0f minutes.
- Skip intros, outros, and ad reads.
- Each clip must stand alone: a listener with no other context should follow it.
- Clips must not overlap each other.
- For every clip, fill in all four reasoning fields before the indices.
- start_index and end_index are sentence numbers from the transcript; the clip
  runs from the start of start_index through the end of end_index.`,
		gen.MaxClips, gen.TargetMinMinutes, gen.MaxMinutes, gen.TargetMinMinutes)
	return b.String()
}

func startCritiquePrompt(view string, clip *models.Clip) string {
	return fmt.Sprintf(`Below is a transcript excerpt. The passage between <CLIP> and </CLIP> has been
selected as a stand-alone clip; the text before it is the conversation leading
in. The clip currently starts at sentence %d, ends at sentence %d, and runs
%.1f minutes.

%s

Critique the clip's opening only. Does the first sentence orient a listener
who has no other context? Is there a hook within the first few sentences?
Could the start be trimmed to reach the hook sooner, or moved earlier to pick
up missing context?

Respond with exactly two blocks:
<critique>one paragraph</critique>
<recommendation>either a single sentence index for the new start, or the
exact text "No change recommended."</recommendation>`,
		clip.StartIndex, clip.EndIndex, clip.DurationMinutes(), view)
}

func endCritiquePrompt(view string, clip *models.Clip) string {
	return fmt.Sprintf(`Below is a transcript excerpt. The passage between <CLIP> and </CLIP> has been
selected as a stand-alone clip; the text after it is the conversation that
follows. The clip currently starts at sentence %d, ends at sentence %d, and
runs %.1f minutes.

%s

Critique the clip's ending only. Does the clip end on a natural beat, such as
a punchline or a resolved thought? Is there compelling conversation
just after the current end worth absorbing, or dead air worth trimming?

Respond with exactly two blocks:
<critique>one paragraph</critique>
<recommendation>either a single sentence index for the new end, or the
exact text "No change recommended."</recommendation>`,
		clip.StartIndex, clip.EndIndex, clip.DurationMinutes(), view)
}

func applyCritiquesPrompt(clip *models.Clip, startCritique, endCritique string) string {
	return fmt.Sprintf(`A clip currently spans sentences %d through %d. Two independent critiques
were written, one for the start and one for the end.

Start critique:
%s

End critique:
%s

Merge the critiques into final indices and submit them with submit_clips.
When a critique says "No change recommended", keep the current index for
that side; otherwise use the recommended index.`,
		clip.StartIndex, clip.EndIndex, startCritique, endCritique)
}

func metadataSystemPrompt(episode models.Episode) string {
	var b strings.Builder
	b.WriteString("You write titles and summaries for short-form podcast clips.")
	if episode.Show != "" {
		fmt.Fprintf(&b, " The clip is from the show %q.", episode.Show)
	}
	if episode.Title != "" {
		fmt.Fprintf(&b, " Episode: %q.", episode.Title)
	}
	return b.String()
}

func metadataUserPrompt(clipText string, episode models.Episode) string {
	var b strings.Builder
	if episode.Description != "" {
		fmt.Fprintf(&b, "Episode description:\n%s\n\n", episode.Description)
	}
	b.WriteString("Clip transcript:\n")
	b.WriteString(clipText)
	b.WriteString(`

Submit a title and description with the submit_metadata tool.
- Title: at most 20 words, no colons or heavy punctuation, written to make
  someone stop scrolling.
- Description: one paragraph, at most 500 words, summarizing what happens in
  the clip.`)
	return b.String()
}
