package transcript

import (
	"fmt"
	"strings"

	"github.com/hyperclip/kiru/internal/models"
)

// Markers surrounding the clip range in FormatClipPrompt output.
const (
	ClipOpenMarker  = "<CLIP>"
	ClipCloseMarker = "</CLIP>"
)

// Project renders the transcript into the indexed textual view consumed by
// the model and returns the reverse mapping from sentence index to
// milliseconds. Indices are dense, start at 1, and the set of indices in the
// text equals the keys of the returned timings exactly.
func Project(t *models.Transcript) (string, models.SentenceTimings, error) {
	return render(t, 0, 0)
}

// FormatClipPrompt renders the transcript like Project but surrounds the
// clip's sentence range with <CLIP>...</CLIP> markers.
func FormatClipPrompt(t *models.Transcript, clip *models.Clip) (string, models.SentenceTimings, error) {
	if clip.StartIndex <= 0 || clip.EndIndex <= 0 {
		return "", nil, fmt.Errorf("clip indices must be positive, got (%d, %d)", clip.StartIndex, clip.EndIndex)
	}
	return render(t, clip.StartIndex, clip.EndIndex)
}

// render walks the transcript assigning sentence indices and building both
// the textual view and the timing map. markStart/markEnd of 0 disable clip
// markers.
func render(t *models.Transcript, markStart, markEnd int) (string, models.SentenceTimings, error) {
	if t == nil || len(t.Utterances) == 0 {
		return "", nil, fmt.Errorf("transcript has no utterances")
	}

	var b strings.Builder
	timings := make(models.SentenceTimings)
	index := 1

	for ui := range t.Utterances {
		u := &t.Utterances[ui]
		sentences := SplitSentences(u.Text)
		if len(sentences) == 0 {
			continue
		}
		if ui > 0 {
			b.WriteString("\n")
		}
		b.WriteString("# ")
		b.WriteString(u.Speaker)
		b.WriteString(" ")
		b.WriteString(FormatTimestamp(u.StartMs))
		b.WriteString("\n")

		spans := sentenceSpans(u, sentences)
		for si, s := range sentences {
			if index == markStart {
				b.WriteString(ClipOpenMarker)
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d. %s\n", index, s)
			timings[index] = spans[si]
			if index == markEnd {
				b.WriteString(ClipCloseMarker)
				b.WriteString("\n")
			}
			index++
		}
	}

	if len(timings) == 0 {
		return "", nil, fmt.Errorf("transcript has no sentences")
	}
	return b.String(), timings, nil
}

// sentenceSpans computes per-sentence millisecond ranges for one utterance.
// When word-level timings line up with the sentence word counts they are
// used directly; otherwise the utterance range is allocated proportionally
// by character length.
func sentenceSpans(u *models.Utterance, sentences []string) []models.SentenceTiming {
	counts := make([]int, len(sentences))
	total := 0
	for i, s := range sentences {
		counts[i] = len(strings.Fields(s))
		total += counts[i]
	}

	if len(u.Words) > 0 && total == len(u.Words) {
		spans := make([]models.SentenceTiming, len(sentences))
		pos := 0
		for i, n := range counts {
			spans[i] = models.SentenceTiming{
				StartMs: u.Words[pos].StartMs,
				EndMs:   u.Words[pos+n-1].EndMs,
			}
			pos += n
		}
		return spans
	}

	return proportionalSpans(u, sentences)
}

// proportionalSpans allocates the utterance's time range to sentences in
// proportion to their character lengths.
func proportionalSpans(u *models.Utterance, sentences []string) []models.SentenceTiming {
	totalChars := 0
	for _, s := range sentences {
		totalChars += len(s)
	}
	spans := make([]models.SentenceTiming, len(sentences))
	dur := u.EndMs - u.StartMs
	if totalChars == 0 || dur < 0 {
		for i := range spans {
			spans[i] = models.SentenceTiming{StartMs: u.StartMs, EndMs: u.EndMs}
		}
		return spans
	}
	offset := 0
	for i, s := range sentences {
		start := u.StartMs + dur*int64(offset)/int64(totalChars)
		offset += len(s)
		end := u.StartMs + dur*int64(offset)/int64(totalChars)
		spans[i] = models.SentenceTiming{StartMs: start, EndMs: end}
	}
	// Last sentence always ends at the utterance end.
	spans[len(spans)-1].EndMs = u.EndMs
	return spans
}

// FormatByTime produces a plain-text rendering restricted to utterances
// fully inside [startMs, endMs]. Used to derive clip embeddings.
func FormatByTime(t *models.Transcript, startMs, endMs int64) string {
	var b strings.Builder
	for i := range t.Utterances {
		u := &t.Utterances[i]
		if u.StartMs < startMs || u.EndMs > endMs {
			continue
		}
		b.WriteString(u.Speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(u.Text))
		b.WriteString("\n")
	}
	return b.String()
}
