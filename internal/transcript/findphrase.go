package transcript

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperclip/kiru/internal/models"
)

// ErrPhraseNotFound is returned when no window of transcript words matches
// the phrase above the similarity threshold.
var ErrPhraseNotFound = errors.New("phrase not found in transcript")

// phraseScoreThreshold is the minimum Ratio score for a match.
const phraseScoreThreshold = 80

// PhraseMatch locates a phrase within the transcript's flattened word list.
type PhraseMatch struct {
	StartWord int
	EndWord   int
	StartMs   int64
	EndMs     int64
	Score     int
}

// timedWord is one normalized transcript word with its timings.
type timedWord struct {
	text    string
	startMs int64
	endMs   int64
}

// FindPhrase locates phrase in the transcript by sliding a window of the
// phrase's word length over the concatenated, normalized transcript words and
// scoring each window with Ratio. The best score must exceed 80; otherwise
// ErrPhraseNotFound is returned.
func FindPhrase(t *models.Transcript, phrase string) (*PhraseMatch, error) {
	target := normalizeWords(strings.Fields(phrase))
	if len(target) == 0 {
		return nil, fmt.Errorf("empty phrase: %w", ErrPhraseNotFound)
	}
	words := flattenWords(t)
	if len(words) < len(target) {
		return nil, fmt.Errorf("transcript shorter than phrase: %w", ErrPhraseNotFound)
	}

	targetJoined := strings.Join(target, " ")
	window := make([]string, len(target))

	best := PhraseMatch{StartWord: -1, EndWord: -1}
	for i := 0; i+len(target) <= len(words); i++ {
		for j := range target {
			window[j] = words[i+j].text
		}
		score := Ratio(strings.Join(window, " "), targetJoined)
		if score > best.Score {
			best = PhraseMatch{
				StartWord: i,
				EndWord:   i + len(target) - 1,
				StartMs:   words[i].startMs,
				EndMs:     words[i+len(target)-1].endMs,
				Score:     score,
			}
			if score == 100 {
				break
			}
		}
	}

	if best.Score <= phraseScoreThreshold {
		return nil, fmt.Errorf("best window scored %d: %w", best.Score, ErrPhraseNotFound)
	}
	return &best, nil
}

// flattenWords concatenates all utterance words, normalized. Utterances
// without word timings get words synthesized by proportional allocation
// within the utterance range.
func flattenWords(t *models.Transcript) []timedWord {
	var out []timedWord
	for i := range t.Utterances {
		u := &t.Utterances[i]
		if len(u.Words) > 0 {
			for _, w := range u.Words {
				if n := normalizeWord(w.Text); n != "" {
					out = append(out, timedWord{text: n, startMs: w.StartMs, endMs: w.EndMs})
				}
			}
			continue
		}
		fields := strings.Fields(u.Text)
		dur := u.EndMs - u.StartMs
		for j, f := range fields {
			n := normalizeWord(f)
			if n == "" {
				continue
			}
			start := u.StartMs + dur*int64(j)/int64(len(fields))
			end := u.StartMs + dur*int64(j+1)/int64(len(fields))
			out = append(out, timedWord{text: n, startMs: start, endMs: end})
		}
	}
	return out
}

func normalizeWords(words []string) []string {
	var out []string
	for _, w := range words {
		if n := normalizeWord(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalizeWord lowercases and strips everything except letters and digits.
func normalizeWord(w string) string {
	var b strings.Builder
	for _, r := range w {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
