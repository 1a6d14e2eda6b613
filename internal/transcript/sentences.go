// Package transcript projects diarized transcripts into prompt-ready text and
// reverse mappings from sentence indices to milliseconds.
package transcript

import (
	"fmt"
	"strings"
	"unicode"
)

// SplitSentences splits utterance text on sentence-ending punctuation
// (. ! ?), keeping the punctuation with the sentence. Closing quotes and
// brackets immediately after the terminator stay attached. Returns non-empty
// trimmed sentences.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Absorb runs of terminators ("?!", "...") and trailing quotes.
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			j++
		}
		for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')' || runes[j] == ']') {
			j++
		}
		// Only break when followed by whitespace or end of text, so that
		// "3.5" or "Dr." mid-token does not split.
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		s := strings.TrimSpace(string(runes[start:j]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// FormatTimestamp renders milliseconds as mm:ss, or h:mm:ss past one hour.
func FormatTimestamp(ms int64) string {
	totalSec := ms / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
