package models

// Word is a single word with millisecond timings, as produced by the
// speech-to-text vendor.
type Word struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Utterance is one diarized speaker turn. Words may be empty when the vendor
// did not return word-level timings; timing fallback then allocates
// proportionally within [StartMs, EndMs].
type Utterance struct {
	Speaker string `json:"speaker"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
	Words   []Word `json:"words,omitempty"`
}

// Transcript is an ordered sequence of utterances for one episode.
type Transcript struct {
	Utterances []Utterance `json:"utterances"`
}

// SentenceTiming maps one sentence index to its millisecond range.
type SentenceTiming struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// SentenceTimings is the reverse mapping from sentence index to milliseconds.
// Indices are dense, start at 1, and are stable for one pipeline run.
type SentenceTimings map[int]SentenceTiming
