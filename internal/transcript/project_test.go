package transcript

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/hyperclip/kiru/internal/models"
)

// wordsFor builds word timings for text starting at startMs, one second per word.
func wordsFor(text string, startMs int64) []models.Word {
	fields := strings.Fields(text)
	words := make([]models.Word, len(fields))
	for i, f := range fields {
		words[i] = models.Word{
			Text:    f,
			StartMs: startMs + int64(i)*1000,
			EndMs:   startMs + int64(i+1)*1000,
		}
	}
	return words
}

func testTranscript() *models.Transcript {
	u1 := models.Utterance{
		Speaker: "Alice",
		StartMs: 0,
		EndMs:   6000,
		Text:    "Welcome to the show. Today we talk about batteries.",
	}
	u1.Words = wordsFor(u1.Text, 0)
	u1.EndMs = u1.Words[len(u1.Words)-1].EndMs

	u2 := models.Utterance{
		Speaker: "Bob",
		StartMs: 10000,
		EndMs:   16000,
		Text:    "Thanks for having me! Lithium is fascinating.",
	}
	u2.Words = wordsFor(u2.Text, 10000)
	u2.EndMs = u2.Words[len(u2.Words)-1].EndMs

	return &models.Transcript{Utterances: []models.Utterance{u1, u2}}
}

var indexLine = regexp.MustCompile(`(?m)^(\d+)\. `)

func TestProject(t *testing.T) {
	text, timings, err := Project(testTranscript())
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	if !strings.Contains(text, "# Alice 00:00") {
		t.Errorf("missing Alice header in:\n%s", text)
	}
	if !strings.Contains(text, "# Bob 00:10") {
		t.Errorf("missing Bob header in:\n%s", text)
	}

	// Indices in the text must equal the timing keys exactly.
	seen := map[int]bool{}
	for _, m := range indexLine.FindAllStringSubmatch(text, -1) {
		idx, _ := strconv.Atoi(m[1])
		seen[idx] = true
	}
	if len(seen) != len(timings) {
		t.Fatalf("text has %d indices, timings has %d", len(seen), len(timings))
	}
	for idx := range timings {
		if !seen[idx] {
			t.Errorf("timing index %d not present in text", idx)
		}
	}

	// Indices are dense starting at 1.
	for i := 1; i <= len(timings); i++ {
		if _, ok := timings[i]; !ok {
			t.Errorf("missing dense index %d", i)
		}
	}

	// First sentence of utterance one: "Welcome to the show." = 4 words.
	if got := timings[1]; got.StartMs != 0 || got.EndMs != 4000 {
		t.Errorf("sentence 1 timing = %+v", got)
	}
	// Second sentence starts at word 5.
	if got := timings[2]; got.StartMs != 4000 {
		t.Errorf("sentence 2 StartMs = %d", got.StartMs)
	}
	// First sentence of Bob's utterance starts at 10s.
	if got := timings[3]; got.StartMs != 10000 {
		t.Errorf("sentence 3 StartMs = %d", got.StartMs)
	}
}

func TestProjectEmpty(t *testing.T) {
	if _, _, err := Project(&models.Transcript{}); err == nil {
		t.Error("expected error for empty transcript")
	}
}

func TestProportionalFallback(t *testing.T) {
	// No word timings: sentence spans are allocated by character share.
	tr := &models.Transcript{Utterances: []models.Utterance{{
		Speaker: "Host",
		StartMs: 0,
		EndMs:   10000,
		Text:    "Short one. This second sentence is quite a bit longer than the first.",
	}}}
	_, timings, err := Project(tr)
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}
	if len(timings) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(timings))
	}
	if timings[1].StartMs != 0 {
		t.Errorf("sentence 1 StartMs = %d", timings[1].StartMs)
	}
	if timings[2].EndMs != 10000 {
		t.Errorf("sentence 2 EndMs = %d", timings[2].EndMs)
	}
	if timings[1].EndMs != timings[2].StartMs {
		t.Errorf("spans not contiguous: %+v %+v", timings[1], timings[2])
	}
	// The longer sentence must get the larger share.
	d1 := timings[1].EndMs - timings[1].StartMs
	d2 := timings[2].EndMs - timings[2].StartMs
	if d2 <= d1 {
		t.Errorf("longer sentence got %dms, shorter got %dms", d2, d1)
	}
}

func TestFormatClipPrompt(t *testing.T) {
	clip := &models.Clip{ClipProposal: models.ClipProposal{StartIndex: 2, EndIndex: 3}}
	text, timings, err := FormatClipPrompt(testTranscript(), clip)
	if err != nil {
		t.Fatalf("FormatClipPrompt error: %v", err)
	}
	open := strings.Index(text, ClipOpenMarker)
	close_ := strings.Index(text, ClipCloseMarker)
	if open < 0 || close_ < 0 || open > close_ {
		t.Fatalf("markers misplaced in:\n%s", text)
	}
	inner := text[open:close_]
	if !strings.Contains(inner, "2. ") || !strings.Contains(inner, "3. ") {
		t.Errorf("clip range not inside markers:\n%s", inner)
	}
	if strings.Contains(text[:open], "2. Today") {
		t.Errorf("sentence 2 leaked before open marker")
	}
	if len(timings) != 4 {
		t.Errorf("timings size = %d", len(timings))
	}
}

func TestFormatClipPromptRoundTrip(t *testing.T) {
	// Projecting, resolving indices to ms, and re-projecting with markers
	// must surround exactly the same sentence set.
	tr := testTranscript()
	_, timings, err := Project(tr)
	if err != nil {
		t.Fatal(err)
	}
	clip := &models.Clip{ClipProposal: models.ClipProposal{StartIndex: 1, EndIndex: 2}}
	clip.StartMs = timings[1].StartMs
	clip.EndMs = timings[2].EndMs

	marked, timings2, err := FormatClipPrompt(tr, clip)
	if err != nil {
		t.Fatal(err)
	}
	if timings2[1] != timings[1] || timings2[2] != timings[2] {
		t.Error("timings changed across re-projection")
	}
	inner := marked[strings.Index(marked, ClipOpenMarker):strings.Index(marked, ClipCloseMarker)]
	if !strings.Contains(inner, "1. ") || !strings.Contains(inner, "2. ") {
		t.Errorf("round-trip lost clip sentences:\n%s", inner)
	}
}

func TestFormatByTime(t *testing.T) {
	tr := testTranscript()
	// Only Bob's utterance (10s..) is fully inside [9s, 20s].
	text := FormatByTime(tr, 9000, 20000)
	if strings.Contains(text, "Alice:") {
		t.Errorf("Alice should be excluded:\n%s", text)
	}
	if !strings.Contains(text, "Bob: Thanks for having me!") {
		t.Errorf("Bob missing:\n%s", text)
	}

	// A window covering everything includes both.
	all := FormatByTime(tr, 0, 20000)
	if !strings.Contains(all, "Alice:") || !strings.Contains(all, "Bob:") {
		t.Errorf("full window missing speakers:\n%s", all)
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00"},
		{61000, "01:01"},
		{3599000, "59:59"},
		{3600000, "1:00:00"},
		{7325000, "2:02:05"},
	}
	for _, c := range cases {
		if got := FormatTimestamp(c.ms); got != c.want {
			t.Errorf("FormatTimestamp(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"No terminator at all", []string{"No terminator at all"}},
		{"Version 3.5 shipped today. Great news.", []string{"Version 3.5 shipped today.", "Great news."}},
		{"Really?! Yes.", []string{"Really?!", "Yes."}},
		{"", nil},
		{"   ", nil},
	}
	for _, c := range cases {
		got := SplitSentences(c.in)
		if len(got) != len(c.want) {
			t.Errorf("SplitSentences(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("SplitSentences(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}
