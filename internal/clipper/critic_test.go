package clipper

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/transcript"
)

func critiqueResponse(text, recommendation string) *llm.Response {
	return &llm.Response{Text: fmt.Sprintf(
		"<critique>%s</critique>\n<recommendation>%s</recommendation>",
		text, recommendation)}
}

func applyResponse(start, end int) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: toolSubmitClips,
		Args: []byte(fmt.Sprintf(`{"start_index": %d, "end_index": %d}`, start, end)),
	}}}
}

func acceptedClip(t *testing.T, tr *models.Transcript, start, end int) *models.Clip {
	t.Helper()
	_, timings, err := transcript.Project(tr)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	p := proposal(start, end)
	clip, msg := validateProposal(&p, timings, 2.0, 10.0)
	if msg != "" {
		t.Fatalf("test clip invalid: %s", msg)
	}
	return clip
}

func newTestCritic(model llm.ChatModel) *Critic {
	return NewCritic(model, config.LLMConfig{Model: "test-model", MaxTokens: 1024}, testGenConfig(), zap.NewNop())
}

func TestRefineNoChange(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			critiqueResponse("Opens cleanly on a hook.", "No change recommended."),
			critiqueResponse("Ends on a resolved thought.", "No change recommended."),
			applyResponse(3, 6),
		},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if refined.StartIndex != 3 || refined.EndIndex != 6 {
		t.Errorf("indices changed to (%d, %d)", refined.StartIndex, refined.EndIndex)
	}
	if refined.StartMs != clip.StartMs || refined.EndMs != clip.EndMs {
		t.Errorf("milliseconds changed to [%d, %d)", refined.StartMs, refined.EndMs)
	}
	if model.Calls() != 3 {
		t.Errorf("expected 3 model calls, got %d", model.Calls())
	}
}

func TestRefineAppliesNewEnd(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			critiqueResponse("Start is fine.", "No change recommended."),
			critiqueResponse("The punchline lands two sentences later.", "8"),
			applyResponse(3, 8),
		},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if refined.StartIndex != 3 || refined.EndIndex != 8 {
		t.Fatalf("indices = (%d, %d), want (3, 8)", refined.StartIndex, refined.EndIndex)
	}
	if refined.EndMs != 480000 {
		t.Errorf("EndMs = %d, want 480000", refined.EndMs)
	}
	if refined.ID != clip.ID {
		t.Error("refinement must preserve the clip ID")
	}
}

func TestRefineRevertsInvalidIndices(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			critiqueResponse("Start is fine.", "No change recommended."),
			critiqueResponse("Extend well past the episode.", "99"),
			applyResponse(3, 99),
		},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if refined.StartIndex != 3 || refined.EndIndex != 6 {
		t.Errorf("invalid refinement not reverted: (%d, %d)", refined.StartIndex, refined.EndIndex)
	}
}

func TestRefineKeepsClipOnModelError(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			critiqueResponse("Start is fine.", "No change recommended."),
		},
		Errs: []error{nil, fmt.Errorf("rate limited")},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine should swallow critic errors, got %v", err)
	}
	if refined != clip {
		t.Error("expected the original clip back")
	}
}

func TestRefinePropagatesCancellation(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &llm.ScriptedModel{
		Errs: []error{ctx.Err()},
	}

	_, err := newTestCritic(model).Refine(ctx, tr, clip)
	if err == nil {
		t.Fatal("expected cancellation to propagate")
	}
}

func TestRefineIgnoresDriftingApply(t *testing.T) {
	// Both critiques say no change, but the apply call moves the start
	// anyway. The no-change recommendation wins.
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			critiqueResponse("Start is fine.", "No change recommended."),
			critiqueResponse("End is fine.", "No change recommended."),
			applyResponse(1, 6),
		},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if refined.StartIndex != 3 {
		t.Errorf("drifting apply moved the start to %d", refined.StartIndex)
	}
}

func TestRefineMalformedCritique(t *testing.T) {
	tr := minuteTranscript(12)
	clip := acceptedClip(t, tr, 3, 6)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			{Text: "The start looks okay to me."},
		},
	}

	refined, err := newTestCritic(model).Refine(context.Background(), tr, clip)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if refined != clip {
		t.Error("expected the original clip back")
	}
	if model.Calls() != 1 {
		t.Errorf("expected the loop to stop after the failed stage, got %d calls", model.Calls())
	}
}

func TestParseCritique(t *testing.T) {
	c, err := parseCritique("preamble <critique>solid hook</critique> middle <recommendation>12</recommendation> trailer")
	if err != nil {
		t.Fatalf("parseCritique failed: %v", err)
	}
	if c.Text != "solid hook" || c.Recommendation != "12" {
		t.Errorf("got %+v", c)
	}

	if _, err := parseCritique("<critique>only half</critique>"); err == nil {
		t.Error("expected error for missing recommendation block")
	}
}

func TestIsNoChange(t *testing.T) {
	if !isNoChange("No change recommended.") {
		t.Error("exact phrase not recognized")
	}
	if !isNoChange("no change recommended") {
		t.Error("case and period variants should still mean no change")
	}
	if isNoChange("14") {
		t.Error("an index is a change")
	}
	if isNoChange("move it earlier") {
		t.Error("prose recommendation is a change")
	}
}
