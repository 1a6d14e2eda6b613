package clipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
)

// minuteTranscript builds a transcript of n one-sentence utterances, each
// exactly one minute long, so sentence index i spans
// [(i-1)*60000, i*60000) milliseconds.
func minuteTranscript(n int) *models.Transcript {
	tr := &models.Transcript{}
	for i := 0; i < n; i++ {
		base := int64(i) * 60000
		tokens := []string{"Alpha", "bravo", "charlie", "delta", "echo."}
		words := make([]models.Word, len(tokens))
		for j, tok := range tokens {
			words[j] = models.Word{
				Text:    tok,
				StartMs: base + int64(j)*12000,
				EndMs:   base + int64(j+1)*12000,
			}
		}
		tr.Utterances = append(tr.Utterances, models.Utterance{
			Speaker: "Host",
			StartMs: base,
			EndMs:   base + 60000,
			Text:    strings.Join(tokens, " "),
			Words:   words,
		})
	}
	return tr
}

func testGenConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		MaxIters:         4,
		Retries:          1,
		MaxClips:         3,
		MinMinutes:       2.0,
		MaxMinutes:       10.0,
		TargetMinMinutes: 3.0,
	}
}

func proposal(start, end int) models.ClipProposal {
	return models.ClipProposal{
		ContentReasoning:  "engaging exchange",
		DurationReasoning: "long enough to stand alone",
		StartReasoning:    "opens on a hook",
		EndReasoning:      "ends on a beat",
		StartIndex:        start,
		EndIndex:          end,
	}
}

func clipsCall(t *testing.T, proposals ...models.ClipProposal) *llm.Response {
	t.Helper()
	args, err := json.Marshal(map[string]any{"clips": proposals})
	if err != nil {
		t.Fatalf("marshal proposals: %v", err)
	}
	return &llm.Response{ToolCalls: []llm.ToolCall{{Name: toolSubmitClips, Args: args}}}
}

func newTestGenerator(model llm.ChatModel, gen config.GeneratorConfig) *Generator {
	return NewGenerator(model, config.LLMConfig{Model: "test-model", MaxTokens: 1024}, gen, zap.NewNop())
}

func TestGenerateAcceptsValidClips(t *testing.T) {
	tr := minuteTranscript(12)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			clipsCall(t, proposal(1, 3), proposal(5, 8)),
		},
	}
	gen := newTestGenerator(model, testGenConfig())

	result, err := gen.Generate(context.Background(), tr, models.Episode{Show: "Testcast"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
	if len(result.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(result.Clips))
	}
	first := result.Clips[0]
	if first.StartMs != 0 || first.EndMs != 180000 {
		t.Errorf("clip 1 resolved to [%d, %d), want [0, 180000)", first.StartMs, first.EndMs)
	}
	if first.ID == "" {
		t.Error("expected a generated clip ID")
	}
	if first.DurationMinutes() != 3.0 {
		t.Errorf("clip 1 duration = %.2f min, want 3.00", first.DurationMinutes())
	}
}

func TestGenerateFeedsBackShortClip(t *testing.T) {
	tr := minuteTranscript(12)
	cfg := testGenConfig()
	cfg.MinMinutes = 2.5
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			// Second clip is 2 minutes, under the 2.5 minute floor.
			clipsCall(t, proposal(1, 3), proposal(5, 6)),
			clipsCall(t, proposal(1, 3), proposal(5, 8)),
		},
	}
	gen := newTestGenerator(model, cfg)

	result, err := gen.Generate(context.Background(), tr, models.Episode{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}

	// The retry request must contain the validation feedback as a tool
	// result message.
	second := model.Requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("expected tool feedback message, got role %q", last.Role)
	}
	if !strings.Contains(last.Text, "too short") {
		t.Errorf("feedback missing duration error: %q", last.Text)
	}
	if !strings.Contains(last.Text, "Clip 1: OK") {
		t.Errorf("feedback missing per-clip OK line: %q", last.Text)
	}
}

func TestGenerateFeedsBackOverlap(t *testing.T) {
	tr := minuteTranscript(12)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			clipsCall(t, proposal(1, 4), proposal(3, 6)),
			clipsCall(t, proposal(1, 4), proposal(5, 8)),
		},
	}
	gen := newTestGenerator(model, testGenConfig())

	result, err := gen.Generate(context.Background(), tr, models.Episode{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	feedback := model.Requests[1].Messages[len(model.Requests[1].Messages)-1].Text
	if !strings.Contains(feedback, "overlap") {
		t.Errorf("feedback missing overlap message: %q", feedback)
	}
}

func TestGenerateSucceedsDespiteFailingExtraClip(t *testing.T) {
	tr := minuteTranscript(12)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			// Third clip points outside the transcript; the other two are
			// valid and disjoint, which is enough.
			clipsCall(t, proposal(1, 3), proposal(5, 8), proposal(40, 45)),
		},
	}
	gen := newTestGenerator(model, testGenConfig())

	result, err := gen.Generate(context.Background(), tr, models.Episode{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.Clips) != 2 {
		t.Errorf("expected 2 valid clips, got %d", len(result.Clips))
	}
}

func TestGenerateRecoversFromProtocolError(t *testing.T) {
	tr := minuteTranscript(12)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			{Text: "Here are my clips: sentences 1 to 3 and 5 to 8."},
			clipsCall(t, proposal(1, 3), proposal(5, 8)),
		},
	}
	gen := newTestGenerator(model, testGenConfig())

	result, err := gen.Generate(context.Background(), tr, models.Episode{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Iterations)
	}
	// With no tool call to respond to, the feedback rides as a user message.
	last := model.Requests[1].Messages[len(model.Requests[1].Messages)-1]
	if last.Role != llm.RoleUser {
		t.Errorf("expected user feedback message, got role %q", last.Role)
	}
	if !strings.Contains(last.Text, toolSubmitClips) {
		t.Errorf("feedback should name the tool: %q", last.Text)
	}
}

func TestGenerateExhaustsIterationBudget(t *testing.T) {
	tr := minuteTranscript(12)
	cfg := testGenConfig()
	cfg.MaxIters = 2
	bad := clipsCall(t, proposal(3, 1), proposal(5, 5))
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{bad, bad, bad},
	}
	gen := newTestGenerator(model, cfg)

	_, err := gen.Generate(context.Background(), tr, models.Episode{})
	if !errors.Is(err, ErrGeneratorExhausted) {
		t.Fatalf("expected ErrGeneratorExhausted, got %v", err)
	}
	if model.Calls() != 2 {
		t.Errorf("expected exactly MaxIters calls, got %d", model.Calls())
	}
}

func TestGenerateWithRetryRecoversFromExhaustion(t *testing.T) {
	tr := minuteTranscript(12)
	cfg := testGenConfig()
	cfg.MaxIters = 1
	cfg.Retries = 1
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{
			clipsCall(t, proposal(3, 1)),
			clipsCall(t, proposal(1, 3), proposal(5, 8)),
		},
	}
	gen := newTestGenerator(model, cfg)

	result, err := gen.GenerateWithRetry(context.Background(), tr, models.Episode{})
	if err != nil {
		t.Fatalf("GenerateWithRetry failed: %v", err)
	}
	if len(result.Clips) != 2 {
		t.Errorf("expected 2 clips, got %d", len(result.Clips))
	}
	if model.Calls() != 2 {
		t.Errorf("expected 2 calls across attempts, got %d", model.Calls())
	}
}

func TestGenerateWithRetryDoesNotRetryTransportErrors(t *testing.T) {
	tr := minuteTranscript(12)
	cfg := testGenConfig()
	cfg.Retries = 3
	model := &llm.ScriptedModel{
		Errs: []error{fmt.Errorf("connection reset")},
	}
	gen := newTestGenerator(model, cfg)

	_, err := gen.GenerateWithRetry(context.Background(), tr, models.Episode{})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrGeneratorExhausted) {
		t.Fatalf("transport error misreported as exhaustion: %v", err)
	}
	if model.Calls() != 1 {
		t.Errorf("transport error should not be retried, got %d calls", model.Calls())
	}
}

func TestGenerateRequestsForceTheTool(t *testing.T) {
	tr := minuteTranscript(12)
	model := &llm.ScriptedModel{
		Responses: []*llm.Response{clipsCall(t, proposal(1, 3), proposal(5, 8))},
	}
	gen := newTestGenerator(model, testGenConfig())

	if _, err := gen.Generate(context.Background(), tr, models.Episode{}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	req := model.Requests[0]
	if req.ForceTool != toolSubmitClips {
		t.Errorf("ForceTool = %q, want %q", req.ForceTool, toolSubmitClips)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != toolSubmitClips {
		t.Errorf("request tools = %+v, want one %s declaration", req.Tools, toolSubmitClips)
	}
}
