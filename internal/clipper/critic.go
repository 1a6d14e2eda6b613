package clipper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/transcript"
)

// noChangeRecommendation is the exact phrase a critique uses to keep the
// current index.
const noChangeRecommendation = "No change recommended."

// Critic runs paired start/end critiques on an accepted clip and applies
// the merged recommendation. Start and end critiques are independent; they
// are only consolidated in the apply step, so reasoning about one end never
// contaminates the other.
type Critic struct {
	model  llm.ChatModel
	llmCfg config.LLMConfig
	gen    config.GeneratorConfig
	logger *zap.Logger
}

// NewCritic creates a critic with the injected chat model.
func NewCritic(model llm.ChatModel, llmCfg config.LLMConfig, gen config.GeneratorConfig, logger *zap.Logger) *Critic {
	return &Critic{model: model, llmCfg: llmCfg, gen: gen, logger: logger}
}

// critique is one parsed critique response.
type critique struct {
	Text           string
	Recommendation string
}

// Refine critiques the clip's start and end and applies the consolidated
// recommendation. Any critic failure falls back to the original clip: a
// worse clip is better than no clip. Only context cancellation surfaces.
func (c *Critic) Refine(ctx context.Context, t *models.Transcript, clip *models.Clip) (*models.Clip, error) {
	view, timings, err := transcript.FormatClipPrompt(t, clip)
	if err != nil {
		c.logger.Warn("critic projection failed, keeping original clip", zap.Error(err))
		return clip, nil
	}

	startView, endView, ok := splitClipViews(view)
	if !ok {
		c.logger.Warn("clip markers missing from projection, keeping original clip")
		return clip, nil
	}

	startCrit, err := c.critique(ctx, startCritiquePrompt(startView, clip))
	if err != nil {
		return c.fallback(ctx, clip, "start critique", err)
	}
	endCrit, err := c.critique(ctx, endCritiquePrompt(endView, clip))
	if err != nil {
		return c.fallback(ctx, clip, "end critique", err)
	}

	startIdx, endIdx, err := c.applyCritiques(ctx, clip, startCrit, endCrit)
	if err != nil {
		return c.fallback(ctx, clip, "apply critiques", err)
	}

	refined := *clip
	refined.StartIndex = startIdx
	refined.EndIndex = endIdx
	if msg := resolveRefined(&refined, timings, c.gen.MinMinutes, c.gen.MaxMinutes); msg != "" {
		// Refined indices failed validation: discard the refinement and
		// keep the original clip.
		c.logger.Warn("refined clip rejected, keeping original",
			zap.String("reason", msg),
			zap.Int("start_index", startIdx),
			zap.Int("end_index", endIdx),
		)
		return clip, nil
	}

	if refined.StartIndex != clip.StartIndex || refined.EndIndex != clip.EndIndex {
		c.logger.Info("clip refined",
			zap.Int("old_start", clip.StartIndex), zap.Int("new_start", refined.StartIndex),
			zap.Int("old_end", clip.EndIndex), zap.Int("new_end", refined.EndIndex),
		)
	}
	return &refined, nil
}

// fallback returns the original clip unless the context is done, in which
// case the cancellation propagates.
func (c *Critic) fallback(ctx context.Context, clip *models.Clip, stage string, err error) (*models.Clip, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.logger.Warn("critic stage failed, keeping original clip",
		zap.String("stage", stage), zap.Error(err))
	return clip, nil
}

// critique sends one critique prompt and parses the response blocks.
func (c *Critic) critique(ctx context.Context, prompt string) (*critique, error) {
	resp, err := c.model.Generate(ctx, &llm.Request{
		Model:       c.llmCfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Text: prompt}},
		MaxTokens:   int32(c.llmCfg.MaxTokens),
		Temperature: temperature(c.llmCfg),
	})
	if err != nil {
		return nil, err
	}
	return parseCritique(resp.Text)
}

var (
	critiqueRe       = regexp.MustCompile(`(?s)<critique>(.*?)</critique>`)
	recommendationRe = regexp.MustCompile(`(?s)<recommendation>(.*?)</recommendation>`)
)

// parseCritique extracts the critique paragraph and recommendation.
func parseCritique(text string) (*critique, error) {
	cm := critiqueRe.FindStringSubmatch(text)
	rm := recommendationRe.FindStringSubmatch(text)
	if cm == nil || rm == nil {
		return nil, fmt.Errorf("response missing critique or recommendation block")
	}
	return &critique{
		Text:           strings.TrimSpace(cm[1]),
		Recommendation: strings.TrimSpace(rm[1]),
	}, nil
}

// isNoChange reports whether a recommendation is the no-change phrase,
// tolerating case and the trailing period.
func isNoChange(rec string) bool {
	return strings.EqualFold(
		strings.TrimSuffix(strings.TrimSpace(rec), "."),
		strings.TrimSuffix(noChangeRecommendation, "."),
	)
}

// applyCritiques runs the consolidation call: the model merges both
// critiques and submits final indices through the tool.
func (c *Critic) applyCritiques(ctx context.Context, clip *models.Clip, start, end *critique) (int, int, error) {
	prompt := applyCritiquesPrompt(clip,
		renderCritique(start), renderCritique(end))
	resp, err := c.model.Generate(ctx, &llm.Request{
		Model:       c.llmCfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Text: prompt}},
		MaxTokens:   int32(c.llmCfg.MaxTokens),
		Temperature: temperature(c.llmCfg),
		Tools:       []llm.Tool{applyCritiquesTool()},
		ForceTool:   toolSubmitClips,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(resp.ToolCalls) != 1 {
		return 0, 0, fmt.Errorf("expected one %s call, got %d", toolSubmitClips, len(resp.ToolCalls))
	}
	var args struct {
		StartIndex *int `json:"start_index"`
		EndIndex   *int `json:"end_index"`
	}
	if err := json.Unmarshal(resp.ToolCalls[0].Args, &args); err != nil {
		return 0, 0, fmt.Errorf("parse apply arguments: %w", err)
	}
	if args.StartIndex == nil || args.EndIndex == nil {
		return 0, 0, fmt.Errorf("apply arguments missing indices")
	}

	// The model is told to preserve indices for no-change critiques;
	// enforce that here too so a drifting apply call cannot move an end
	// the critique left alone.
	startIdx, endIdx := *args.StartIndex, *args.EndIndex
	if isNoChange(start.Recommendation) {
		startIdx = clip.StartIndex
	}
	if isNoChange(end.Recommendation) {
		endIdx = clip.EndIndex
	}
	return startIdx, endIdx, nil
}

func renderCritique(c *critique) string {
	return fmt.Sprintf("%s\nRecommendation: %s", c.Text, c.Recommendation)
}

// resolveRefined re-resolves milliseconds for the refined indices and
// re-checks ordering and duration. Returns an error message when invalid.
func resolveRefined(clip *models.Clip, timings models.SentenceTimings, minMinutes, maxMinutes float64) string {
	resolved, msg := validateProposal(&clip.ClipProposal, timings, minMinutes, maxMinutes)
	if msg != "" {
		return msg
	}
	clip.StartMs = resolved.StartMs
	clip.EndMs = resolved.EndMs
	return ""
}

// splitClipViews cuts the marked projection into the start-critique view
// (context before the clip plus the clip, ending at </CLIP>) and the
// end-critique view (the clip plus everything after, starting at <CLIP>).
func splitClipViews(view string) (startView, endView string, ok bool) {
	open := strings.Index(view, transcript.ClipOpenMarker)
	close_ := strings.Index(view, transcript.ClipCloseMarker)
	if open < 0 || close_ < 0 || close_ < open {
		return "", "", false
	}
	return view[:close_+len(transcript.ClipCloseMarker)], view[open:], true
}

// clipRegion returns the projected sentences between the clip markers,
// without the markers themselves.
func clipRegion(view string) (string, bool) {
	open := strings.Index(view, transcript.ClipOpenMarker)
	close_ := strings.Index(view, transcript.ClipCloseMarker)
	if open < 0 || close_ < 0 || close_ < open {
		return "", false
	}
	return strings.TrimSpace(view[open+len(transcript.ClipOpenMarker) : close_]), true
}
