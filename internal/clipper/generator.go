package clipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/transcript"
)

// loopState tracks where the generation state machine is. States are logged
// so a stuck episode can be diagnosed from the debug output.
type loopState int

const (
	stateAwaitingToolCall loopState = iota
	stateValidating
	stateRequestingFix
	stateDone
	stateExhausted
)

func (s loopState) String() string {
	switch s {
	case stateAwaitingToolCall:
		return "awaiting_tool_call"
	case stateValidating:
		return "validating"
	case stateRequestingFix:
		return "requesting_fix"
	case stateDone:
		return "done"
	case stateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Generator runs the agentic clip-proposal loop against the chat model.
type Generator struct {
	model  llm.ChatModel
	llmCfg config.LLMConfig
	gen    config.GeneratorConfig
	logger *zap.Logger
}

// NewGenerator creates a generator with the injected chat model.
func NewGenerator(model llm.ChatModel, llmCfg config.LLMConfig, gen config.GeneratorConfig, logger *zap.Logger) *Generator {
	return &Generator{model: model, llmCfg: llmCfg, gen: gen, logger: logger}
}

// GenerateResult is the outcome of a successful generation run.
type GenerateResult struct {
	Clips      []*models.Clip
	Iterations int
}

// submission mirrors the submit_clips tool arguments.
type submission struct {
	Clips *[]models.ClipProposal `json:"clips"`
}

// Generate projects the transcript and drives the model to propose up to
// MaxClips non-overlapping clips within the duration bounds. Validation
// failures are fed back to the model as tool results; only iteration
// exhaustion and transport errors surface.
func (g *Generator) Generate(ctx context.Context, t *models.Transcript, episode models.Episode) (*GenerateResult, error) {
	view, timings, err := transcript.Project(t)
	if err != nil {
		return nil, fmt.Errorf("project transcript: %w", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: generatorSystemPrompt(episode)},
		{Role: llm.RoleUser, Text: generatorUserPrompt(view, episode, g.gen)},
	}
	tools := []llm.Tool{submitClipsTool()}

	state := stateAwaitingToolCall
	for iteration := 1; iteration <= g.gen.MaxIters; iteration++ {
		g.logger.Debug("generator iteration",
			zap.Int("iteration", iteration),
			zap.String("state", state.String()),
		)
		resp, err := g.model.Generate(ctx, &llm.Request{
			Model:       g.llmCfg.Model,
			Messages:    messages,
			MaxTokens:   int32(g.llmCfg.MaxTokens),
			Temperature: temperature(g.llmCfg),
			Tools:       tools,
			ForceTool:   toolSubmitClips,
		})
		if err != nil {
			return nil, fmt.Errorf("model call (iteration %d): %w", iteration, err)
		}

		proposals, protoErr := parseSubmission(resp)
		if protoErr != "" {
			state = stateRequestingFix
			g.logger.Debug("protocol error", zap.String("error", protoErr))
			messages = appendFeedback(messages, resp, protoErr)
			continue
		}

		state = stateValidating
		outcome := validateSubmission(proposals, timings, g.gen.MinMinutes, g.gen.MaxMinutes, g.gen.MaxClips)
		if outcome.ok {
			state = stateDone
			g.logger.Info("clips accepted",
				zap.Int("count", len(outcome.clips)),
				zap.Int("iterations", iteration),
				zap.String("state", state.String()),
			)
			return &GenerateResult{Clips: outcome.clips, Iterations: iteration}, nil
		}

		state = stateRequestingFix
		g.logger.Debug("validation feedback", zap.String("feedback", outcome.feedback))
		messages = appendFeedback(messages, resp, outcome.feedback)
	}

	state = stateExhausted
	g.logger.Warn("generator exhausted",
		zap.Int("max_iters", g.gen.MaxIters),
		zap.String("state", state.String()),
	)
	return nil, fmt.Errorf("after %d iterations: %w", g.gen.MaxIters, ErrGeneratorExhausted)
}

// GenerateWithRetry wraps Generate in a bounded retry. Only exhaustion is
// retried; transport errors surface immediately.
func (g *Generator) GenerateWithRetry(ctx context.Context, t *models.Transcript, episode models.Episode) (*GenerateResult, error) {
	attempts := g.gen.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := g.Generate(ctx, t, episode)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrGeneratorExhausted) {
			return nil, err
		}
		if attempt < attempts {
			g.logger.Info("retrying generation", zap.Int("attempt", attempt+1))
		}
	}
	return nil, lastErr
}

// parseSubmission extracts clip proposals from the model response. Returns
// a non-empty protocol-error message on structural failures: no tool call,
// multiple tool calls, unparseable arguments, or a missing clips key.
func parseSubmission(resp *llm.Response) ([]models.ClipProposal, string) {
	if len(resp.ToolCalls) == 0 {
		return nil, fmt.Sprintf("expected a %s tool call, got none; call the tool with your clips", toolSubmitClips)
	}
	if len(resp.ToolCalls) > 1 {
		return nil, fmt.Sprintf("expected exactly one %s call, got %d; submit all clips in a single call", toolSubmitClips, len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != toolSubmitClips {
		return nil, fmt.Sprintf("expected a %s call, got %q", toolSubmitClips, call.Name)
	}
	var sub submission
	if err := json.Unmarshal(call.Args, &sub); err != nil {
		return nil, fmt.Sprintf("could not parse %s arguments: %v", toolSubmitClips, err)
	}
	if sub.Clips == nil {
		return nil, fmt.Sprintf("%s arguments must contain a clips array", toolSubmitClips)
	}
	if len(*sub.Clips) == 0 {
		return nil, "clips array is empty; submit at least two clips"
	}
	return *sub.Clips, ""
}

// appendFeedback records the assistant turn and attaches the feedback. When
// the model made tool calls, each gets a tool-result message so the
// conversation stays well-formed; otherwise the feedback is a user message.
func appendFeedback(messages []llm.Message, resp *llm.Response, feedback string) []llm.Message {
	messages = append(messages, llm.Message{
		Role:      llm.RoleAssistant,
		Text:      resp.Text,
		ToolCalls: resp.ToolCalls,
	})
	if len(resp.ToolCalls) == 0 {
		return append(messages, llm.Message{Role: llm.RoleUser, Text: feedback})
	}
	for _, tc := range resp.ToolCalls {
		messages = append(messages, llm.Message{
			Role:     llm.RoleTool,
			ToolName: tc.Name,
			Text:     feedback,
		})
	}
	return messages
}

// temperature converts the configured float64 into the pointer the request
// carries; zero means "model default" and maps to nil.
func temperature(cfg config.LLMConfig) *float32 {
	if cfg.Temperature == 0 {
		return nil
	}
	t := float32(cfg.Temperature)
	return &t
}
