package clipper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperclip/kiru/internal/config"
	"github.com/hyperclip/kiru/internal/llm"
	"github.com/hyperclip/kiru/internal/models"
	"github.com/hyperclip/kiru/internal/transcript"
	"github.com/hyperclip/kiru/pkg/utils"
)

const maxTitleWords = 20

// MetadataWriter produces the title and one-paragraph summary for an
// accepted clip.
type MetadataWriter struct {
	model  llm.ChatModel
	llmCfg config.LLMConfig
	gen    config.GeneratorConfig
	logger *zap.Logger
}

// NewMetadataWriter creates a metadata writer with the injected chat model.
func NewMetadataWriter(model llm.ChatModel, llmCfg config.LLMConfig, gen config.GeneratorConfig, logger *zap.Logger) *MetadataWriter {
	return &MetadataWriter{model: model, llmCfg: llmCfg, gen: gen, logger: logger}
}

// metadataArgs mirrors the submit_metadata tool arguments.
type metadataArgs struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Annotate asks the model for a title and description and writes them onto
// the clip. The prompt carries the clip's sentences from the marked
// projection, so a clip that starts or ends inside a long utterance still
// sees its text. Validation feedback loops back as tool results, up to the
// iteration budget.
func (m *MetadataWriter) Annotate(ctx context.Context, t *models.Transcript, episode models.Episode, clip *models.Clip) error {
	view, _, err := transcript.FormatClipPrompt(t, clip)
	if err != nil {
		return fmt.Errorf("project clip %s: %w", clip.ID, err)
	}
	clipText, ok := clipRegion(view)
	if !ok {
		return fmt.Errorf("clip markers missing from projection for clip %s", clip.ID)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: metadataSystemPrompt(episode)},
		{Role: llm.RoleUser, Text: metadataUserPrompt(clipText, episode)},
	}
	tools := []llm.Tool{submitMetadataTool()}

	for iteration := 1; iteration <= m.gen.MaxIters; iteration++ {
		resp, err := m.model.Generate(ctx, &llm.Request{
			Model:       m.llmCfg.Model,
			Messages:    messages,
			MaxTokens:   int32(m.llmCfg.MaxTokens),
			Temperature: temperature(m.llmCfg),
			Tools:       tools,
			ForceTool:   toolSubmitMetadata,
		})
		if err != nil {
			return fmt.Errorf("model call (iteration %d): %w", iteration, err)
		}

		args, feedback := parseMetadata(resp)
		if feedback == "" {
			clip.Name = strings.TrimSpace(args.Title)
			clip.Summary = strings.TrimSpace(args.Description)
			m.logger.Debug("metadata accepted",
				zap.String("clip_id", clip.ID),
				zap.String("title", clip.Name),
				zap.Int("iterations", iteration),
			)
			return nil
		}
		m.logger.Debug("metadata feedback", zap.String("feedback", feedback))
		messages = appendFeedback(messages, resp, feedback)
	}

	return fmt.Errorf("after %d iterations: %w", m.gen.MaxIters, ErrMetadataExhausted)
}

// parseMetadata extracts and validates the tool arguments. Returns a
// non-empty feedback message when the submission needs fixing.
func parseMetadata(resp *llm.Response) (*metadataArgs, string) {
	if len(resp.ToolCalls) != 1 {
		return nil, fmt.Sprintf("expected exactly one %s call, got %d", toolSubmitMetadata, len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != toolSubmitMetadata {
		return nil, fmt.Sprintf("expected a %s call, got %q", toolSubmitMetadata, call.Name)
	}
	var args metadataArgs
	if err := json.Unmarshal(call.Args, &args); err != nil {
		return nil, fmt.Sprintf("could not parse %s arguments: %v", toolSubmitMetadata, err)
	}
	if strings.TrimSpace(args.Title) == "" {
		return nil, "title must not be empty"
	}
	if words := utils.WordCount(args.Title); words > maxTitleWords {
		return nil, fmt.Sprintf("title has %d words; shorten it to at most %d", words, maxTitleWords)
	}
	if strings.TrimSpace(args.Description) == "" {
		return nil, "description must not be empty"
	}
	return &args, ""
}
