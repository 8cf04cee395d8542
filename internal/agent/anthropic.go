package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rendis/handoff/pkg/schema"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

const defaultMaxTokens = 2048

// AnthropicAgent implements ChatAgent against Anthropic's Messages API.
// It owns the tool loop: tool_use turns are dispatched through the
// ToolDispatcher and their results fed back until the model stops.
type AnthropicAgent struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	dispatcher *ToolDispatcher
	logger     *slog.Logger
}

// NewAnthropicAgent creates an AnthropicAgent. A missing API key is a
// configuration fault, reported eagerly rather than on the first call.
func NewAnthropicAgent(apiKey, model string, dispatcher *ToolDispatcher, logger *slog.Logger) (*AnthropicAgent, error) {
	if apiKey == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"missing Anthropic API key: set ANTHROPIC_API_KEY or anthropic_api_key in settings.json")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &AnthropicAgent{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		maxTokens:  defaultMaxTokens,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// StreamChat implements ChatAgent. Text deltas are forwarded as they
// arrive; a backend failure surfaces as a single error frame and a
// failed turn.
func (a *AnthropicAgent) StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan Frame, error) {
	system, params := convertMessages(messages)
	out := make(chan Frame)

	go func() {
		defer close(out)
		a.run(ctx, system, params, tools, out)
	}()
	return out, nil
}

func (a *AnthropicAgent) run(ctx context.Context, system string, messages []anthropic.MessageParam, tools []ToolSpec, out chan<- Frame) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  messages,
		Tools:     convertTools(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for {
		stream := a.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				emit(ctx, out, Frame{Type: FrameError, Error: err.Error()})
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !emit(ctx, out, Frame{Type: FrameText, Text: delta.Text}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			a.logger.ErrorContext(ctx, "anthropic stream failed", "error", err)
			emit(ctx, out, Frame{Type: FrameError, Error: backendError(err).Error()})
			return
		}

		if message.StopReason != "tool_use" {
			emit(ctx, out, Frame{Type: FrameDone})
			return
		}

		// Dispatch every tool_use block and hand the results back.
		params.Messages = append(params.Messages, message.ToParam())
		var resultBlocks []anthropic.ContentBlockParamUnion

		for _, block := range message.Content {
			variant, ok := block.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			call := ToolCall{ID: variant.ID, Name: variant.Name}
			if err := json.Unmarshal([]byte(variant.JSON.Input.Raw()), &call.Input); err != nil {
				call.Input = map[string]any{}
			}
			if !emit(ctx, out, Frame{Type: FrameToolCall, ToolCall: &call}) {
				return
			}

			result, err := a.dispatcher.Dispatch(ctx, call)
			if err != nil {
				a.logger.WarnContext(ctx, "tool call failed", "tool", call.Name, "error", err)
				resultBlocks = append(resultBlocks,
					anthropic.NewToolResultBlock(variant.ID, err.Error(), true))
				continue
			}
			if !emit(ctx, out, Frame{Type: FrameToolResult, ToolResult: result}) {
				return
			}
			resultJSON, _ := json.Marshal(result)
			resultBlocks = append(resultBlocks,
				anthropic.NewToolResultBlock(variant.ID, string(resultJSON), false))
		}

		params.Messages = append(params.Messages, anthropic.NewUserMessage(resultBlocks...))
	}
}

// convertMessages splits out the system prompt (Anthropic passes it as a
// separate parameter) and converts the rest.
func convertMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, params
}

func convertTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tp := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Schema["properties"],
			},
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &tp}
	}
	return out
}

func backendError(err error) *schema.HandoffError {
	return schema.NewError(schema.ErrCodeBackend,
		"anthropic request failed; verify the API key and model name").WithCause(err)
}

// emit sends a frame unless the context is done. Returns false when the
// caller should stop producing.
func emit(ctx context.Context, out chan<- Frame, f Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
