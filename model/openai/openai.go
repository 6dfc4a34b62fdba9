// Package openai adapts the OpenAI Chat Completions API (including
// function/tool calling) to the model.ChatModel capability.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/model"
)

// Options configure the OpenAI chat adapter. Fields mirror a minimal subset
// of Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// ChatModel wraps the OpenAI Chat Completions API behind model.ChatModel.
type ChatModel struct {
	client *openai.Client
	opts   Options
	tools  []openai.ChatCompletionToolParam
	forced string
}

// New creates an adapter using the default client (API key from environment).
func New(optFns ...func(o *Options)) *ChatModel {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *ChatModel {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ChatModel{client: client, opts: opts}
}

// Invoke implements model.ChatModel.
func (m *ChatModel) Invoke(ctx context.Context, messages []core.Message) (core.Message, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(m.tools) > 0 {
		params.Tools = m.tools
		if m.forced != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: m.forced},
				},
			}
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.Message{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, fmt.Errorf("openai api returned no choices")
	}

	choice := resp.Choices[0].Message
	out := core.NewAIMessage(choice.Content)
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// BindTools implements model.ToolBinder. It returns a shallow copy carrying
// the converted tool definitions; the receiver is unchanged.
func (m *ChatModel) BindTools(tools []model.ToolDefinition, optFns ...func(o *model.BindOptions)) (model.ChatModel, error) {
	opts := model.BindOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	converted := make([]openai.ChatCompletionToolParam, len(tools))
	for i, tdef := range tools {
		converted[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}

	bound := *m
	bound.tools = converted
	bound.forced = opts.ForceTool
	return &bound, nil
}

// Info implements model.ChatModel.
func (m *ChatModel) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

// buildMessages converts conversation messages into the SDK union format.
// Histories are already ordered with tool results following the assistant
// message that requested them, so the mapping is positional.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case core.RoleHuman:
			out = append(out, openai.UserMessage(msg.Content))
		case core.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case core.RoleAI:
			if !msg.HasToolCalls() {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		default:
			if msg.Content != "" {
				out = append(out, openai.UserMessage(msg.Content))
			}
		}
	}
	return out
}
