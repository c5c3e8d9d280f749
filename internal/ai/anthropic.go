package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 2048

type AnthropicProvider struct {
	Model  string
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		Model:  model,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	// tool blocks are only accepted when tools are declared
	system, msgs := toAnthropicMessages(req.Messages, len(req.Tools) == 0)
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: no messages to send")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		Messages:  msgs,
		MaxTokens: anthropicMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		tp := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
		}
		// the schema param type only round-trips through JSON
		raw, err := json.Marshal(t.JSONSchema())
		if err != nil {
			return nil, err
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, err
		}
		tp.InputSchema = schema
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tp})
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	out := &ChatResponse{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out.Content = append(out.Content, block.Text)
			}
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(argsOrEmpty(string(block.Input))),
			})
		}
	}
	return out, nil
}

// toAnthropicMessages lifts system turns into the system prompt and folds consecutive tool
// results into a single user turn. With flatten set, tool calls and results are rendered
// as plain text.
func toAnthropicMessages(messages []Message, flatten bool) (string, []anthropic.MessageParam) {
	var system []string
	var out []anthropic.MessageParam
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case RoleTool:
			if flatten {
				pending = append(pending, anthropic.NewTextBlock(fmt.Sprintf("Result of %s: %s", m.ToolCallID, m.Content)))
				continue
			}
			pending = append(pending, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				if flatten {
					blocks = append(blocks, anthropic.NewTextBlock(fmt.Sprintf("Called %s (%s) with %s", tc.Name, tc.ID, tc.Arguments)))
					continue
				}
				var input map[string]any
				if err := json.Unmarshal(argsOrEmpty(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			// text after tool results joins the same user turn
			if m.Content != "" {
				pending = append(pending, anthropic.NewTextBlock(m.Content))
			}
			flush()
		}
	}
	flush()
	return strings.Join(system, "\n\n"), out
}
