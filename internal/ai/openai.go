package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat/completions endpoint (OpenAI,
// OpenRouter, Cohere compatibility API, Ollama /v1, vLLM).
type OpenAIProvider struct {
	Model  string
	client *openai.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	return &OpenAIProvider{
		Model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, errors.New("openai: model is required")
	}

	creq := openai.ChatCompletionRequest{
		Model: model,
		Messages: func() []openai.ChatCompletionMessage {
			out := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
			for _, m := range req.Messages {
				om := openai.ChatCompletionMessage{
					Role:       m.Role,
					Content:    m.Content,
					ToolCallID: m.ToolCallID,
				}
				for _, tc := range m.ToolCalls {
					om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					})
				}
				out = append(out, om)
			}
			return out
		}(),
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.JSONSchema(),
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}

	msg := resp.Choices[0].Message
	out := &ChatResponse{}
	if msg.Content != "" {
		out.Content = append(out.Content, msg.Content)
	}
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
			out.Content = append(out.Content, part.Text)
		}
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
