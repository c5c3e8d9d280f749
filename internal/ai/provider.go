package ai

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn sent to a model. Assistant turns may carry tool calls; tool turns
// answer exactly one call identified by ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model-issued request to run a named local function. Arguments is the raw
// JSON object the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolParam struct {
	Name        string
	Type        string // JSON schema type: string, integer, number, boolean
	Description string
	Required    bool
}

// ToolSpec declares a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// JSONSchema renders the parameters as a JSON schema object.
func (t ToolSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

type ChatRequest struct {
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
}

// ChatResponse holds the model reply. Content keeps text segments in the order the
// provider returned them.
type ChatResponse struct {
	Content   []string
	ToolCalls []ToolCall
}

// Text joins the content segments.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Content, "\n")
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Temperature returns a pointer for ChatRequest.Temperature.
func Temperature(t float64) *float64 { return &t }

var ErrEmptyResponse = errors.New("ai: empty response")

// Complete runs a plain text exchange and returns the trimmed reply.
func Complete(ctx context.Context, p Provider, messages []Message, temperature *float64) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{Messages: messages, Temperature: temperature})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Text()), nil
}
