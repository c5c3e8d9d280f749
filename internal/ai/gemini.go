package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: cl, modelName: modelName}, nil
}

func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m := g.client.GenerativeModel(g.modelName)
	if req.Temperature != nil {
		m.SetTemperature(float32(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiDeclaration(t))
		}
		m.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	system, contents := toGeminiContents(req.Messages)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return nil, errors.New("gemini: conversation must end with a user turn")
	}

	cs := m.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &ChatResponse{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	for i, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			if s := string(v); s != "" {
				out.Content = append(out.Content, s)
			}
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: encode args for %s: %w", v.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      v.Name,
				Arguments: string(args),
			})
		}
	}
	return out, nil
}

func geminiDeclaration(t ToolSpec) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(t.Params))
	var required []string
	for _, p := range t.Params {
		props[p.Name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		},
	}
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// toGeminiContents maps turns onto user/model contents. Gemini has no call ids, so tool
// results are answered by the function name recorded on the preceding assistant turn.
// Adjacent parts with the same role are merged.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var out []*genai.Content
	names := map[string]string{}

	push := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Name
				var args map[string]any
				_ = json.Unmarshal(argsOrEmpty(tc.Arguments), &args)
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			push("model", parts...)
		case RoleTool:
			var resp map[string]any
			if err := json.Unmarshal([]byte(m.Content), &resp); err != nil || resp == nil {
				resp = map[string]any{"result": m.Content}
			}
			push("user", genai.FunctionResponse{Name: names[m.ToolCallID], Response: resp})
		default:
			if m.Content != "" {
				push("user", genai.Text(m.Content))
			}
		}
	}
	return strings.Join(system, "\n\n"), out
}

// GeminiEmbedder produces embeddings for the schema index.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts batches all texts in one request.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}
