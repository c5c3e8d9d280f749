package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownTool = errors.New("unknown tool")

// ToolOutcome is one executed call. Result is either a typed result or an error object.
type ToolOutcome struct {
	CallID string
	Name   string
	Args   map[string]any
	Result any
}

// Content is the JSON sent back to the model.
func (o ToolOutcome) Content() string {
	b, err := json.Marshal(o.Result)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}

type errorResult struct {
	Error string `json:"error"`
}

// Dispatcher validates tool arguments and routes calls by kind.
type Dispatcher struct {
	tools   *Tools
	schemas map[ToolKind]gojsonschema.JSONLoader
}

func NewDispatcher(tools *Tools) *Dispatcher {
	d := &Dispatcher{tools: tools, schemas: make(map[ToolKind]gojsonschema.JSONLoader, len(Specs))}
	for _, s := range Specs {
		d.schemas[ToolKind(s.Name)] = gojsonschema.NewGoLoader(s.JSONSchema())
	}
	return d
}

// Dispatch runs one call. Failures become error results; it never panics on bad input.
func (d *Dispatcher) Dispatch(ctx context.Context, call ai.ToolCall) ToolOutcome {
	out := ToolOutcome{CallID: call.ID, Name: call.Name, Args: map[string]any{}}

	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &out.Args); err != nil {
		out.Result = errorResult{Error: fmt.Sprintf("invalid arguments: %v", err)}
		return out
	}

	kind := ToolKind(call.Name)
	if err := d.validate(kind, raw); err != nil {
		out.Result = errorResult{Error: err.Error()}
		return out
	}

	switch kind {
	case FetchFailure:
		var args FetchFailureArgs
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			out.Result = errorResult{Error: err.Error()}
			return out
		}
		rec, err := d.tools.FetchFailure(ctx, args.LogID)
		if err != nil {
			out.Result = errorResult{Error: err.Error()}
			return out
		}
		out.Result = rec
	case LookupKB:
		var args LookupKBArgs
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			out.Result = errorResult{Error: err.Error()}
			return out
		}
		out.Result = d.tools.LookupKB(ctx, args.ErrorMessage)
	default:
		out.Result = errorResult{Error: fmt.Sprintf("%v: %s", ErrUnknownTool, call.Name)}
	}
	return out
}

func (d *Dispatcher) validate(kind ToolKind, raw string) error {
	schema, ok := d.schemas[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, kind)
	}
	res, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, len(res.Errors()))
		for i, e := range res.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("invalid arguments: %v", msgs)
	}
	return nil
}
