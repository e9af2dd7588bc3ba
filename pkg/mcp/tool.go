package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool is a named operation the server exposes.
type Tool struct {
	Name        string
	Description string
	InputSchema any
	Call        func(ctx context.Context, args json.RawMessage) (Result, error)
}

func (t Tool) Info() ToolInfo {
	return ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
}

// InvalidArgumentsError is returned by a Tool when the arguments do not fit
// its schema. The server maps it to JSON-RPC invalid params.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor reflects the JSON schema of the parameter struct T. Fields
// without omitempty are required.
func SchemaFor[T any]() *jsonschema.Schema {
	var zero T
	s := reflector.Reflect(&zero)
	s.Version = ""
	return s
}

// NewTool builds a Tool whose arguments decode into T. Required fields that
// are absent or null fail before call runs.
func NewTool[T any](name, description string, call func(ctx context.Context, args T) (Result, error)) Tool {
	schema := SchemaFor[T]()
	required := schema.Required

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Call: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || string(raw) == "null" {
				raw = json.RawMessage("{}")
			}

			var present map[string]json.RawMessage
			if err := json.Unmarshal(raw, &present); err != nil {
				return Result{}, &InvalidArgumentsError{Tool: name, Reason: "arguments must be a JSON object"}
			}
			for _, key := range required {
				if v, ok := present[key]; !ok || string(v) == "null" {
					return Result{}, &InvalidArgumentsError{Tool: name, Reason: "missing required argument: " + key}
				}
			}

			var args T
			if err := json.Unmarshal(raw, &args); err != nil {
				return Result{}, &InvalidArgumentsError{Tool: name, Reason: err.Error()}
			}
			return call(ctx, args)
		},
	}
}
