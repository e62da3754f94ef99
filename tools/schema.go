package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidated wraps a Tool, replacing its ValidateParameters with a
// real JSON Schema check compiled from the tool's ParametersSchema. Tools
// that declare no schema (nil ParametersSchema) accept any parameters,
// matching the wrapped tool's behavior.
type SchemaValidated struct {
	Tool
	compiled *jsonschema.Schema
}

// WrapWithSchema compiles tool's ParametersSchema (if any) and returns a
// SchemaValidated wrapper. An error is returned only if the declared schema
// itself fails to compile; callers typically register this at startup and
// treat a compile failure as a configuration error.
func WrapWithSchema(tool Tool) (*SchemaValidated, error) {
	spec := tool.Describe()
	if len(spec.ParametersSchema) == 0 {
		return &SchemaValidated{Tool: tool}, nil
	}
	raw, err := json.Marshal(spec.ParametersSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters schema for %s: %w", spec.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse parameters schema for %s: %w", spec.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := spec.Name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", spec.Name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile parameters schema for %s: %w", spec.Name, err)
	}
	return &SchemaValidated{Tool: tool, compiled: compiled}, nil
}

// ValidateParameters runs the compiled JSON Schema against params,
// returning false on any validation error.
func (s *SchemaValidated) ValidateParameters(params map[string]any) bool {
	if s.compiled == nil {
		return s.Tool.ValidateParameters(params)
	}
	return s.compiled.Validate(map[string]any(params)) == nil
}

// Execute delegates to the wrapped tool.
func (s *SchemaValidated) Execute(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error) {
	return s.Tool.Execute(ctx, req)
}
