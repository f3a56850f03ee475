package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/util"
)

// Error codes carried by *ToolError values produced in this package.
const (
	CodeSchema     = "SCHEMA_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// Func is the implementation behind a FunctionTool. args have already been
// validated against the tool's schema.
type Func func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool adapts a Func to the Tool interface. The parameter schema is
// compiled once; a schema that fails to compile surfaces on every Call as a
// CodeSchema error so a bad local factory degrades one tool, not the node.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	schema      *jsonschema.Schema
	schemaErr   error
	fn          Func
}

// NewFunctionTool returns a FunctionTool with an explicit JSON schema.
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	schema, err := util.CompileSchema(parameters)

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		schema:      schema,
		schemaErr:   err,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the schema from the json and description
// tags of an argument struct.
func NewFunctionToolFromStruct(name, description string, args any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(args), fn)
}

func (t *FunctionTool) Name() string { return t.name }

func (t *FunctionTool) Description() string { return t.description }

func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and runs the function. A *ToolError returned by the
// function passes through; any other error is wrapped as CodeExecution.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	log := toolCtx.Logger()
	fcID := toolCtx.FunctionCallID()

	if t.schemaErr != nil {
		log.Error("tool.function.schema_invalid", "tool", t.name, "error", t.schemaErr)
		return nil, NewToolError(t.name, t.schemaErr.Error(), CodeSchema)
	}

	if err := util.ValidateParameters(args, t.schema); err != nil {
		log.Warn("tool.function.invalid_args", "tool", t.name, "fc_id", fcID, "error", err)

		te := NewToolError(t.name, fmt.Sprintf("parameter validation failed: %v", err), CodeValidation)
		te.Details = err

		return nil, te
	}

	began := time.Now()
	out, err := t.fn(toolCtx, args)
	elapsed := time.Since(began).Milliseconds()

	if err == nil {
		log.Debug("tool.function.done", "tool", t.name, "fc_id", fcID, "duration_ms", elapsed)
		return out, nil
	}

	log.Error("tool.function.failed", "tool", t.name, "fc_id", fcID, "duration_ms", elapsed, "error", err)

	var te *ToolError
	if errors.As(err, &te) {
		return nil, te
	}

	return nil, NewToolError(t.name, err.Error(), CodeExecution)
}
