// Package tool implements the function / tool calling subsystem that lets the
// engine's internal step loop invoke structured capabilities (APIs,
// computations, side-effects) with schema validated arguments and consistent
// error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskloop/internal/util"
)

// Tool defines the interface for extending an agent's capability set with
// external functions.
//
// Tools are part of the agent's immutable configuration and are forwarded to
// the engine with every call. The engine executes them during its internal
// tool-use loop; the iteration controller never calls tools directly.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use (loop invocations may run in parallel)
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the model to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and model function calling.
	Parameters() map[string]interface{}

	// Call executes the tool with structured arguments. The context carries
	// cancellation from the surrounding loop invocation. Arguments are parsed
	// from JSON and validated against the tool's schema before invocation.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
