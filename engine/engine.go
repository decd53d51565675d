package engine

import (
	"context"

	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/tool"
)

// Sampling carries per-call generation parameters forwarded verbatim to the
// provider. Optional knobs use pointers so absence can be distinguished from
// zero values; unset fields fall back to provider defaults.
type Sampling struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxTokens        int64          `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"` // Provider-specific options
}

// Request captures the normalized engine input produced by the iteration
// controller: the full outbound message list, the agent's tool capability
// set, sampling configuration and the internal step budget.
type Request struct {
	Messages []core.Content `json:"messages"`
	Tools    []tool.Tool    `json:"-"`
	Sampling Sampling       `json:"sampling"`

	// MaxSteps bounds the engine's own tool-use loop for a blocking call;
	// zero or negative means unbounded. Ignored by Stream, which performs a
	// single generation pass.
	MaxSteps int `json:"max_steps,omitempty"`
}

// FindTool returns the named tool from the request's capability set, or nil.
func (r Request) FindTool(name string) tool.Tool {
	for _, t := range r.Tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Engine is the minimal interface required by the iteration controller to
// drive generation. Implementations own the per-iteration tool-calling work;
// the controller only sequences whole iterations around it.
type Engine interface {
	// Complete performs one blocking iteration: it sends the message list to
	// the provider, executes requested tools, re-issues until the provider
	// stops requesting tools or MaxSteps is exhausted, and returns the
	// materialized record. A failed step fails the whole call; no partial
	// record is returned.
	Complete(ctx context.Context, req Request) (*core.IterationRecord, error)

	// Stream performs a single generation pass returning a live handle whose
	// chunks surface tokens incrementally. No tool-use loop is run and no
	// record is materialized.
	Stream(ctx context.Context, req Request) (*Stream, error)

	// Info returns information about the engine implementation.
	Info() Info
}

// Info contains metadata about an engine implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}
