// Package taskloop provides a high-level façade over the agent, engine and
// core packages for building verification-gated agent loops. Most
// applications interact with this package by:
//  1. Constructing an engine (engine/anthropic, engine/openai or a custom
//     implementation of engine.Engine)
//  2. Creating an agent via New() with instructions, tools, a verifier and
//     an iteration budget
//  3. Running tasks with Agent.Loop (blocking) or Agent.Stream (live final
//     iteration)
//
// The façade only re-exports the surface; the control algorithm lives in the
// agent package and the per-iteration tool-calling work in the engine
// implementations. All defaults are safe for local development and testing.
package taskloop

import (
	"github.com/hupe1980/taskloop/agent"
	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/engine"
)

// Re-exported types for ergonomic call sites.
type (
	// Agent is the iteration controller; see package agent.
	Agent = agent.Agent
	// Options configures an Agent; see package agent.
	Options = agent.Options
	// Verifier decides task completion after an iteration.
	Verifier = agent.Verifier
	// VerifierFunc adapts a function to the Verifier interface.
	VerifierFunc = agent.VerifierFunc
	// Verification carries the verifier's inputs.
	Verification = agent.Verification
	// Instructions is the normalized system prompt union.
	Instructions = agent.Instructions
	// IterationStart carries the pre-iteration hook payload.
	IterationStart = agent.IterationStart
	// IterationEnd carries the post-iteration hook payload.
	IterationEnd = agent.IterationEnd

	// LoopResult is the terminal output of a blocking invocation.
	LoopResult = core.LoopResult
	// IterationRecord is one iteration's completed engine result.
	IterationRecord = core.IterationRecord
	// VerificationOutcome is the verifier's per-iteration decision.
	VerificationOutcome = core.VerificationOutcome
	// CompletionReason classifies why a loop stopped.
	CompletionReason = core.CompletionReason

	// Engine is the external model + tool execution component.
	Engine = engine.Engine
	// Stream is a live streamed-response handle.
	Stream = engine.Stream
)

// Completion reason values.
const (
	CompletionVerified      = core.CompletionVerified
	CompletionMaxIterations = core.CompletionMaxIterations
	CompletionAborted       = core.CompletionAborted
)

// New creates an agent around an engine; see agent.New for defaults.
func New(name string, eng engine.Engine, optFns ...func(o *Options)) *Agent {
	return agent.New(name, eng, optFns...)
}

// FromText creates Instructions from a static string.
func FromText(text string) Instructions { return agent.InstructionsFromText(text) }

// FromMessage creates Instructions from a single message.
func FromMessage(msg core.Content) Instructions { return agent.InstructionsFromMessage(msg) }

// FromMessages creates Instructions from an ordered message sequence.
func FromMessages(msgs []core.Content) Instructions { return agent.InstructionsFromMessages(msgs) }
