// Package core provides the foundational domain types used by taskloop. It
// defines the core abstractions for:
//
//   - Content / Part (role-tagged conversation messages with polymorphic parts)
//   - Conversation (the append-only message accumulator owned by one loop run)
//   - IterationRecord (the engine's completed result for a single iteration)
//   - LoopResult / CompletionReason (terminal output of a loop invocation)
//   - StepLimiter (budget enforcement for the engine's internal tool-use loop)
//
// The package intentionally keeps implementation concerns (engine adapters,
// the iteration controller, tool execution) out of scope, exposing small
// value types so higher layers and custom engines share one vocabulary.
package core
