// Package agent implements the iteration controller: the outer loop that
// repeatedly drives an engine until a caller-supplied verifier confirms the
// task is complete, the iteration budget is exhausted, or the caller cancels.
//
// The package focuses on three concerns:
//
//  1. Immutable per-agent configuration (Agent, Options, Instructions)
//  2. The blocking loop with verification gating (Agent.Loop)
//  3. The streaming variant that trades last-iteration verification for a
//     live token stream (Agent.Stream)
//
// Design principles:
//   - No hidden shared state: each Loop/Stream invocation owns its own
//     conversation and result list, so concurrent invocations on one Agent
//     are safe because the configuration is read-only
//   - Cooperative cancellation via context.Context, checked at the top of
//     each iteration; in-flight engine calls are aborted only if the engine
//     honors the forwarded context
//   - No local recovery: engine, hook and verifier failures abort the whole
//     invocation without producing a result
//
// The per-iteration tool-calling work belongs to the engine package; the
// controller only sequences whole iterations around it.
package agent
