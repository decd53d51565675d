// Package engine defines the provider-agnostic abstraction for the external
// model + tool execution component that the iteration controller drives.
//
// Core goals:
//   - Unify blocking + streaming generation behind a single interface
//   - Keep request shapes minimal and transport independent (Request, Sampling)
//   - Delegate the internal tool-use step loop entirely to implementations
//   - Facilitate lightweight mocking for tests (MockEngine)
//
// Providers (e.g. OpenAI, Anthropic) implement the Engine interface from this
// package so the agent layer remains decoupled from vendor SDKs. A blocking
// Complete call runs the provider's own tool-use loop up to Request.MaxSteps
// and materializes a core.IterationRecord; Stream returns a live handle whose
// chunks are consumed incrementally by the caller.
package engine
