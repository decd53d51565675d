package agent

import (
	"context"

	"github.com/hupe1980/taskloop/core"
)

// Verification carries the inputs the verifier inspects after an iteration.
type Verification struct {
	Result     *core.IterationRecord   // The iteration just completed
	Iteration  int                     // 1-based iteration number
	AllResults []*core.IterationRecord // All completed iterations in order
	Prompt     string                  // The original task prompt
}

// Verifier decides whether the task is complete after an iteration. It may
// suspend (e.g. to call another model or run a check); errors abort the
// whole invocation.
//
// There is no default verifier: an agent without one always runs to the
// iteration budget and never reports CompletionVerified.
type Verifier interface {
	Verify(ctx context.Context, v *Verification) (core.VerificationOutcome, error)
}

// VerifierFunc is a functional adapter to allow ordinary functions to be used
// as Verifiers.
type VerifierFunc func(ctx context.Context, v *Verification) (core.VerificationOutcome, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
	return f(ctx, v)
}
