package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/taskloop/core"
)

// run bundles the per-invocation state: the conversation and result list are
// created fresh for every Loop/Stream call and discarded when it returns.
// The controller is the only writer, so no locking is required.
type run struct {
	id         string
	prompt     string
	conv       *core.Conversation
	allResults []*core.IterationRecord
}

func (a *Agent) newRun(prompt string) *run {
	return &run{
		id:     core.NewID(),
		prompt: prompt,
		conv:   core.NewConversation(),
	}
}

// iterate performs one full blocking iteration: start hook, engine call,
// result accumulation, end hook, verification. It returns the verification
// outcome (zero value when no verifier is configured). Any collaborator
// error aborts the invocation unchanged.
func (a *Agent) iterate(ctx context.Context, r *run, iteration int) (core.VerificationOutcome, error) {
	start := time.Now()

	if a.onIterationStart != nil {
		if err := a.onIterationStart(ctx, IterationStart{Iteration: iteration}); err != nil {
			return core.VerificationOutcome{}, fmt.Errorf("iteration %d start hook failed: %w", iteration, err)
		}
	}

	a.logger.Debug("loop.iteration.start", "agent", a.name, "run", r.id, "iteration", iteration)

	messages := a.buildMessages(r.prompt, r.conv, iteration > 1)

	record, err := a.engine.Complete(ctx, a.request(messages))
	if err != nil {
		return core.VerificationOutcome{}, fmt.Errorf("engine call failed on iteration %d: %w", iteration, err)
	}

	r.allResults = append(r.allResults, record)
	r.conv.Append(record.Messages...)

	duration := time.Since(start)

	a.logger.Debug(
		"loop.iteration.end",
		"agent", a.name,
		"run", r.id,
		"iteration", iteration,
		"duration", duration,
		"steps", record.Steps,
	)

	if a.onIterationEnd != nil {
		err := a.onIterationEnd(ctx, IterationEnd{Iteration: iteration, Duration: duration, Result: record})
		if err != nil {
			return core.VerificationOutcome{}, fmt.Errorf("iteration %d end hook failed: %w", iteration, err)
		}
	}

	if a.verifier == nil {
		return core.VerificationOutcome{}, nil
	}

	outcome, err := a.verifier.Verify(ctx, &Verification{
		Result:     record,
		Iteration:  iteration,
		AllResults: r.allResults,
		Prompt:     r.prompt,
	})
	if err != nil {
		return core.VerificationOutcome{}, fmt.Errorf("verification failed on iteration %d: %w", iteration, err)
	}

	if !outcome.Complete && outcome.Reason != "" {
		// Fold verifier feedback into the conversation so the next
		// iteration's engine call can steer on it.
		r.conv.Append(core.NewTextContent("user", feedbackPrefix+outcome.Reason))
	}

	return outcome, nil
}

// Loop runs the blocking variant of the outer loop for the given task prompt.
//
// Each iteration builds the outbound message list, performs one blocking
// engine call, records the result, runs the lifecycle hooks and consults the
// verifier. The loop terminates when the verifier reports completion, the
// iteration budget is spent, or ctx is cancelled; cancellation is checked
// cooperatively at the top of each iteration only.
//
// Errors from the engine, a hook or the verifier propagate unchanged and no
// LoopResult is produced. Cancellation is not an error: the result carries
// CompletionAborted along with whatever iterations already completed. If
// cancellation fires before the first iteration completes, the result is the
// distinguished empty variant (zero text, nil Result).
func (a *Agent) Loop(ctx context.Context, prompt string) (*core.LoopResult, error) {
	r := a.newRun(prompt)

	a.logger.Debug("loop.start", "agent", a.name, "run", r.id, "budget", a.maxIterations)

	iteration := 0
	completionReason := core.CompletionMaxIterations
	var reason string

loop:
	for iteration < a.maxIterations {
		select {
		case <-ctx.Done():
			completionReason = core.CompletionAborted
			a.logger.Warn("loop.aborted", "agent", a.name, "run", r.id, "iteration", iteration)
			break loop
		default:
		}

		iteration++

		outcome, err := a.iterate(ctx, r, iteration)
		if err != nil {
			return nil, err
		}

		if outcome.Complete {
			completionReason = core.CompletionVerified
			reason = outcome.Reason

			a.logger.Info("loop.verified", "agent", a.name, "run", r.id, "iteration", iteration, "reason", reason)

			break loop
		}
	}

	a.logger.Info(
		"loop.end",
		"agent", a.name,
		"run", r.id,
		"iterations", iteration,
		"completion_reason", string(completionReason),
	)

	return core.Finalize(r.allResults, iteration, completionReason, reason), nil
}
