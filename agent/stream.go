package agent

import (
	"context"

	"github.com/hupe1980/taskloop/engine"
)

// Stream runs the streaming variant of the outer loop for the given task
// prompt and returns the final iteration's live stream.
//
// The variant spends the budget one iteration earlier than Loop: iterations
// 1..(budget-1) run the same blocking per-iteration procedure with
// verification, then exactly one streaming engine call is issued for the
// final utterance. The streamed call is never verified and its content is
// not appended to the invocation's conversation or result list; the
// invocation ends at the returned handle. Callers therefore trade
// verification coverage on the last iteration for live tokens.
//
// Two paths reach the streaming call:
//   - Early verification: as soon as the verifier reports completion the
//     streaming call is issued with the conversation so far and no
//     continuation directive.
//   - Budget exhaustion: after the (budget-1)-th unverified iteration the
//     iteration counter is advanced once more and the streaming call uses
//     the same message-construction rule as blocking mode (continuation
//     directive included when the final iteration is not the first).
//
// Cancellation before the streaming call is issued returns ctx.Err(); with
// no stream handle to hand back there is no partial result to report.
func (a *Agent) Stream(ctx context.Context, prompt string) (*engine.Stream, error) {
	r := a.newRun(prompt)

	a.logger.Debug("stream.start", "agent", a.name, "run", r.id, "budget", a.maxIterations)

	iteration := 0
	verified := false

loop:
	for iteration < a.maxIterations-1 {
		select {
		case <-ctx.Done():
			a.logger.Warn("stream.aborted", "agent", a.name, "run", r.id, "iteration", iteration)
			return nil, ctx.Err()
		default:
		}

		iteration++

		outcome, err := a.iterate(ctx, r, iteration)
		if err != nil {
			return nil, err
		}

		if outcome.Complete {
			verified = true

			a.logger.Info("stream.verified", "agent", a.name, "run", r.id, "iteration", iteration, "reason", outcome.Reason)

			break loop
		}
	}

	if err := ctx.Err(); err != nil {
		a.logger.Warn("stream.aborted", "agent", a.name, "run", r.id, "iteration", iteration)
		return nil, err
	}

	continuation := false
	if !verified {
		iteration++
		continuation = iteration > 1
	}

	a.logger.Debug("stream.final_call", "agent", a.name, "run", r.id, "iteration", iteration, "verified", verified)

	messages := a.buildMessages(prompt, r.conv, continuation)

	stream, err := a.engine.Stream(ctx, a.request(messages))
	if err != nil {
		return nil, err
	}

	return stream, nil
}
