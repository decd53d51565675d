package agent

import (
	"context"
	"time"

	"github.com/hupe1980/taskloop/core"
)

// IterationStart is the payload delivered to OnIterationStart before the
// iteration's engine call is issued.
type IterationStart struct {
	Iteration int // 1-based iteration number
}

// IterationEnd is the payload delivered to OnIterationEnd once the
// iteration's engine call has completed, before verification runs.
type IterationEnd struct {
	Iteration int
	Duration  time.Duration // Wall-clock time of the whole iteration
	Result    *core.IterationRecord
}

// Lifecycle hooks are optional function-valued configuration invoked at fixed
// points of every iteration, in the order start hook -> engine call -> end
// hook -> verification. A hook error aborts the invocation.
type (
	// IterationStartHook runs before each iteration's engine call.
	IterationStartHook func(ctx context.Context, info IterationStart) error

	// IterationEndHook runs after each iteration's engine call.
	IterationEndHook func(ctx context.Context, info IterationEnd) error
)
