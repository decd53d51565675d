package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskloop/core"
)

func TestStreamSpendsBudgetMinusOneBlockingCalls(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 4
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.NoError(t, err)

	text, err := stream.Text(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, eng.completeCalls())
	assert.Equal(t, 1, eng.streamCalls())
	assert.Equal(t, "streamed answer", text)
}

func TestStreamBudgetOfOneSkipsBlockingCalls(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 1
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.NoError(t, err)

	_, err = stream.Text(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, eng.completeCalls())
	assert.Equal(t, 1, eng.streamCalls())

	// Budget 1 means the streaming call is the first iteration, so no
	// continuation directive is sent.
	require.Len(t, eng.streamReqs, 1)
	assert.False(t, containsText(eng.streamReqs[0], continuationDirective))
	assert.True(t, containsText(eng.streamReqs[0], "Summarize X"))
}

func TestStreamBudgetPathIncludesContinuationDirective(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.NoError(t, err)

	_, err = stream.Text(context.Background())
	require.NoError(t, err)

	require.Len(t, eng.streamReqs, 1)
	assert.True(t, containsText(eng.streamReqs[0], continuationDirective))
}

func TestStreamEarlyVerificationOmitsContinuationDirective(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 5
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			return core.VerificationOutcome{Complete: true, Reason: "done"}, nil
		})
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.NoError(t, err)

	_, err = stream.Text(context.Background())
	require.NoError(t, err)

	// Verified on the first blocking iteration, then one streaming call.
	assert.Equal(t, 1, eng.completeCalls())
	assert.Equal(t, 1, eng.streamCalls())

	require.Len(t, eng.streamReqs, 1)
	assert.False(t, containsText(eng.streamReqs[0], continuationDirective))
	// The verified attempt stays in the streamed call's conversation.
	assert.True(t, containsText(eng.streamReqs[0], "attempt 1"))
}

func TestStreamCancelledBeforeStreamingCall(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream, err := a.Stream(ctx, "Summarize X")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, stream)
	assert.Equal(t, 0, eng.completeCalls())
	assert.Equal(t, 0, eng.streamCalls())
}

func TestStreamEngineFailurePropagates(t *testing.T) {
	eng := newScriptedEngine()
	eng.failOn = 1

	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.Error(t, err)
	assert.Nil(t, stream)
	assert.Contains(t, err.Error(), "iteration 1")
}

func TestStreamBlockingIterationsRunHooksAndVerifier(t *testing.T) {
	eng := newScriptedEngine()

	var starts, ends, verifies int
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
		o.OnIterationStart = func(ctx context.Context, info IterationStart) error {
			starts++
			return nil
		}
		o.OnIterationEnd = func(ctx context.Context, info IterationEnd) error {
			ends++
			return nil
		}
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			verifies++
			return core.VerificationOutcome{}, nil
		})
	})

	stream, err := a.Stream(context.Background(), "Summarize X")
	require.NoError(t, err)

	_, err = stream.Text(context.Background())
	require.NoError(t, err)

	// Hooks and verification cover the blocking iterations only, never the
	// final streaming call.
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, ends)
	assert.Equal(t, 2, verifies)
}
