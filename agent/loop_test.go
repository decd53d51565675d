package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/engine"
	"github.com/hupe1980/taskloop/logging"
)

// scriptedEngine is a test double implementing engine.Engine. It records
// every request and replies with a numbered canned completion.
type scriptedEngine struct {
	mu           sync.Mutex
	completeReqs []engine.Request
	streamReqs   []engine.Request
	failOn       int // 1-based Complete call index to fail on (0 = never)
	streamText   string
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{streamText: "streamed answer"}
}

func (s *scriptedEngine) Complete(ctx context.Context, req engine.Request) (*core.IterationRecord, error) {
	s.mu.Lock()
	s.completeReqs = append(s.completeReqs, req)
	n := len(s.completeReqs)
	failOn := s.failOn
	s.mu.Unlock()

	if failOn > 0 && n == failOn {
		return nil, errors.New("model unavailable")
	}

	text := fmt.Sprintf("attempt %d", n)
	return &core.IterationRecord{
		ID:           core.NewID(),
		Text:         text,
		Messages:     []core.Content{core.NewTextContent("assistant", text)},
		FinishReason: "stop",
		Steps:        1,
	}, nil
}

func (s *scriptedEngine) Stream(ctx context.Context, req engine.Request) (*engine.Stream, error) {
	s.mu.Lock()
	s.streamReqs = append(s.streamReqs, req)
	text := s.streamText
	s.mu.Unlock()

	stream := engine.NewStream(16)
	go func() {
		for _, r := range text {
			if err := stream.Send(ctx, engine.Chunk{Text: string(r)}); err != nil {
				stream.Close(err)
				return
			}
		}
		stream.Close(nil)
	}()
	return stream, nil
}

func (s *scriptedEngine) Info() engine.Info {
	return engine.Info{Name: "scripted", Provider: "mock"}
}

func (s *scriptedEngine) completeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completeReqs)
}

func (s *scriptedEngine) streamCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streamReqs)
}

// messageTexts flattens a request's messages to their text form.
func messageTexts(req engine.Request) []string {
	texts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		texts = append(texts, m.Text())
	}
	return texts
}

func containsText(req engine.Request, text string) bool {
	for _, t := range messageTexts(req) {
		if strings.Contains(t, text) {
			return true
		}
	}
	return false
}

func TestLoopRunsToIterationBudget(t *testing.T) {
	tests := []struct {
		name   string
		budget int
	}{
		{name: "single iteration", budget: 1},
		{name: "three iterations", budget: 3},
		{name: "default-sized budget", budget: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newScriptedEngine()
			a := New("worker", eng, func(o *Options) {
				o.MaxIterations = tt.budget
			})

			result, err := a.Loop(context.Background(), "Summarize X")
			require.NoError(t, err)

			assert.Equal(t, tt.budget, eng.completeCalls())
			assert.Equal(t, tt.budget, result.Iterations)
			assert.Equal(t, core.CompletionMaxIterations, result.CompletionReason)
			assert.Len(t, result.AllResults, tt.budget)
			assert.Equal(t, fmt.Sprintf("attempt %d", tt.budget), result.Text)
		})
	}
}

func TestLoopStopsWhenVerified(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 5
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			if v.Iteration == 2 {
				return core.VerificationOutcome{Complete: true, Reason: "done"}, nil
			}
			return core.VerificationOutcome{}, nil
		})
	})

	result, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	assert.Equal(t, 2, eng.completeCalls())
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, core.CompletionVerified, result.CompletionReason)
	assert.Equal(t, "done", result.Reason)
	assert.Equal(t, "attempt 2", result.Text)
	assert.Len(t, result.AllResults, 2)
}

func TestLoopContinuationDirectivePlacement(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	require.Equal(t, 3, eng.completeCalls())
	assert.False(t, containsText(eng.completeReqs[0], continuationDirective))
	assert.True(t, containsText(eng.completeReqs[1], continuationDirective))
	assert.True(t, containsText(eng.completeReqs[2], continuationDirective))

	// The original prompt is present in every outbound message list.
	for _, req := range eng.completeReqs {
		assert.True(t, containsText(req, "Summarize X"))
	}
}

func TestLoopInjectsVerifierFeedback(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 2
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			return core.VerificationOutcome{Complete: false, Reason: "missing citations"}, nil
		})
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	require.Equal(t, 2, eng.completeCalls())
	assert.False(t, containsText(eng.completeReqs[0], "Feedback: missing citations"))
	assert.True(t, containsText(eng.completeReqs[1], "Feedback: missing citations"))

	// Feedback precedes the continuation directive in the second request.
	texts := messageTexts(eng.completeReqs[1])
	feedbackIdx, directiveIdx := -1, -1
	for i, text := range texts {
		if strings.Contains(text, "Feedback: missing citations") {
			feedbackIdx = i
		}
		if strings.Contains(text, continuationDirective) {
			directiveIdx = i
		}
	}
	require.NotEqual(t, -1, feedbackIdx)
	require.NotEqual(t, -1, directiveIdx)
	assert.Less(t, feedbackIdx, directiveIdx)
}

func TestLoopAbortedBeforeFirstIteration(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := a.Loop(ctx, "Summarize X")
	require.NoError(t, err)

	assert.Equal(t, 0, eng.completeCalls())
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, core.CompletionAborted, result.CompletionReason)
	assert.Nil(t, result.Result)
	assert.Empty(t, result.AllResults)
	assert.Empty(t, result.Text)
}

func TestLoopAbortedMidRunKeepsCompletedIterations(t *testing.T) {
	eng := newScriptedEngine()
	ctx, cancel := context.WithCancel(context.Background())

	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 5
		o.OnIterationEnd = func(ctx context.Context, info IterationEnd) error {
			if info.Iteration == 2 {
				cancel()
			}
			return nil
		}
	})

	result, err := a.Loop(ctx, "Summarize X")
	require.NoError(t, err)

	assert.Equal(t, 2, eng.completeCalls())
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, core.CompletionAborted, result.CompletionReason)
	assert.Equal(t, "attempt 2", result.Text)
}

func TestLoopEngineFailurePropagates(t *testing.T) {
	eng := newScriptedEngine()
	eng.failOn = 2

	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 4
	})

	result, err := a.Loop(context.Background(), "Summarize X")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "iteration 2")
	assert.Equal(t, 2, eng.completeCalls())
}

func TestLoopHookAndVerifierOrdering(t *testing.T) {
	eng := newScriptedEngine()

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 2
		o.OnIterationStart = func(ctx context.Context, info IterationStart) error {
			record(fmt.Sprintf("start %d", info.Iteration))
			return nil
		}
		o.OnIterationEnd = func(ctx context.Context, info IterationEnd) error {
			record(fmt.Sprintf("end %d", info.Iteration))
			assert.GreaterOrEqual(t, info.Duration, time.Duration(0))
			assert.NotNil(t, info.Result)
			return nil
		}
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			record(fmt.Sprintf("verify %d", v.Iteration))
			return core.VerificationOutcome{}, nil
		})
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start 1", "end 1", "verify 1",
		"start 2", "end 2", "verify 2",
	}, events)
}

func TestLoopHookFailureAbortsInvocation(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
		o.OnIterationStart = func(ctx context.Context, info IterationStart) error {
			if info.Iteration == 2 {
				return errors.New("hook exploded")
			}
			return nil
		}
	})

	result, err := a.Loop(context.Background(), "Summarize X")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "hook exploded")
	assert.Equal(t, 1, eng.completeCalls())
}

func TestLoopVerifierFailureAbortsInvocation(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			return core.VerificationOutcome{}, errors.New("verifier exploded")
		})
	})

	result, err := a.Loop(context.Background(), "Summarize X")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "verifier exploded")
}

func TestLoopVerifierReceivesFullHistory(t *testing.T) {
	eng := newScriptedEngine()

	var seen []*Verification
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 3
		o.Verifier = VerifierFunc(func(ctx context.Context, v *Verification) (core.VerificationOutcome, error) {
			seen = append(seen, v)
			return core.VerificationOutcome{}, nil
		})
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	require.Len(t, seen, 3)
	for i, v := range seen {
		assert.Equal(t, i+1, v.Iteration)
		assert.Len(t, v.AllResults, i+1)
		assert.Same(t, v.AllResults[i], v.Result)
		assert.Equal(t, "Summarize X", v.Prompt)
	}
}

func TestLoopLogsRenderWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelDebug,
		Format: "text",
		Output: &buf,
	})

	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 2
		o.Logger = logger
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=loop.start")
	assert.Contains(t, out, "msg=loop.iteration.start")
	assert.Contains(t, out, "msg=loop.end")
	assert.Contains(t, out, "agent=worker")
	assert.Contains(t, out, "iterations=2")
	assert.NotContains(t, out, "%!")
}

func TestLoopSystemMessagesFixedAcrossIterations(t *testing.T) {
	eng := newScriptedEngine()
	a := New("worker", eng, func(o *Options) {
		o.MaxIterations = 2
		o.Instructions = InstructionsFromText("You are a careful researcher.")
	})

	_, err := a.Loop(context.Background(), "Summarize X")
	require.NoError(t, err)

	require.Equal(t, 2, eng.completeCalls())
	for _, req := range eng.completeReqs {
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "You are a careful researcher.", req.Messages[0].Text())
	}
}
