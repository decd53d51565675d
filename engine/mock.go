package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskloop/core"
)

// MockEngine is a lightweight in-memory Engine useful for tests & examples.
// It replies with canned completions keyed by the last message's text and
// records every request it receives.
type MockEngine struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	requests  []Request
	failWith  error
}

// NewMockEngine constructs a MockEngine.
func NewMockEngine(name string) *MockEngine {
	return &MockEngine{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input text.
func (m *MockEngine) AddResponse(input, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[input] = response
}

// FailWith makes every subsequent call return the given error. Pass nil to
// restore normal operation.
func (m *MockEngine) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Requests returns a copy of all requests received so far.
func (m *MockEngine) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Complete and Stream calls received.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockEngine) record(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.failWith != nil {
		return "", m.failWith
	}

	var inputText string
	if len(req.Messages) > 0 {
		inputText = req.Messages[len(req.Messages)-1].Text()
	}
	full := m.responses[inputText]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", inputText)
	}
	return full, nil
}

// Complete implements Engine; returns the canned completion as a single
// assistant message record.
func (m *MockEngine) Complete(ctx context.Context, req Request) (*core.IterationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	full, err := m.record(req)
	if err != nil {
		return nil, err
	}

	return &core.IterationRecord{
		ID:           core.NewID(),
		Text:         full,
		Messages:     []core.Content{core.NewTextContent("assistant", full)},
		FinishReason: "stop",
		Steps:        1,
		Duration:     time.Since(start),
	}, nil
}

// Stream implements Engine; emits the canned completion as per-rune chunks
// followed by a terminal chunk.
func (m *MockEngine) Stream(ctx context.Context, req Request) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := m.record(req)
	if err != nil {
		return nil, err
	}

	stream := NewStream(16)
	go func() {
		for _, r := range full {
			if err := stream.Send(ctx, Chunk{Text: string(r)}); err != nil {
				stream.Close(err)
				return
			}
		}
		if err := stream.Send(ctx, Chunk{Done: true, FinishReason: "stop"}); err != nil {
			stream.Close(err)
			return
		}
		stream.Close(nil)
	}()
	return stream, nil
}

// Info implements Engine.
func (m *MockEngine) Info() Info { return m.info }
