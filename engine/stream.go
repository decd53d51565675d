package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/taskloop/core"
)

// Chunk is an incrementally delivered fragment of a streamed response.
type Chunk struct {
	Text         string           `json:"text,omitempty"`          // Text delta (may be empty on the final chunk)
	Done         bool             `json:"done"`                    // True on the terminal chunk
	FinishReason string           `json:"finish_reason,omitempty"` // Set on the terminal chunk
	Usage        *core.TokenUsage `json:"usage,omitempty"`         // Set on the terminal chunk when reported
}

// Stream is a live, incrementally consumable response handle. Producers (the
// engine adapters) push chunks via Send and finish with Close; consumers
// range over Chunks and read Err once the channel is closed.
type Stream struct {
	ch     chan Chunk
	mu     sync.Mutex
	closed bool
	err    error
}

// NewStream creates a stream with the given chunk buffer size.
func NewStream(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Stream{ch: make(chan Chunk, bufferSize)}
}

// Send delivers a chunk to the consumer. It blocks when the buffer is full
// and is a no-op after Close.
func (s *Stream) Send(ctx context.Context, chunk Chunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case s.ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the stream, recording the terminal error (nil on clean
// completion) and closing the chunk channel. Safe to call once.
func (s *Stream) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

// Chunks returns the read-only chunk channel. The channel is closed when the
// stream ends; check Err afterwards for the terminal error.
func (s *Stream) Chunks() <-chan Chunk {
	return s.ch
}

// Err returns the terminal error. Only meaningful after the chunk channel is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text drains the stream and returns the concatenated text. It is a
// convenience for callers that want streaming transport without incremental
// consumption.
func (s *Stream) Text(ctx context.Context) (string, error) {
	var b strings.Builder
	for {
		select {
		case chunk, ok := <-s.ch:
			if !ok {
				return b.String(), s.Err()
			}
			b.WriteString(chunk.Text)
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
}
