package core

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage captures token usage statistics reported by an engine.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IterationRecord is the engine's completed result for one loop iteration.
// Exactly one record exists per completed iteration; the controller appends
// them to the invocation's result list in iteration order.
type IterationRecord struct {
	ID           string        `json:"id"`                      // Unique record identifier
	Text         string        `json:"text"`                    // Final assistant text for the iteration
	Messages     []Content     `json:"messages"`                // Structured response messages incl. tool traffic
	FinishReason string        `json:"finish_reason,omitempty"` // Provider finish reason ("stop", "tool_use", ...)
	Steps        int           `json:"steps"`                   // Engine-internal tool-use steps consumed
	Usage        *TokenUsage   `json:"usage,omitempty"`
	Duration     time.Duration `json:"duration"` // Wall-clock time of the engine call
}

// NewID generates a new unique identifier for iteration records.
func NewID() string { return uuid.NewString() }
