package core

// CompletionReason classifies why a loop invocation terminated.
type CompletionReason string

const (
	// CompletionVerified indicates the verification predicate reported the
	// task complete before the iteration budget was exhausted.
	CompletionVerified CompletionReason = "verified"

	// CompletionMaxIterations indicates the iteration budget was spent
	// without the verifier (if any) reporting completion.
	CompletionMaxIterations CompletionReason = "max-iterations"

	// CompletionAborted indicates the caller cancelled the invocation.
	CompletionAborted CompletionReason = "aborted"
)

// VerificationOutcome is the verification predicate's decision for a single
// iteration. It is consumed immediately and never persisted.
type VerificationOutcome struct {
	Complete bool   `json:"complete"`         // True terminates the loop with CompletionVerified
	Reason   string `json:"reason,omitempty"` // Completion reason, or feedback when not complete
}

// LoopResult is the terminal output of a blocking loop invocation. It is
// created once by Finalize and treated as immutable thereafter.
type LoopResult struct {
	Text             string             `json:"text"`             // Final text of the last completed iteration
	Iterations       int                `json:"iterations"`       // Number of completed iterations
	CompletionReason CompletionReason   `json:"completionReason"` // Why the loop stopped
	Reason           string             `json:"reason,omitempty"` // Verifier-supplied reason, when verified
	Result           *IterationRecord   `json:"result"`           // Last completed iteration, nil if none ran
	AllResults       []*IterationRecord `json:"allResults"`       // All completed iterations, index 0 = first
}

// Finalize assembles the LoopResult once the loop has terminated. It is a
// pure function of the accumulated records and the terminal classification.
//
// When no iteration completed (cancellation before the first engine call),
// the result is a distinguished empty variant: zero Text and a nil Result.
func Finalize(
	allResults []*IterationRecord,
	iterations int,
	completionReason CompletionReason,
	reason string,
) *LoopResult {
	result := &LoopResult{
		Iterations:       iterations,
		CompletionReason: completionReason,
		Reason:           reason,
		AllResults:       allResults,
	}

	if len(allResults) > 0 {
		last := allResults[len(allResults)-1]
		result.Result = last
		result.Text = last.Text
	}

	return result
}
