package agent

import (
	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/engine"
	"github.com/hupe1980/taskloop/logging"
	"github.com/hupe1980/taskloop/tool"
)

// continuationDirective is appended to the outbound message list for every
// iteration after the first.
const continuationDirective = "Continue working on the task. The previous attempt was not complete."

// feedbackPrefix introduces verifier feedback injected into the conversation.
const feedbackPrefix = "Feedback: "

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Instructions     Instructions
	Tools            []tool.Tool
	MaxIterations    int
	MaxSteps         int
	Sampling         engine.Sampling
	Verifier         Verifier
	OnIterationStart IterationStartHook
	OnIterationEnd   IterationEndHook
	Logger           logging.Logger
}

// Agent is the immutable loop configuration plus the engine handle. All
// fields are fixed at construction; one Agent instance may serve concurrent
// Loop and Stream invocations because nothing here is ever mutated and every
// invocation owns its own conversation state.
type Agent struct {
	name             string
	engine           engine.Engine
	system           []core.Content // Normalized system messages, fixed for every invocation
	tools            []tool.Tool
	maxIterations    int
	maxSteps         int
	sampling         engine.Sampling
	verifier         Verifier
	onIterationStart IterationStartHook
	onIterationEnd   IterationEndHook
	logger           logging.Logger
}

// New creates an agent around an engine with sensible defaults.
//
// Default configuration:
//   - 10 iteration budget
//   - 20 step budget for the engine's internal tool-use loop
//   - No verifier (the loop always runs to the budget)
//   - No lifecycle hooks
//   - NoOp logger
func New(name string, eng engine.Engine, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxIterations: 10,
		MaxSteps:      20,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.MaxSteps < 1 {
		opts.MaxSteps = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Agent{
		name:             name,
		engine:           eng,
		system:           opts.Instructions.SystemMessages(),
		tools:            opts.Tools,
		maxIterations:    opts.MaxIterations,
		maxSteps:         opts.MaxSteps,
		sampling:         opts.Sampling,
		verifier:         opts.Verifier,
		onIterationStart: opts.OnIterationStart,
		onIterationEnd:   opts.OnIterationEnd,
		logger:           opts.Logger,
	}
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Engine returns the configured engine handle.
func (a *Agent) Engine() engine.Engine { return a.engine }

// MaxIterations returns the configured iteration budget.
func (a *Agent) MaxIterations() int { return a.maxIterations }

// buildMessages assembles the outbound message list for one engine call:
// system messages, the single original-prompt message, the accumulated
// conversation, and optionally the continuation directive.
func (a *Agent) buildMessages(prompt string, conv *core.Conversation, continuation bool) []core.Content {
	messages := make([]core.Content, 0, len(a.system)+conv.Len()+2)
	messages = append(messages, a.system...)
	messages = append(messages, core.NewTextContent("user", prompt))
	messages = append(messages, conv.Messages()...)
	if continuation {
		messages = append(messages, core.NewTextContent("user", continuationDirective))
	}
	return messages
}

// request packages the outbound message list with the agent's fixed sampling
// and tool configuration.
func (a *Agent) request(messages []core.Content) engine.Request {
	return engine.Request{
		Messages: messages,
		Tools:    a.tools,
		Sampling: a.sampling,
		MaxSteps: a.maxSteps,
	}
}
