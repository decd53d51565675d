// Package openai provides an engine implementation backed by the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts taskloop's normalized request shape into the SDK's message format,
// runs the internal tool-use step loop for blocking calls and streams text
// deltas for the final iteration.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/engine"
	"github.com/hupe1980/taskloop/tool"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI engine adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	MaxCompletionTokens int64
}

// Engine wraps the OpenAI Chat Completions API behind the generic engine.Engine interface.
type Engine struct {
	client *openai.Client
	opts   Options

	// create overrides the Chat Completions API call in tests.
	create func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func (e *Engine) newCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if e.create != nil {
		return e.create(ctx, params)
	}
	return e.client.Chat.Completions.New(ctx, params)
}

// NewEngine creates a new OpenAI engine using the official client.
func NewEngine(optFns ...func(o *Options)) *Engine {
	client := openai.NewClient()
	return NewEngineFromClient(&client, optFns...)
}

// NewEngineFromClient creates a new OpenAI engine from an existing client.
func NewEngineFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, opts: opts}
}

// Complete implements engine.Engine. It runs the Chat Completions API with
// the internal tool-use loop: while the model requests tool calls and the
// step budget allows, requested tools are executed and their results fed
// back. Tool execution failures are surfaced to the model as error results;
// API failures fail the whole call with no partial record.
func (e *Engine) Complete(ctx context.Context, req engine.Request) (*core.IterationRecord, error) {
	start := time.Now()

	params := e.buildParams(req)
	limiter := core.NewStepLimiter(req.MaxSteps)

	var (
		produced []core.Content
		usage    core.TokenUsage
		text     string
		finish   string
		steps    int
	)

	for {
		if err := limiter.Increment(); err != nil {
			// Step budget spent; return what the model produced so far.
			break
		}

		resp, err := e.newCompletion(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai api error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices returned")
		}

		steps++

		usage.PromptTokens += int(resp.Usage.PromptTokens)
		usage.CompletionTokens += int(resp.Usage.CompletionTokens)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		choice := resp.Choices[0]
		produced = append(produced, contentFromChoice(choice))

		text = choice.Message.Content
		finish = choice.FinishReason

		if choice.FinishReason != "tool_calls" || len(choice.Message.ToolCalls) == 0 {
			break
		}

		params.Messages = append(params.Messages, choice.Message.ToParam())

		var responseParts []core.Part
		for _, tc := range choice.Message.ToolCalls {
			call := core.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			result, err := runTool(ctx, req.FindTool(call.Name), call)

			response := core.FunctionResponse{ID: call.ID, Name: call.Name}
			if err != nil {
				response.Error = err.Error()
				params.Messages = append(params.Messages, openai.ToolMessage(err.Error(), call.ID))
			} else {
				response.Response = result
				params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
			}

			responseParts = append(responseParts, core.FunctionResponsePart{FunctionResponse: response})
		}

		produced = append(produced, core.Content{Role: "tool", Parts: responseParts})
	}

	return &core.IterationRecord{
		ID:           core.NewID(),
		Text:         text,
		Messages:     produced,
		FinishReason: finish,
		Steps:        steps,
		Usage:        &usage,
		Duration:     time.Since(start),
	}, nil
}

// Stream implements engine.Engine. It performs a single streaming generation
// pass forwarding text deltas; no tool-use loop is run.
func (e *Engine) Stream(ctx context.Context, req engine.Request) (*engine.Stream, error) {
	params := e.buildParams(req)

	sseStream := e.client.Chat.Completions.NewStreaming(ctx, params)
	if sseStream == nil {
		return nil, fmt.Errorf("openai stream failed: no stream returned")
	}

	out := engine.NewStream(32)

	go func() {
		defer sseStream.Close()

		var finish string

		for sseStream.Next() {
			ck := sseStream.Current()
			for _, choice := range ck.Choices {
				if choice.Delta.Content != "" {
					if err := out.Send(ctx, engine.Chunk{Text: choice.Delta.Content}); err != nil {
						out.Close(err)
						return
					}
				}
				if choice.FinishReason != "" {
					finish = choice.FinishReason
				}
			}
		}

		if err := sseStream.Err(); err != nil {
			out.Close(fmt.Errorf("openai streaming error: %w", err))
			return
		}

		if err := out.Send(ctx, engine.Chunk{Done: true, FinishReason: finish}); err != nil {
			out.Close(err)
			return
		}

		out.Close(nil)
	}()

	return out, nil
}

// runTool executes a single tool call returning its serialized result.
func runTool(ctx context.Context, t tool.Tool, call core.FunctionCall) (string, error) {
	if t == nil {
		return "", fmt.Errorf("tool %s not found", call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		return "", err
	}

	if s, ok := result.(string); ok {
		return s, nil
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool result: %w", err)
	}

	return string(serialized), nil
}

// contentFromChoice converts a completion choice to a core assistant message.
func contentFromChoice(choice openai.ChatCompletionChoice) core.Content {
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	return core.Content{Role: "assistant", Parts: parts}
}

// buildParams assembles the Chat Completions parameters from the request
// including tool definitions and sampling configuration.
func (e *Engine) buildParams(req engine.Request) openai.ChatCompletionNewParams {
	toolResponses, order := collectToolResponses(req.Messages)

	maxTokens := e.opts.MaxCompletionTokens
	if req.Sampling.MaxTokens > 0 {
		maxTokens = req.Sampling.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages, toolResponses, order),
		Model:               e.opts.Model,
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if req.Sampling.Temperature != nil {
		params.Temperature = openai.Float(*req.Sampling.Temperature)
	}
	if req.Sampling.TopP != nil {
		params.TopP = openai.Float(*req.Sampling.TopP)
	}
	if req.Sampling.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.Sampling.FrequencyPenalty)
	}
	if req.Sampling.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.Sampling.PresencePenalty)
	}
	if req.Sampling.Seed != nil {
		params.Seed = openai.Int(*req.Sampling.Seed)
	}
	if len(req.Sampling.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Sampling.Stop}
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  t.Parameters(),
			},
		}
	}
	params.Tools = tools

	return params
}

// collectToolResponses indexes tool (function) responses by id preserving first-seen order.
func collectToolResponses(contents []core.Content) (map[string]string, []string) {
	responses := map[string]string{}
	order := []string{}
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, exists := responses[fr.FunctionResponse.ID]; exists {
				continue
			}
			var text string
			if s, ok := fr.FunctionResponse.Response.(string); ok {
				text = s
			} else {
				text = fmt.Sprintf("%v", fr.FunctionResponse.Response)
			}
			responses[fr.FunctionResponse.ID] = text
			order = append(order, fr.FunctionResponse.ID)
		}
	}
	return responses, order
}

// buildMessages converts normalized contents into OpenAI chat messages while
// attaching matching tool responses immediately after assistant tool calls.
func buildMessages(
	contents []core.Content,
	toolResponses map[string]string,
	order []string,
) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, c := range contents {
		if c.Role == "tool" {
			continue
		}
		var textBuilder strings.Builder
		for _, p := range c.Parts {
			if tp, ok := p.(core.TextPart); ok {
				textBuilder.WriteString(tp.Text)
			}
		}
		text := textBuilder.String()
		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(text))
		case "user":
			messages = append(messages, openai.UserMessage(text))
		case "assistant":
			toolCalls, callIDs := extractToolCalls(c)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
			for _, id := range callIDs {
				if id == "" {
					continue
				}
				if resp, ok := toolResponses[id]; ok {
					messages = append(messages, openai.ToolMessage(resp, id))
					delete(toolResponses, id)
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := toolResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// extractToolCalls extracts tool call parts and returns OpenAI formatted tool calls + ordered IDs.
func extractToolCalls(c core.Content) ([]openai.ChatCompletionMessageToolCallParam, []string) {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   fc.FunctionCall.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      fc.FunctionCall.Name,
					Arguments: fc.FunctionCall.Arguments,
				},
			})
			callIDs = append(callIDs, fc.FunctionCall.ID)
		}
	}
	return toolCalls, callIDs
}

// Info returns metadata describing this OpenAI engine implementation.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:     e.opts.Model,
		Provider: "openai",
	}
}
