// Package anthropic provides an engine implementation backed by the
// Anthropic Messages API, including the internal tool-use step loop for
// blocking calls and token streaming for the final iteration.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/taskloop/core"
	"github.com/hupe1980/taskloop/engine"
	"github.com/hupe1980/taskloop/tool"
)

// Options configures the Anthropic engine adapter (model id, max tokens,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Engine wraps the Anthropic Messages API behind the generic engine.Engine interface.
type Engine struct {
	client *anthropic.Client
	opts   Options

	// send overrides the Messages API call in tests.
	send func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

func (e *Engine) newMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if e.send != nil {
		return e.send(ctx, params)
	}
	return e.client.Messages.New(ctx, params)
}

// NewEngine creates a new Anthropic engine using the official client.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Engine{
		client: &client,
		opts:   opts,
	}
}

// NewEngineFromClient creates a new Anthropic engine from an existing client.
func NewEngineFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		client: client,
		opts:   opts,
	}
}

// Complete implements engine.Engine. It runs the Messages API with the
// internal tool-use loop: while the model stops on tool_use and the step
// budget allows, requested tools are executed and their results fed back.
// Tool execution failures are surfaced to the model as error results; API
// failures fail the whole call with no partial record.
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

		resp, err := e.newMessage(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic api error: %w", err)
		}

		steps++

		usage.PromptTokens += int(resp.Usage.InputTokens)
		usage.CompletionTokens += int(resp.Usage.OutputTokens)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		parts, calls := partsFromResponse(resp)
		produced = append(produced, core.Content{Role: "assistant", Parts: parts})

		text = responseText(resp)
		finish = string(resp.StopReason)

		if resp.StopReason != anthropic.StopReasonToolUse || len(calls) == 0 {
			break
		}

		resultBlocks, responseParts := e.executeTools(ctx, req, calls)
		produced = append(produced, core.Content{Role: "tool", Parts: responseParts})

		params.Messages = append(params.Messages, resp.ToParam(), anthropic.NewUserMessage(resultBlocks...))
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
// pass; no tool-use loop is run.
func (e *Engine) Stream(ctx context.Context, req engine.Request) (*engine.Stream, error) {
	params := e.buildParams(req)

	sseStream := e.client.Messages.NewStreaming(ctx, params)
	if sseStream == nil {
		return nil, fmt.Errorf("anthropic stream failed: no stream returned")
	}

	out := engine.NewStream(32)

	go func() {
		defer sseStream.Close()

		var (
			finish string
			usage  core.TokenUsage
		)

		for sseStream.Next() {
			event := sseStream.Current()

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if err := out.Send(ctx, engine.Chunk{Text: delta.Text}); err != nil {
						out.Close(err)
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				finish = string(ev.Delta.StopReason)
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			}
		}

		if err := sseStream.Err(); err != nil {
			out.Close(fmt.Errorf("anthropic streaming error: %w", err))
			return
		}

		if err := out.Send(ctx, engine.Chunk{Done: true, FinishReason: finish, Usage: &usage}); err != nil {
			out.Close(err)
			return
		}

		out.Close(nil)
	}()

	return out, nil
}

// executeTools runs the requested tool calls against the request's
// capability set. Failures become error result blocks so the model can
// recover within its step loop.
func (e *Engine) executeTools(
	ctx context.Context,
	req engine.Request,
	calls []core.FunctionCall,
) ([]anthropic.ContentBlockParamUnion, []core.Part) {
	var (
		blocks []anthropic.ContentBlockParamUnion
		parts  []core.Part
	)

	for _, call := range calls {
		result, err := runTool(ctx, req.FindTool(call.Name), call)

		response := core.FunctionResponse{ID: call.ID, Name: call.Name}
		if err != nil {
			response.Error = err.Error()
			blocks = append(blocks, anthropic.NewToolResultBlock(call.ID, err.Error(), true))
		} else {
			response.Response = result
			blocks = append(blocks, anthropic.NewToolResultBlock(call.ID, result, false))
		}

		parts = append(parts, core.FunctionResponsePart{FunctionResponse: response})
	}

	return blocks, parts
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

// partsFromResponse converts the response content blocks to core parts and
// collects the tool calls the model requested.
func partsFromResponse(resp *anthropic.Message) ([]core.Part, []core.FunctionCall) {
	var (
		parts []core.Part
		calls []core.FunctionCall
	)

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			call := core.FunctionCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: call})
			calls = append(calls, call)
		}
	}

	return parts, calls
}

// responseText concatenates the response's text blocks.
func responseText(resp *anthropic.Message) string {
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.AsText().Text
		}
	}
	return out
}

// buildParams assembles the Messages API parameters from the request.
// Sampling fields the API does not support (penalties, seed) are ignored.
func (e *Engine) buildParams(req engine.Request) anthropic.MessageNewParams {
	maxTokens := e.opts.MaxTokens
	if req.Sampling.MaxTokens > 0 {
		maxTokens = req.Sampling.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     e.opts.Model,
		Messages:  buildMessages(req.Messages),
		MaxTokens: maxTokens,
	}

	if req.Sampling.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Sampling.Temperature)
	}
	if req.Sampling.TopP != nil {
		params.TopP = anthropic.Float(*req.Sampling.TopP)
	}
	if len(req.Sampling.Stop) > 0 {
		params.StopSequences = req.Sampling.Stop
	}

	if systemBlocks := extractSystemMessage(req.Messages); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildMessages converts taskloop contents to Anthropic message format.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	// Track tool responses for proper ordering
	toolResponses := make(map[string]string)
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if respStr, ok := fr.FunctionResponse.Response.(string); ok {
				toolResponses[fr.FunctionResponse.ID] = respStr
			} else {
				toolResponses[fr.FunctionResponse.ID] = fmt.Sprintf("%v", fr.FunctionResponse.Response)
			}
		}
	}

	for _, c := range contents {
		if c.Role == "system" || c.Role == "tool" {
			continue // System messages handled separately, tool responses embedded
		}

		switch c.Role {
		case "assistant":
			content := buildAssistantContent(c.Parts, toolResponses)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			// User plus unknown roles map to user messages
			content := buildUserContent(c.Parts)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}

	return messages
}

// extractSystemMessage extracts system message blocks.
func extractSystemMessage(contents []core.Content) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, c := range contents {
		if c.Role != "system" {
			continue
		}
		for _, p := range c.Parts {
			if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
					Text: tp.Text,
				})
			}
		}
	}

	return systemBlocks
}

// buildUserContent builds content for user messages.
func buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			content = append(content, anthropic.NewTextBlock(tp.Text))
		}
	}

	return content
}

// buildAssistantContent builds content for assistant messages, embedding
// matching tool results immediately after tool calls.
func buildAssistantContent(
	parts []core.Part,
	toolResponses map[string]string,
) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	var toolCallIDs []string

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input interface{}
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = part.FunctionCall.Arguments // fallback to string
				}
			}

			content = append(content, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))
			toolCallIDs = append(toolCallIDs, part.FunctionCall.ID)
		}
	}

	for _, id := range toolCallIDs {
		if resp, ok := toolResponses[id]; ok {
			content = append(content, anthropic.NewToolResultBlock(id, resp, false))
			delete(toolResponses, id)
		}
	}

	return content
}

// buildTools converts taskloop tools to Anthropic tool format.
func buildTools(tools []tool.Tool) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := t.Parameters(); params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := params["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqInterface, ok := required.([]interface{}); ok {
					var reqStrings []string
					for _, r := range reqInterface {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name())
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic engine implementation.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:     string(e.opts.Model),
		Provider: "anthropic",
	}
}
