//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package graph drives the tool-using conversation loop.
//
// Each turn flows through a small state machine: select tools for the
// request, ask the model, execute any tool calls it emits, fold the
// results back into the history, and ask again until the model answers
// in plain text. Failures never escape as Go errors; they are folded
// into the conversation as tagged messages so the model can react.
package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/model"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
	"trpc.group/trpc-go/trpc-toolmesh-go/transport"
)

// DefaultMaxSteps caps node transitions per turn so a model that keeps
// calling tools cannot loop forever.
const DefaultMaxSteps = 100

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Use the provided tools to answer the user's request. Answer in plain text once you have what you need."

// Catalog is the registry surface the graph needs.
type Catalog interface {
	Lookup(name string) (tool.CallableTool, bool)
	ResolveName(name string) string
	ListAll() []tool.CallableTool
}

// ToolSelector narrows the catalog for one user request.
type ToolSelector interface {
	Select(ctx context.Context, userMessage string) []string
}

// Graph is the conversation state machine. It is immutable after New and
// safe to share across sessions.
type Graph struct {
	catalog      Catalog
	llm          model.Model
	selector     ToolSelector
	systemPrompt string
	maxSteps     int
	pinned       []string
	tracer       trace.Tracer
}

// Option configures the Graph.
type Option func(*Graph)

// WithSelector enables per-turn tool selection.
func WithSelector(s ToolSelector) Option {
	return func(g *Graph) {
		g.selector = s
	}
}

// WithSystemPrompt overrides the system message content.
func WithSystemPrompt(prompt string) Option {
	return func(g *Graph) {
		g.systemPrompt = prompt
	}
}

// WithMaxSteps overrides the per-turn step ceiling.
func WithMaxSteps(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxSteps = n
		}
	}
}

// WithPinnedTools names tools that stay available every step regardless
// of selection, such as the delegation tool.
func WithPinnedTools(names ...string) Option {
	return func(g *Graph) {
		g.pinned = append(g.pinned, names...)
	}
}

// New creates a conversation graph over the catalog and model.
func New(catalog Catalog, llm model.Model, opts ...Option) *Graph {
	g := &Graph{
		catalog:      catalog,
		llm:          llm,
		systemPrompt: DefaultSystemPrompt,
		maxSteps:     DefaultMaxSteps,
		tracer:       otel.Tracer("toolmesh/graph"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes one conversation turn for the user message and returns the
// final assistant reply. The state is mutated in place so follow-up turns
// keep the history. The error return is reserved for context
// cancellation.
func (g *Graph) Run(ctx context.Context, state *State, userMessage string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "graph.run")
	defer span.End()

	state.BeginTurn(userMessage)
	g.ensureSystemMessage(state)

	for step := 0; step < g.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// RunMode routes the iteration: start runs tool selection for the
		// new turn, continue goes straight back to the assistant.
		if state.RunMode == RunModeStart {
			g.selectTools(ctx, state)
		}
		reply, done := g.assistantNode(ctx, state)
		if done {
			return reply, nil
		}
		g.toolsNode(ctx, state)
		g.handleToolResults(state)
	}

	log.Warnf("graph: step limit %d reached, terminating turn", g.maxSteps)
	limitMsg := fmt.Sprintf("%s maximum step limit of %d reached", transport.TagError, g.maxSteps)
	state.Messages = append(state.Messages, model.NewAssistantMessage(limitMsg))
	state.RunMode = RunModeStart
	return limitMsg, nil
}

// ensureSystemMessage keeps the configured system prompt at the head of
// the history.
func (g *Graph) ensureSystemMessage(state *State) {
	if len(state.Messages) > 0 && state.Messages[0].Role == model.RoleSystem {
		return
	}
	state.Messages = append([]model.Message{model.NewSystemMessage(g.systemPrompt)}, state.Messages...)
}

// selectTools unions the selector's picks into the turn state. Without a
// selector the whole catalog stays available.
func (g *Graph) selectTools(ctx context.Context, state *State) {
	if g.selector == nil {
		return
	}
	ctx, span := g.tracer.Start(ctx, "graph.select_tools")
	defer span.End()

	names := g.selector.Select(ctx, state.LastUserMessage())
	state.SelectTools(names)
	span.SetAttributes(attribute.Int("tools.selected", len(state.SelectedTools)))
	log.Debugf("graph: %d tools selected for turn", len(state.SelectedTools))
}

// assistantNode asks the model for the next step. It returns the final
// reply and true when the turn is complete.
func (g *Graph) assistantNode(ctx context.Context, state *State) (string, bool) {
	ctx, span := g.tracer.Start(ctx, "graph.assistant")
	defer span.End()

	response, err := g.llm.GenerateContent(ctx, &model.Request{
		Messages: state.Messages,
		Tools:    g.candidateTools(state),
	})
	if err != nil {
		return g.terminate(state, fmt.Sprintf("LLM Error: %v", err)), true
	}
	if response.Error != nil {
		return g.terminate(state, fmt.Sprintf("LLM Error: %s", response.Error.Message)), true
	}
	if len(response.Choices) == 0 {
		return g.terminate(state, "LLM Error: model returned no choices"), true
	}

	message := response.Choices[0].Message
	state.Messages = append(state.Messages, message)
	if len(message.ToolCalls) == 0 {
		state.RunMode = RunModeStart
		return message.Content, true
	}
	state.RunMode = RunModeContinue
	return "", false
}

// candidateTools returns the tools offered to the model this step. With
// a selection in place only its unused members are offered; an exhausted
// selection stays exhausted rather than widening to the catalog. The
// full unused catalog is the fallback for turns where no selection was
// made at all.
func (g *Graph) candidateTools(state *State) map[string]tool.Tool {
	candidates := make(map[string]tool.Tool)
	if len(state.SelectedTools) > 0 {
		for _, name := range state.SelectedTools {
			if state.UsedTools[name] {
				continue
			}
			if t, ok := g.catalog.Lookup(name); ok {
				candidates[name] = t
			}
		}
	} else {
		for _, t := range g.catalog.ListAll() {
			name := t.Declaration().Name
			if !state.UsedTools[name] {
				candidates[name] = t
			}
		}
	}
	for _, name := range g.pinned {
		if state.UsedTools[name] {
			continue
		}
		if t, ok := g.catalog.Lookup(name); ok {
			candidates[name] = t
		}
	}
	return candidates
}

// toolsNode executes the last assistant message's tool calls in order,
// appending one tool message per call.
func (g *Graph) toolsNode(ctx context.Context, state *State) {
	ctx, span := g.tracer.Start(ctx, "graph.tools")
	defer span.End()

	calls := state.Messages[len(state.Messages)-1].ToolCalls
	for _, call := range calls {
		content := g.executeCall(ctx, state, call)
		state.Messages = append(state.Messages,
			model.NewToolMessage(call.ID, call.Function.Name, content))
	}
}

// executeCall runs one tool call and renders its result for the history.
func (g *Graph) executeCall(ctx context.Context, state *State, call model.ToolCall) string {
	ctx, span := g.tracer.Start(ctx, "graph.tool_call",
		trace.WithAttributes(attribute.String("tool.name", call.Function.Name)))
	defer span.End()

	name := g.catalog.ResolveName(call.Function.Name)
	if name == "" {
		log.Warnf("graph: model called unknown tool %q", call.Function.Name)
		return fmt.Sprintf("%s tool %s is not available", transport.TagError, call.Function.Name)
	}
	t, _ := g.catalog.Lookup(name)

	args := make(map[string]any)
	if len(call.Function.Arguments) > 0 {
		if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
			return fmt.Sprintf("%s tool %s: malformed arguments: %v", transport.TagValidation, name, err)
		}
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		// Only cancellation and programming errors reach here.
		return fmt.Sprintf("%s tool %s: %v", transport.TagError, name, err)
	}

	state.UsedTools[name] = true
	rendered := renderResult(result)
	// Only successful results accumulate; tagged failures live in the
	// message history but never pollute the shared context.
	if !transport.HasErrorTag(rendered) {
		state.Context[name] = result
	}
	return rendered
}

// handleToolResults closes the tool phase. RunMode stays continue so the
// next iteration routes to the assistant instead of re-running selection.
func (g *Graph) handleToolResults(state *State) {
	state.RunMode = RunModeContinue
}

func (g *Graph) terminate(state *State, content string) string {
	log.Warnf("graph: terminating turn: %s", content)
	state.Messages = append(state.Messages, model.NewAssistantMessage(content))
	state.RunMode = RunModeStart
	return content
}

// renderResult flattens a tool result into message text. Tagged error
// strings pass through untouched so their prefix stays matchable.
func renderResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
