//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-toolmesh-go/model"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
)

// memoryTool records invocations and returns scripted results.
type memoryTool struct {
	declaration tool.Declaration
	result      any
	calls       []map[string]any
}

func (m *memoryTool) Declaration() *tool.Declaration { return &m.declaration }

func (m *memoryTool) Call(_ context.Context, args map[string]any) (any, error) {
	m.calls = append(m.calls, args)
	return m.result, nil
}

// mapCatalog is a Catalog over a fixed tool map.
type mapCatalog struct {
	tools []tool.CallableTool
}

func (c *mapCatalog) Lookup(name string) (tool.CallableTool, bool) {
	for _, t := range c.tools {
		if t.Declaration().Name == name {
			return t, true
		}
	}
	return nil, false
}

func (c *mapCatalog) ResolveName(name string) string {
	if _, ok := c.Lookup(name); ok {
		return name
	}
	return ""
}

func (c *mapCatalog) ListAll() []tool.CallableTool { return c.tools }

// sequenceModel replays scripted responses and records each request.
type sequenceModel struct {
	responses []*model.Response
	err       error
	requests  []*model.Request
}

func (m *sequenceModel) Info() model.Info { return model.Info{Name: "sequence"} }

func (m *sequenceModel) GenerateContent(_ context.Context, req *model.Request) (*model.Response, error) {
	m.requests = append(m.requests, cloneRequest(req))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage("done")}}}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

func cloneRequest(req *model.Request) *model.Request {
	tools := make(map[string]tool.Tool, len(req.Tools))
	for k, v := range req.Tools {
		tools[k] = v
	}
	return &model.Request{Messages: append([]model.Message(nil), req.Messages...), Tools: tools}
}

func toolCallResponse(id, name, args string) *model.Response {
	return &model.Response{Choices: []model.Choice{{
		Message: model.Message{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				ID:       id,
				Type:     "function",
				Function: model.FunctionCall{Name: name, Arguments: []byte(args)},
			}},
		},
	}}}
}

func textResponse(content string) *model.Response {
	return &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage(content)}}}
}

// fixedSelector returns the same names every turn.
type fixedSelector struct{ names []string }

func (s fixedSelector) Select(context.Context, string) []string { return s.names }

// countingSelector records how often selection runs.
type countingSelector struct {
	names []string
	calls int
}

func (s *countingSelector) Select(context.Context, string) []string {
	s.calls++
	return s.names
}

func TestRunHappyPath(t *testing.T) {
	weather := &memoryTool{
		declaration: tool.Declaration{Name: "get_weather", Description: "Fetch weather"},
		result:      map[string]any{"temp": 21.0, "sky": "clear"},
	}
	catalog := &mapCatalog{tools: []tool.CallableTool{weather}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "get_weather", `{"location":"Paris"}`),
		textResponse("It is 21C and clear in Paris."),
	}}
	g := New(catalog, llm, WithSelector(fixedSelector{names: []string{"get_weather"}}))
	state := NewState()

	reply, err := g.Run(context.Background(), state, "What's the weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, "It is 21C and clear in Paris.", reply)

	require.Len(t, weather.calls, 1)
	assert.Equal(t, map[string]any{"location": "Paris"}, weather.calls[0])

	// History: system, user, assistant(calls), tool, assistant.
	require.Len(t, state.Messages, 5)
	assert.Equal(t, model.RoleSystem, state.Messages[0].Role)
	toolMsg := state.Messages[3]
	assert.Equal(t, model.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolID)
	assert.Contains(t, toolMsg.Content, `"temp":21`)

	assert.True(t, state.UsedTools["get_weather"])
	assert.Equal(t, RunModeStart, state.RunMode)
	assert.Equal(t, weather.result, state.Context["get_weather"])
}

func TestRunFoldsTaggedErrorIntoHistory(t *testing.T) {
	slow := &memoryTool{
		declaration: tool.Declaration{Name: "slow_tool"},
		result:      "Subprocess Error: timed out after 2m0s",
	}
	catalog := &mapCatalog{tools: []tool.CallableTool{slow}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "slow_tool", `{}`),
		textResponse("The tool timed out, please retry later."),
	}}
	g := New(catalog, llm)
	state := NewState()

	reply, err := g.Run(context.Background(), state, "run the slow thing")
	require.NoError(t, err)
	assert.Equal(t, "The tool timed out, please retry later.", reply)

	toolMsg := state.Messages[3]
	assert.Equal(t, "Subprocess Error: timed out after 2m0s", toolMsg.Content)

	// The model saw the error on its second call.
	second := llm.requests[1]
	assert.Equal(t, "Subprocess Error: timed out after 2m0s", second.Messages[3].Content)

	// The failure counts as a use but never lands in the shared context.
	assert.True(t, state.UsedTools["slow_tool"])
	assert.NotContains(t, state.Context, "slow_tool")
}

func TestRunValidationErrorExcludedFromContext(t *testing.T) {
	picky := &memoryTool{
		declaration: tool.Declaration{Name: "picky_tool"},
		result:      "Tool Input Validation Error: tool picky_tool: missing required field host",
	}
	catalog := &mapCatalog{tools: []tool.CallableTool{picky}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "picky_tool", `{}`),
		textResponse("I need a host to proceed."),
	}}
	g := New(catalog, llm)
	state := NewState()

	_, err := g.Run(context.Background(), state, "run it")
	require.NoError(t, err)
	assert.NotContains(t, state.Context, "picky_tool")
}

func TestRunUnknownToolCall(t *testing.T) {
	catalog := &mapCatalog{}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ghost_tool", `{}`),
		textResponse("sorry"),
	}}
	g := New(catalog, llm)
	state := NewState()

	_, err := g.Run(context.Background(), state, "use the ghost")
	require.NoError(t, err)
	toolMsg := state.Messages[3]
	assert.Equal(t, model.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "Error: tool ghost_tool is not available")
}

func TestRunUsedToolsExcludedFromNextStep(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	trace := &memoryTool{declaration: tool.Declaration{Name: "traceroute"}, result: "hops"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping, trace}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ping", `{"host":"r1"}`),
		toolCallResponse("call_2", "ping", `{"host":"r1"}`),
		textResponse("done"),
	}}
	g := New(catalog, llm, WithSelector(fixedSelector{names: []string{"ping", "traceroute"}}))
	state := NewState()

	_, err := g.Run(context.Background(), state, "check r1")
	require.NoError(t, err)

	require.Len(t, llm.requests, 3)
	first := llm.requests[0]
	assert.Contains(t, first.Tools, "ping")
	assert.Contains(t, first.Tools, "traceroute")

	// After ping ran once it must not be offered again.
	second := llm.requests[1]
	assert.NotContains(t, second.Tools, "ping")
	assert.Contains(t, second.Tools, "traceroute")
}

func TestRunExhaustedSelectionNotWidened(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	nmap := &memoryTool{declaration: tool.Declaration{Name: "nmap"}, result: "ports"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping, nmap}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ping", `{"host":"r1"}`),
		textResponse("r1 is up"),
	}}
	g := New(catalog, llm, WithSelector(fixedSelector{names: []string{"ping"}}))

	_, err := g.Run(context.Background(), NewState(), "is r1 up?")
	require.NoError(t, err)

	require.Len(t, llm.requests, 2)
	assert.NotContains(t, llm.requests[0].Tools, "nmap")

	// Once the selection is used up the model gets no tools at all; the
	// unselected rest of the catalog must not leak in.
	second := llm.requests[1]
	assert.NotContains(t, second.Tools, "ping")
	assert.NotContains(t, second.Tools, "nmap")
	assert.Empty(t, second.Tools)
}

func TestRunSelectionRunsOncePerTurn(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	trace := &memoryTool{declaration: tool.Declaration{Name: "traceroute"}, result: "hops"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping, trace}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ping", `{}`),
		toolCallResponse("call_2", "traceroute", `{}`),
		textResponse("done"),
	}}
	sel := &countingSelector{names: []string{"ping", "traceroute"}}
	g := New(catalog, llm, WithSelector(sel))
	state := NewState()

	_, err := g.Run(context.Background(), state, "check r1")
	require.NoError(t, err)
	assert.Equal(t, 1, sel.calls, "selection must not rerun between tool rounds")

	_, err = g.Run(context.Background(), state, "and r2")
	require.NoError(t, err)
	assert.Equal(t, 2, sel.calls, "each user turn selects afresh")
}

func TestRunFallsBackToFullCatalog(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping}}
	llm := &sequenceModel{responses: []*model.Response{textResponse("hello")}}
	g := New(catalog, llm, WithSelector(fixedSelector{}))
	state := NewState()

	_, err := g.Run(context.Background(), state, "hi")
	require.NoError(t, err)
	assert.Contains(t, llm.requests[0].Tools, "ping")
}

func TestRunPinnedToolAlwaysOffered(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	delegate := &memoryTool{declaration: tool.Declaration{Name: "delegate_task"}, result: "ok"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping, delegate}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ping", `{}`),
		textResponse("done"),
	}}
	g := New(catalog, llm,
		WithSelector(fixedSelector{names: []string{"ping"}}),
		WithPinnedTools("delegate_task"),
	)

	_, err := g.Run(context.Background(), NewState(), "check r1")
	require.NoError(t, err)

	// The pinned tool rides along even though selection never picked it.
	for _, req := range llm.requests {
		assert.Contains(t, req.Tools, "delegate_task")
	}
}

func TestRunLLMErrorTerminates(t *testing.T) {
	catalog := &mapCatalog{}
	llm := &sequenceModel{err: errors.New("backend unavailable")}
	g := New(catalog, llm)
	state := NewState()

	reply, err := g.Run(context.Background(), state, "hello")
	require.NoError(t, err)
	assert.Contains(t, reply, "LLM Error:")
	assert.Contains(t, reply, "backend unavailable")
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, RunModeStart, state.RunMode)
}

func TestRunStepCeiling(t *testing.T) {
	loop := &memoryTool{declaration: tool.Declaration{Name: "loop_tool"}, result: "again"}
	catalog := &mapCatalog{tools: []tool.CallableTool{loop}}

	// A model that always calls the tool never terminates on its own.
	responses := make([]*model.Response, 0, 20)
	for i := 0; i < 20; i++ {
		responses = append(responses, toolCallResponse(fmt.Sprintf("call_%d", i), "loop_tool", `{}`))
	}
	llm := &sequenceModel{responses: responses}
	g := New(catalog, llm, WithMaxSteps(3))
	state := NewState()

	reply, err := g.Run(context.Background(), state, "loop forever")
	require.NoError(t, err)
	assert.Contains(t, reply, "maximum step limit of 3")
	assert.Len(t, llm.requests, 3)
}

func TestRunMultiTurnKeepsHistory(t *testing.T) {
	catalog := &mapCatalog{}
	llm := &sequenceModel{responses: []*model.Response{
		textResponse("first answer"),
		textResponse("second answer"),
	}}
	g := New(catalog, llm)
	state := NewState()

	_, err := g.Run(context.Background(), state, "first question")
	require.NoError(t, err)
	_, err = g.Run(context.Background(), state, "second question")
	require.NoError(t, err)

	// One system message, then alternating user/assistant pairs.
	require.Len(t, state.Messages, 5)
	assert.Equal(t, model.RoleSystem, state.Messages[0].Role)
	assert.Equal(t, "first question", state.Messages[1].Content)
	assert.Equal(t, "second answer", state.Messages[4].Content)
}

func TestRunResetsTurnBookkeeping(t *testing.T) {
	ping := &memoryTool{declaration: tool.Declaration{Name: "ping"}, result: "pong"}
	catalog := &mapCatalog{tools: []tool.CallableTool{ping}}
	llm := &sequenceModel{responses: []*model.Response{
		toolCallResponse("call_1", "ping", `{}`),
		textResponse("done"),
		textResponse("done again"),
	}}
	g := New(catalog, llm, WithSelector(fixedSelector{names: []string{"ping"}}))
	state := NewState()

	_, err := g.Run(context.Background(), state, "check")
	require.NoError(t, err)
	assert.True(t, state.UsedTools["ping"])

	_, err = g.Run(context.Background(), state, "thanks")
	require.NoError(t, err)
	assert.False(t, state.UsedTools["ping"], "used tools reset at turn start")
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(&mapCatalog{}, &sequenceModel{})
	_, err := g.Run(ctx, NewState(), "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderResult(t *testing.T) {
	assert.Equal(t, "plain", renderResult("plain"))
	assert.Equal(t, "", renderResult(nil))
	assert.Equal(t, `{"a":1}`, renderResult(map[string]any{"a": 1}))
	assert.Equal(t, "42", renderResult(42))
}
