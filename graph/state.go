//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "trpc.group/trpc-go/trpc-toolmesh-go/model"

// Run modes of a conversation turn.
const (
	// RunModeStart marks a fresh turn awaiting tool selection.
	RunModeStart = "start"
	// RunModeContinue marks a turn resumed after tool execution.
	RunModeContinue = "continue"
)

// State is the mutable conversation state carried across turns. It is not
// safe for concurrent use; sessions serialize access per conversation.
type State struct {
	// Messages is the conversation history, system message first.
	Messages []model.Message
	// SelectedTools are the tool names picked for the current turn, in
	// selection order.
	SelectedTools []string
	// UsedTools records tools already executed this turn. A tool runs at
	// most once per turn.
	UsedTools map[string]bool
	// RunMode is RunModeStart or RunModeContinue.
	RunMode string
	// Context accumulates tool outputs keyed by tool name. Later writes
	// win.
	Context map[string]any
}

// NewState creates an empty conversation state.
func NewState() *State {
	return &State{
		UsedTools: make(map[string]bool),
		RunMode:   RunModeStart,
		Context:   make(map[string]any),
	}
}

// BeginTurn resets per-turn bookkeeping and appends the user message.
func (s *State) BeginTurn(userMessage string) {
	s.SelectedTools = nil
	s.UsedTools = make(map[string]bool)
	s.RunMode = RunModeStart
	s.Messages = append(s.Messages, model.NewUserMessage(userMessage))
}

// SelectTools unions tool names into the turn's selection, preserving
// first-seen order.
func (s *State) SelectTools(names []string) {
	existing := make(map[string]bool, len(s.SelectedTools))
	for _, name := range s.SelectedTools {
		existing[name] = true
	}
	for _, name := range names {
		if !existing[name] {
			existing[name] = true
			s.SelectedTools = append(s.SelectedTools, name)
		}
	}
}

// LastUserMessage returns the content of the most recent user message.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == model.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}
