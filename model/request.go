//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package model

import "trpc.group/trpc-go/trpc-toolmesh-go/tool"

// Role represents the role of a message author.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents one entry of the conversation history.
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`
	// Content is the text content.
	Content string `json:"content"`
	// ToolID is the call id this message responds to, for tool messages.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the invoked tool's name, for tool messages.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls are the calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool call requested by the model.
type ToolCall struct {
	// Type is the call type, currently always "function".
	Type string `json:"type"`
	// Function carries the call target and serialized arguments.
	Function FunctionCall `json:"function"`
	// ID correlates the tool result message with this call.
	ID string `json:"id,omitempty"`
}

// FunctionCall is the target and arguments of a tool call.
type FunctionCall struct {
	// Name is the tool name as bound in the request.
	Name string `json:"name"`
	// Arguments is the raw JSON argument document.
	Arguments []byte `json:"arguments"`
}

// Request is a chat completion request.
type Request struct {
	// Messages is the conversation history, oldest first.
	Messages []Message `json:"messages"`
	// Tools are the tools bound to this request, keyed by name. The model
	// may call any of them.
	Tools map[string]tool.Tool `json:"-"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message for the given call id.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolID: toolID, ToolName: toolName, Content: content}
}
