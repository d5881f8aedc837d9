//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides tool interfaces shared by discovery, selection and
// the conversation graph.
package tool

import "context"

// Declaration is the discovered metadata for one tool.
type Declaration struct {
	// Name uniquely identifies the tool. Names are stable for the process
	// lifetime; cross-provider collisions are disambiguated by suffixing
	// the provider or agent name.
	Name string `json:"name"`
	// Description is free text used both for humans and for semantic
	// retrieval over the tool index.
	Description string `json:"description"`
	// InputSchema is the JSON-Schema object defining accepted arguments.
	// It may be nil for freeform tools.
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Tool is the minimal interface every tool exposes.
type Tool interface {
	// Declaration returns the tool's metadata.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with structured arguments.
//
// Call never surfaces provider failures as Go errors: every transport,
// validation or tool-reported failure is converted into a tagged string
// result (see the transport package for the tag set) so the conversation
// graph can fold it back into the message history. The error return is
// reserved for context cancellation and programming errors.
type CallableTool interface {
	Tool
	Call(ctx context.Context, args map[string]any) (any, error)
}
