//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package transport executes single JSON-RPC exchanges against tool
// providers over subprocess stdio, container exec, or HTTP.
//
// Every failure crossing the invocation boundary is a *TaggedError whose
// message starts with one of a small fixed set of prefixes. Callers
// classify failures by prefix without re-parsing:
//
//	Error:                        generic transport/protocol failure
//	Tool Error:                   the provider itself reported an error
//	Subprocess Error:             non-zero exit, spawn failure, timeout
//	Critical Framework Error:     recovered panic at the boundary
//	Tool Input Validation Error:  arguments rejected by a tool validator
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fixed error tag prefixes. The trailing colon is part of the contract.
const (
	TagError      = "Error:"
	TagTool       = "Tool Error:"
	TagSubprocess = "Subprocess Error:"
	TagCritical   = "Critical Framework Error:"
	TagValidation = "Tool Input Validation Error:"
)

// DefaultTimeout bounds a single provider exchange when the transport is
// not configured otherwise.
const DefaultTimeout = 120 * time.Second

// TaggedError is a provider failure carrying its classification tag.
type TaggedError struct {
	Tag     string
	Message string
}

// Error renders the tagged form callers match by prefix.
func (e *TaggedError) Error() string {
	return e.Tag + " " + e.Message
}

// Tagged creates a TaggedError with the given tag and printf-style message.
func Tagged(tag, format string, args ...any) *TaggedError {
	return &TaggedError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

var errorTags = []string{TagTool, TagSubprocess, TagCritical, TagValidation, TagError}

// HasErrorTag reports whether the string starts with one of the error
// tag prefixes, i.e. whether it is a rendered provider failure.
func HasErrorTag(s string) bool {
	for _, tag := range errorTags {
		if strings.HasPrefix(s, tag) {
			return true
		}
	}
	return false
}

// Transport issues exactly one JSON-RPC request against one provider and
// returns the parsed result payload.
type Transport interface {
	// Name identifies the provider for logging.
	Name() string
	// Call sends one request and decodes one response. The returned error
	// is always a *TaggedError for provider-side failures; the result is
	// the decoded "result" payload on success.
	Call(ctx context.Context, method string, params any) (any, error)
}

// CallTool invokes a tool through the transport using the provider's call
// method, applying the argument normalization quirks the wrapped tools
// require.
func CallTool(ctx context.Context, t Transport, callMethod, toolName string, args map[string]any) (any, error) {
	return t.Call(ctx, callMethod, map[string]any{
		"name":      toolName,
		"arguments": NormalizeArguments(toolName, args),
	})
}

// NormalizeArguments applies per-tool argument fixups before dispatch.
// create_or_update_file rejects an explicit null sha, so it is stripped;
// the provider then treats the call as a create.
func NormalizeArguments(toolName string, args map[string]any) map[string]any {
	if toolName != "create_or_update_file" {
		return args
	}
	if sha, present := args["sha"]; !present || sha != nil {
		return args
	}
	normalized := make(map[string]any, len(args))
	for k, v := range args {
		if k == "sha" {
			continue
		}
		normalized[k] = v
	}
	return normalized
}
