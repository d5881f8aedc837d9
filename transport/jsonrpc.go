//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Version is the JSON-RPC protocol version stamped on every request.
const Version = "2.0"

// Request is the JSON-RPC request envelope written to a provider.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is the JSON-RPC response envelope read back from a provider.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewRequest builds a request envelope with a fresh UUID id.
func NewRequest(method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
}

// Encode renders the request as a single newline-terminated JSON line.
func (r *Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeResponse extracts the JSON-RPC response from raw provider output.
//
// Providers log freely to the same stream the response travels on, so the
// payload is located by scanning lines from the end and taking the last
// one that starts with '{' or '[' and parses as JSON. An error member in
// the envelope becomes a Tool Error; output with no parseable JSON line
// becomes a generic Error.
//
// The decoded result is unwrapped pragmatically: a bare JSON array is the
// result itself, an object result with a "tools" member yields that list,
// and any other object is returned as-is.
func DecodeResponse(output []byte) (any, error) {
	line, ok := lastJSONLine(output)
	if !ok {
		return nil, Tagged(TagError, "no JSON response found in provider output")
	}

	// A bare array is already the payload. Tool listings from older
	// providers arrive this way.
	if strings.HasPrefix(line, "[") {
		var list []any
		if err := json.Unmarshal([]byte(line), &list); err != nil {
			return nil, Tagged(TagError, "malformed JSON response: %v", err)
		}
		return list, nil
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, Tagged(TagError, "malformed JSON response: %v", err)
	}
	if resp.Error != nil {
		return nil, Tagged(TagTool, "%s", resp.Error.Message)
	}
	if len(resp.Result) == 0 {
		// Not an envelope at all; treat the whole object as the result.
		var generic map[string]any
		if err := json.Unmarshal([]byte(line), &generic); err != nil {
			return nil, Tagged(TagError, "malformed JSON response: %v", err)
		}
		return generic, nil
	}

	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, Tagged(TagError, "malformed result payload: %v", err)
	}
	return result, nil
}

// UnwrapToolList extracts a tool declaration list from a decoded discovery
// result, accepting either a bare list or an object carrying a "tools"
// member.
func UnwrapToolList(result any) ([]any, bool) {
	switch v := result.(type) {
	case []any:
		return v, true
	case map[string]any:
		if list, ok := v["tools"].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

// lastJSONLine scans output lines from the end for the last line that
// starts with a JSON open bracket and parses as valid JSON.
func lastJSONLine(output []byte) (string, bool) {
	lines := strings.Split(string(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if line[0] != '{' && line[0] != '[' {
			continue
		}
		if json.Valid([]byte(line)) {
			return line, true
		}
	}
	return "", false
}
