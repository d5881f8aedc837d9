//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package model

// Response is a chat completion response.
type Response struct {
	// ID is the backend's response identifier.
	ID string `json:"id,omitempty"`
	// Model is the model that produced the response.
	Model string `json:"model,omitempty"`
	// Choices holds the generated completions. The graph uses the first.
	Choices []Choice `json:"choices"`
	// Error is set when the backend reported a structured error.
	Error *ResponseError `json:"error,omitempty"`
}

// Choice is one generated completion.
type Choice struct {
	// Index is the position of the choice in the response.
	Index int `json:"index"`
	// Message is the generated assistant message, including any tool calls.
	Message Message `json:"message"`
	// FinishReason explains why generation stopped.
	FinishReason string `json:"finish_reason,omitempty"`
}

// ResponseError is a structured backend error.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}
