//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the chat model abstraction the conversation graph
// drives. Tool declarations are bound per request so the model can emit
// structured tool calls.
package model

import "context"

// Info contains basic information about a model.
type Info struct {
	// Name is the model identifier sent to the backend.
	Name string
}

// Model is a chat completion backend.
type Model interface {
	// Info returns basic information about the model.
	Info() Info
	// GenerateContent produces one completion for the request.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)
}
