//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package embedder defines the text embedding interface used by the
// semantic tool index.
package embedder

import "context"

// Embedder converts text into dense vectors.
type Embedder interface {
	// GetEmbedding returns the embedding vector for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)
	// GetDimensions returns the dimensionality of produced vectors.
	GetDimensions() int
}
