//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process vector store over cosine
// similarity. The tool index is small and rebuilt at startup, so nothing
// is persisted.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Document is one indexed entry.
type Document struct {
	// ID identifies the document, unique within the store.
	ID string
	// Content is the indexed text, kept for debugging and re-ranking.
	Content string
	// Vector is the embedding of Content.
	Vector []float64
}

// ScoredDocument is a search hit with its cosine similarity score.
type ScoredDocument struct {
	Document *Document
	Score    float64
}

// Store holds documents in memory and answers nearest-neighbor queries.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
	// order preserves insertion order for deterministic tie-breaking.
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Add inserts or replaces a document.
func (s *Store) Add(_ context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if len(doc.Vector) == 0 {
		return fmt.Errorf("document %s has no vector", doc.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search returns up to k documents most similar to the query vector,
// ordered by descending score. Ties keep insertion order.
func (s *Store) Search(_ context.Context, query []float64, k int) ([]*ScoredDocument, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]*ScoredDocument, 0, len(s.docs))
	for _, id := range s.order {
		doc := s.docs[id]
		score, err := cosineSimilarity(query, doc.Vector)
		if err != nil {
			return nil, fmt.Errorf("score document %s: %w", id, err)
		}
		scored = append(scored, &ScoredDocument{Document: doc, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
