//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package selector narrows the tool catalog to the handful of tools
// relevant to one user request.
//
// Selection runs in two stages: semantic retrieval over the tool index,
// then an LLM pass that prunes the retrieved candidates down to the tools
// actually needed. Selection is best effort; any failure yields an empty
// selection and the conversation proceeds with the full catalog.
package selector

import (
	"context"
	"strings"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/model"
	"trpc.group/trpc-go/trpc-toolmesh-go/registry"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
)

// Retrieval defaults.
const (
	// DefaultK is how many candidates semantic retrieval returns.
	DefaultK = 35
	// DefaultThreshold is the minimum similarity score to keep a candidate.
	DefaultThreshold = 0.50
	// DefaultFallbackTopN caps the candidate list when nothing clears the
	// threshold.
	DefaultFallbackTopN = 15
)

// noneReply is the refinement model's way of saying no tool applies.
const noneReply = "none"

const refinementPrompt = `You are a tool selection assistant. Given a user request and a list of available tools, reply with a comma-separated list of the names of the tools needed to fulfill the request. Reply with the word None if no listed tool applies. Reply with tool names only, no explanations.`

// Catalog is the registry surface the selector needs.
type Catalog interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]registry.Scored, error)
	ResolveName(name string) string
	Lookup(name string) (tool.CallableTool, bool)
}

// Selector picks relevant tools for a user request.
type Selector struct {
	catalog      Catalog
	llm          model.Model
	k            int
	threshold    float64
	fallbackTopN int
}

// Option configures the Selector.
type Option func(*Selector)

// WithK sets the semantic retrieval candidate count.
func WithK(k int) Option {
	return func(s *Selector) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithThreshold sets the minimum similarity score.
func WithThreshold(threshold float64) Option {
	return func(s *Selector) {
		s.threshold = threshold
	}
}

// WithFallbackTopN sets the candidate cap used when no retrieval hit
// clears the threshold.
func WithFallbackTopN(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.fallbackTopN = n
		}
	}
}

// New creates a selector over the catalog, refined by the given model.
func New(catalog Catalog, llm model.Model, opts ...Option) *Selector {
	s := &Selector{
		catalog:      catalog,
		llm:          llm,
		k:            DefaultK,
		threshold:    DefaultThreshold,
		fallbackTopN: DefaultFallbackTopN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the names of tools relevant to the user message. An
// empty result means no narrowing could be established; it is never an
// error.
func (s *Selector) Select(ctx context.Context, userMessage string) []string {
	if strings.TrimSpace(userMessage) == "" {
		return nil
	}

	hits, err := s.catalog.SimilaritySearch(ctx, userMessage, s.k)
	if err != nil {
		log.Warnf("selector: semantic retrieval failed, skipping selection: %v", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	candidates := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= s.threshold {
			candidates = append(candidates, hit.Name)
		}
	}
	if len(candidates) == 0 {
		// Nothing cleared the bar; keep the best few anyway so the
		// refinement model still has material to work with.
		n := s.fallbackTopN
		if n > len(hits) {
			n = len(hits)
		}
		for _, hit := range hits[:n] {
			candidates = append(candidates, hit.Name)
		}
	}

	return s.refine(ctx, userMessage, candidates)
}

// refine asks the LLM which candidates the request actually needs.
func (s *Selector) refine(ctx context.Context, userMessage string, candidates []string) []string {
	response, err := s.llm.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(refinementPrompt),
			model.NewUserMessage(s.buildRefinementInput(userMessage, candidates)),
		},
	})
	if err != nil {
		log.Warnf("selector: refinement call failed, skipping selection: %v", err)
		return nil
	}
	if response.Error != nil {
		log.Warnf("selector: refinement model error, skipping selection: %s", response.Error.Message)
		return nil
	}
	if len(response.Choices) == 0 {
		return nil
	}
	return s.parseReply(response.Choices[0].Message.Content, candidates)
}

func (s *Selector) buildRefinementInput(userMessage string, candidates []string) string {
	var b strings.Builder
	b.WriteString("User request:\n")
	b.WriteString(userMessage)
	b.WriteString("\n\nAvailable tools:\n")
	for _, name := range candidates {
		b.WriteString("- ")
		b.WriteString(name)
		if t, ok := s.catalog.Lookup(name); ok {
			b.WriteString(": ")
			b.WriteString(t.Declaration().Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseReply turns the model's comma-separated answer into resolved tool
// names. Names outside the candidate list are dropped, including names
// that exist in the catalog but were never offered to the model.
func (s *Selector) parseReply(reply string, candidates []string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, noneReply) {
		return nil
	}

	offered := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		offered[name] = true
	}

	var selected []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(reply, ",") {
		name := strings.Trim(strings.TrimSpace(part), "`'\".")
		if name == "" || strings.EqualFold(name, noneReply) {
			continue
		}
		resolved := s.catalog.ResolveName(name)
		if resolved == "" || !offered[resolved] {
			log.Warnf("selector: model selected %q outside the candidate list, discarding", name)
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		selected = append(selected, resolved)
	}
	return selected
}
