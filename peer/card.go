//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package peer discovers other agents, proxies their published skills as
// local tools, and publishes this process's own tools as an agent card.
package peer

import (
	"encoding/json"
	"net/http"
	"strings"

	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
)

// WellKnownPath is where agents publish their card.
const WellKnownPath = "/.well-known/agent.json"

// PeerAgentCard describes a remote agent and the skills it offers.
type PeerAgentCard struct {
	// Name identifies the agent. It becomes the suffix of proxied tool
	// names.
	Name string `json:"name"`
	// Description is free text about the agent.
	Description string `json:"description,omitempty"`
	// URL is the agent's message endpoint.
	URL string `json:"url"`
	// Version is the agent's self-reported version.
	Version string `json:"version,omitempty"`
	// Skills are the operations the agent accepts.
	Skills []Skill `json:"skills,omitempty"`
}

// Skill is one operation a peer agent offers.
type Skill struct {
	// ID is the stable skill identifier sent in invocations.
	ID string `json:"id"`
	// Name is the human-facing skill name.
	Name string `json:"name"`
	// Description is free text about the skill.
	Description string `json:"description,omitempty"`
	// Parameters is the JSON-Schema object for the skill's arguments. A
	// nil schema means the skill takes free text.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// BuildAgentCard publishes the given local tools as an agent card other
// agents can discover.
func BuildAgentCard(name, description, url string, tools []tool.CallableTool) *PeerAgentCard {
	card := &PeerAgentCard{
		Name:        name,
		Description: description,
		URL:         SanitizeURL(url),
		Version:     "1.0.0",
	}
	for _, t := range tools {
		decl := t.Declaration()
		card.Skills = append(card.Skills, Skill{
			ID:          decl.Name,
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  decl.InputSchema,
		})
	}
	return card
}

// CardHandler serves the card as JSON for the well-known endpoint.
func CardHandler(card *PeerAgentCard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(card)
	})
}

// SanitizeURL normalizes a peer URL: zero-width runes that sneak in from
// chat transcripts are stripped, whitespace is trimmed, a missing scheme
// defaults to http, and trailing slashes are removed.
func SanitizeURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if !strings.Contains(cleaned, "://") {
		cleaned = "http://" + cleaned
	}
	return strings.TrimRight(cleaned, "/")
}

// suffixName builds the registered name of a proxied skill. Agent names
// are flattened so the result stays a valid tool identifier.
func suffixName(skill, agent string) string {
	flat := strings.ToLower(strings.TrimSpace(agent))
	flat = strings.NewReplacer(" ", "-", "/", "-").Replace(flat)
	return skill + "__" + flat
}
