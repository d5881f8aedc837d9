//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool/schema"
	"trpc.group/trpc-go/trpc-toolmesh-go/transport"
)

// DelegateToolName is the name of the always-available delegation tool.
const DelegateToolName = "delegate_task"

type sessionKey struct{}

// WithSessionID threads a conversation id into peer invocations so the
// remote agent can correlate follow-up messages.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// WrapSkills proxies every skill of the card as a callable tool. Tool
// names carry the agent name as a suffix; the returned alias map lets
// callers resolve the bare skill names too. Skills with a broken
// parameter schema are skipped with a warning.
func (c *Client) WrapSkills(card *PeerAgentCard) ([]tool.CallableTool, map[string]string) {
	var tools []tool.CallableTool
	aliases := make(map[string]string)
	for _, skill := range card.Skills {
		full := suffixName(skill.ID, card.Name)
		var desc *schema.Descriptor
		if len(skill.Parameters) > 0 {
			built, err := schema.Build(full, skill.Parameters)
			if err != nil {
				log.Warnf("peer: skipping skill %s of agent %s: %v", skill.ID, card.Name, err)
				continue
			}
			desc = built
		}
		tools = append(tools, &skillTool{
			client: c,
			card:   card,
			skill:  skill,
			desc:   desc,
			declaration: tool.Declaration{
				Name:        full,
				Description: fmt.Sprintf("%s (provided by agent %s)", skill.Description, card.Name),
				InputSchema: skill.Parameters,
			},
		})
		aliases[skill.ID] = full
	}
	return tools, aliases
}

// skillTool invokes one remote skill through the peer client.
type skillTool struct {
	client      *Client
	card        *PeerAgentCard
	skill       Skill
	desc        *schema.Descriptor
	declaration tool.Declaration
}

// Declaration implements tool.Tool.
func (t *skillTool) Declaration() *tool.Declaration {
	return &t.declaration
}

// Call implements tool.CallableTool. Remote failures come back as tagged
// string results.
func (t *skillTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if t.desc != nil {
		validated, err := t.desc.Validate(stripNulls(args))
		if err != nil {
			return transport.Tagged(transport.TagValidation, "skill %s: %v", t.declaration.Name, err).Error(), nil
		}
		args = validated
	}
	payload, err := json.Marshal(map[string]any{
		"skill":     t.skill.ID,
		"arguments": args,
	})
	if err != nil {
		return transport.Tagged(transport.TagError, "encode skill invocation: %v", err).Error(), nil
	}
	return deliver(ctx, t.client, t.card.URL, string(payload))
}

// DelegateTool creates the free-text delegation tool. It is always
// registered so the model can hand work to any reachable agent, even one
// whose skills were never proxied.
func DelegateTool(c *Client) tool.CallableTool {
	return &delegateTool{client: c}
}

type delegateTool struct {
	client *Client
}

// Declaration implements tool.Tool.
func (t *delegateTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        DelegateToolName,
		Description: "Delegate a task to another agent. Provide the agent's base URL and a plain-text description of the task.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_url": map[string]any{
					"type":        "string",
					"description": "Base URL of the agent to delegate to",
				},
				"task": map[string]any{
					"type":        "string",
					"description": "Plain-text description of the task",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Optional conversation id to continue on the remote agent",
				},
			},
			"required": []any{"agent_url", "task"},
		},
	}
}

// Call implements tool.CallableTool.
func (t *delegateTool) Call(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := args["agent_url"].(string)
	task, _ := args["task"].(string)
	if strings.TrimSpace(rawURL) == "" || strings.TrimSpace(task) == "" {
		return transport.Tagged(transport.TagValidation,
			"delegate_task requires agent_url and task").Error(), nil
	}
	if session, _ := args["session_id"].(string); session != "" {
		ctx = WithSessionID(ctx, session)
	}

	card := t.client.DiscoverAgent(ctx, rawURL)
	if card == nil {
		return transport.Tagged(transport.TagTool,
			"agent at %s is not reachable", SanitizeURL(rawURL)).Error(), nil
	}
	return deliver(ctx, t.client, card.URL, task)
}

// deliver sends text to the agent and flattens the protocol result.
func deliver(ctx context.Context, c *Client, url, text string) (any, error) {
	sender, err := c.sender(url)
	if err != nil {
		return transport.Tagged(transport.TagTool, "connect to agent at %s: %v", url, err).Error(), nil
	}

	message := protocol.NewMessage(protocol.MessageRoleUser, []protocol.Part{protocol.NewTextPart(text)})
	if session := sessionID(ctx); session != "" {
		message.ContextID = &session
	}

	result, err := sender.send(ctx, message)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return transport.Tagged(transport.TagTool, "agent at %s: %v", url, err).Error(), nil
	}
	return flattenResult(url, result), nil
}

// flattenResult turns the protocol result union into message text.
func flattenResult(url string, result any) string {
	switch v := result.(type) {
	case *protocol.Message:
		return partsText(v.Parts)
	case *protocol.Task:
		switch v.Status.State {
		case protocol.TaskStateFailed, protocol.TaskStateCanceled:
			detail := ""
			if v.Status.Message != nil {
				detail = ": " + partsText(v.Status.Message.Parts)
			}
			return transport.Tagged(transport.TagTool,
				"task %s ended in state %s%s", v.ID, v.Status.State, detail).Error()
		}
		var parts []protocol.Part
		for _, artifact := range v.Artifacts {
			parts = append(parts, artifact.Parts...)
		}
		if len(parts) == 0 && v.Status.Message != nil {
			parts = v.Status.Message.Parts
		}
		return partsText(parts)
	default:
		log.Warnf("peer: unexpected result type %T from agent at %s", result, url)
		return transport.Tagged(transport.TagTool,
			"agent at %s returned an unrecognized response", url).Error()
	}
}

func partsText(parts []protocol.Part) string {
	var b strings.Builder
	for _, part := range parts {
		// Parts decoded from the wire arrive as pointers, locally built
		// ones as values.
		var text string
		switch p := part.(type) {
		case *protocol.TextPart:
			text = p.Text
		case protocol.TextPart:
			text = p.Text
		default:
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String()
}

func stripNulls(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
