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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"
)


func firstText(t *testing.T, parts []protocol.Part) string {
	t.Helper()
	require.NotEmpty(t, parts)
	switch p := parts[0].(type) {
	case *protocol.TextPart:
		return p.Text
	case protocol.TextPart:
		return p.Text
	}
	t.Fatalf("part %T is not text", parts[0])
	return ""
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "http://agent:8080", want: "http://agent:8080"},
		{name: "missing scheme", in: "agent:8080", want: "http://agent:8080"},
		{name: "trailing slash", in: "http://agent:8080/", want: "http://agent:8080"},
		{name: "surrounding space", in: "  http://agent:8080  ", want: "http://agent:8080"},
		{name: "zero width runes", in: "http://age\u200bnt:8080\ufeff", want: "http://agent:8080"},
		{name: "empty", in: " \u200b ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeURL(tt.in))
		})
	}
}

func cardServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, WellKnownPath, r.URL.Path)
		atomic.AddInt32(hits, 1)
		card := PeerAgentCard{
			Name:        "ops-agent",
			Description: "Operations automation agent",
			Skills: []Skill{{
				ID:          "reboot",
				Name:        "reboot",
				Description: "Reboot a device",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device": map[string]any{"type": "string"},
					},
					"required": []any{"device"},
				},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(card))
	}))
}

func TestDiscoverAgent(t *testing.T) {
	var hits int32
	srv := cardServer(t, &hits)
	defer srv.Close()

	c := NewClient()
	card := c.DiscoverAgent(context.Background(), srv.URL)
	require.NotNil(t, card)
	assert.Equal(t, "ops-agent", card.Name)
	assert.Equal(t, srv.URL, card.URL, "missing card url falls back to the discovery url")
	require.Len(t, card.Skills, 1)
}

func TestDiscoverAgentCaches(t *testing.T) {
	var hits int32
	srv := cardServer(t, &hits)
	defer srv.Close()

	c := NewClient()
	require.NotNil(t, c.DiscoverAgent(context.Background(), srv.URL))
	require.NotNil(t, c.DiscoverAgent(context.Background(), srv.URL+"/"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second lookup served from cache")
}

func TestDiscoverAgentTTLExpiry(t *testing.T) {
	var hits int32
	srv := cardServer(t, &hits)
	defer srv.Close()

	c := NewClient(WithCardTTL(time.Nanosecond))
	require.NotNil(t, c.DiscoverAgent(context.Background(), srv.URL))
	time.Sleep(time.Millisecond)
	require.NotNil(t, c.DiscoverAgent(context.Background(), srv.URL))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestDiscoverAgentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	assert.Nil(t, c.DiscoverAgent(context.Background(), srv.URL))
}

func TestDiscoverAgentUnreachable(t *testing.T) {
	c := NewClient()
	assert.Nil(t, c.DiscoverAgent(context.Background(), "http://127.0.0.1:1"))
	assert.Nil(t, c.DiscoverAgent(context.Background(), ""))
}

// scriptedSender answers with a fixed protocol result.
type scriptedSender struct {
	result   any
	err      error
	messages []protocol.Message
}

func (s *scriptedSender) send(_ context.Context, message protocol.Message) (any, error) {
	s.messages = append(s.messages, message)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func clientWithSender(sender messageSender) *Client {
	c := NewClient()
	c.newSender = func(string) (messageSender, error) { return sender, nil }
	return c
}

func agentMessage(text string) *protocol.Message {
	msg := protocol.NewMessage(protocol.MessageRoleAgent, []protocol.Part{protocol.NewTextPart(text)})
	return &msg
}

func opsCard() *PeerAgentCard {
	return &PeerAgentCard{
		Name: "Ops Agent",
		URL:  "http://ops:8080",
		Skills: []Skill{
			{
				ID:          "reboot",
				Description: "Reboot a device",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device": map[string]any{"type": "string"},
					},
					"required": []any{"device"},
				},
			},
			{ID: "status", Description: "Report agent status"},
		},
	}
}

func TestWrapSkillsNamingAndAliases(t *testing.T) {
	c := NewClient()
	tools, aliases := c.WrapSkills(opsCard())
	require.Len(t, tools, 2)
	assert.Equal(t, "reboot__ops-agent", tools[0].Declaration().Name)
	assert.Equal(t, "status__ops-agent", tools[1].Declaration().Name)
	assert.Contains(t, tools[0].Declaration().Description, "Ops Agent")
	assert.Equal(t, map[string]string{
		"reboot": "reboot__ops-agent",
		"status": "status__ops-agent",
	}, aliases)
}

func TestWrapSkillsSkipsBrokenSchema(t *testing.T) {
	c := NewClient()
	card := &PeerAgentCard{
		Name: "ops",
		URL:  "http://ops:8080",
		Skills: []Skill{{
			ID:         "bad",
			Parameters: map[string]any{"type": "string"},
		}},
	}
	tools, _ := c.WrapSkills(card)
	assert.Empty(t, tools)
}

func TestSkillToolCall(t *testing.T) {
	sender := &scriptedSender{result: agentMessage("device rebooted")}
	c := clientWithSender(sender)
	tools, _ := c.WrapSkills(opsCard())

	ctx := WithSessionID(context.Background(), "session-7")
	result, err := tools[0].Call(ctx, map[string]any{"device": "r1", "force": nil})
	require.NoError(t, err)
	assert.Equal(t, "device rebooted", result)

	require.Len(t, sender.messages, 1)
	sent := sender.messages[0]
	require.NotNil(t, sent.ContextID)
	assert.Equal(t, "session-7", *sent.ContextID)

	text := firstText(t, sent.Parts)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "reboot", payload["skill"])
	assert.Equal(t, map[string]any{"device": "r1"}, payload["arguments"])
}

func TestSkillToolValidationFailure(t *testing.T) {
	sender := &scriptedSender{result: agentMessage("unused")}
	c := clientWithSender(sender)
	tools, _ := c.WrapSkills(opsCard())

	result, err := tools[0].Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	s, ok := result.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(s, "Tool Input Validation Error:"))
	assert.Empty(t, sender.messages)
}

func TestFlattenResultFailedTask(t *testing.T) {
	task := &protocol.Task{
		ID: "t-1",
		Status: protocol.TaskStatus{
			State:   protocol.TaskStateFailed,
			Message: agentMessage("device unreachable"),
		},
	}
	out := flattenResult("http://ops:8080", task)
	assert.True(t, strings.HasPrefix(out, "Tool Error:"))
	assert.Contains(t, out, "device unreachable")
}

func TestFlattenResultCompletedTask(t *testing.T) {
	task := &protocol.Task{
		ID: "t-2",
		Status: protocol.TaskStatus{
			State:   protocol.TaskStateCompleted,
			Message: agentMessage("all good"),
		},
	}
	assert.Equal(t, "all good", flattenResult("http://ops:8080", task))
}

func TestFlattenResultUnknownType(t *testing.T) {
	out := flattenResult("http://ops:8080", 42)
	assert.True(t, strings.HasPrefix(out, "Tool Error:"))
}

func TestDelegateToolMissingArguments(t *testing.T) {
	d := DelegateTool(NewClient())
	result, err := d.Call(context.Background(), map[string]any{"task": "do it"})
	require.NoError(t, err)
	assert.Contains(t, result, "Tool Input Validation Error:")
}

func TestDelegateToolUnreachableAgent(t *testing.T) {
	d := DelegateTool(NewClient())
	result, err := d.Call(context.Background(), map[string]any{
		"agent_url": "http://127.0.0.1:1",
		"task":      "reboot r1",
	})
	require.NoError(t, err)
	s, ok := result.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(s, "Tool Error:"))
	assert.Contains(t, s, "not reachable")
}

func TestDelegateToolDeliversTask(t *testing.T) {
	var hits int32
	srv := cardServer(t, &hits)
	defer srv.Close()

	sender := &scriptedSender{result: agentMessage("task accepted")}
	c := clientWithSender(sender)
	d := DelegateTool(c)

	result, err := d.Call(context.Background(), map[string]any{
		"agent_url":  srv.URL,
		"task":       "reboot r1 tonight",
		"session_id": "sess-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "task accepted", result)

	require.Len(t, sender.messages, 1)
	sent := sender.messages[0]
	assert.Equal(t, "reboot r1 tonight", firstText(t, sent.Parts))
	require.NotNil(t, sent.ContextID)
	assert.Equal(t, "sess-42", *sent.ContextID)
}
