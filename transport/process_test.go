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
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test provider scripts require a POSIX shell")
	}
}

func TestProcessTransportRoundTrip(t *testing.T) {
	requireShell(t)
	// The script ignores stdin and answers with logs plus a response line.
	script := `echo "provider booting" >&2
echo "some stdout chatter"
echo '{"jsonrpc":"2.0","id":"x","result":{"ok":true}}'`
	p := NewProcessTransport("fake", "sh", []string{"-c", script})

	result, err := p.Call(context.Background(), "tools/discover", nil)
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, m["ok"])
}

func TestProcessTransportReceivesRequestOnStdin(t *testing.T) {
	requireShell(t)
	// Echo the request back as the result to prove stdin delivery.
	script := `read line
printf '{"jsonrpc":"2.0","id":"x","result":%s}\n' "$line"`
	p := NewProcessTransport("echo", "sh", []string{"-c", script})

	result, err := p.Call(context.Background(), "tools/call", map[string]any{"name": "ping"})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tools/call", m["method"])
	params, ok := m["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ping", params["name"])
}

func TestProcessTransportNonZeroExit(t *testing.T) {
	requireShell(t)
	p := NewProcessTransport("broken", "sh", []string{"-c", `echo "boom" >&2; exit 3`})

	_, err := p.Call(context.Background(), "tools/discover", nil)
	require.Error(t, err)
	var tagged *TaggedError
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, TagSubprocess, tagged.Tag)
	assert.Contains(t, err.Error(), "code 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestProcessTransportTimeout(t *testing.T) {
	requireShell(t)
	p := NewProcessTransport("slow", "sh", []string{"-c", "sleep 5"},
		WithProcessTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := p.Call(context.Background(), "tools/discover", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var tagged *TaggedError
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, TagSubprocess, tagged.Tag)
	assert.Contains(t, err.Error(), "timed out after")
}

func TestProcessTransportMissingBinary(t *testing.T) {
	p := NewProcessTransport("ghost", "definitely-not-a-real-binary-xyz", nil)

	_, err := p.Call(context.Background(), "tools/discover", nil)
	require.Error(t, err)
	var tagged *TaggedError
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, TagSubprocess, tagged.Tag)
}

func TestProcessTransportEnvExtendsInherited(t *testing.T) {
	requireShell(t)
	// Configured entries ride on top of the parent environment instead of
	// replacing it; the child still sees PATH.
	script := `printf '{"jsonrpc":"2.0","id":"x","result":{"extra":"%s","path":"%s"}}' "$TOOLMESH_EXTRA" "$PATH"`
	p := NewProcessTransport("env", "sh", []string{"-c", script},
		WithProcessEnv("TOOLMESH_EXTRA=hello"))

	result, err := p.Call(context.Background(), "tools/discover", nil)
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", m["extra"])
	assert.NotEmpty(t, m["path"])
}

func TestProcessTransportName(t *testing.T) {
	p := NewProcessTransport("weather", "sh", nil)
	assert.Equal(t, "weather", p.Name())
}
