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
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
)

// ProcessTransport runs one provider subprocess per call. The request is
// written to the child's stdin, stdin is closed to signal end of input,
// and the child is expected to emit its response on stdout and exit.
type ProcessTransport struct {
	name    string
	command string
	args    []string
	env     []string
	dir     string
	timeout time.Duration
}

// ProcessOption configures a ProcessTransport.
type ProcessOption func(*ProcessTransport)

// WithProcessTimeout overrides the per-call deadline.
func WithProcessTimeout(d time.Duration) ProcessOption {
	return func(p *ProcessTransport) {
		p.timeout = d
	}
}

// WithProcessEnv appends entries to the child's inherited environment.
func WithProcessEnv(env ...string) ProcessOption {
	return func(p *ProcessTransport) {
		p.env = append(p.env, env...)
	}
}

// WithProcessDir sets the child's working directory.
func WithProcessDir(dir string) ProcessOption {
	return func(p *ProcessTransport) {
		p.dir = dir
	}
}

// NewProcessTransport creates a subprocess transport for the given
// provider name and command line.
func NewProcessTransport(name, command string, args []string, opts ...ProcessOption) *ProcessTransport {
	p := &ProcessTransport{
		name:    name,
		command: command,
		args:    args,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Transport.
func (p *ProcessTransport) Name() string {
	return p.name
}

// Call implements Transport. Each call spawns a fresh child process so
// providers need no long-lived session state.
func (p *ProcessTransport) Call(ctx context.Context, method string, params any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = Tagged(TagCritical, "panic during subprocess call to %s: %v", p.name, r)
		}
	}()

	req := NewRequest(method, params)
	payload, encErr := req.Encode()
	if encErr != nil {
		return nil, Tagged(TagError, "%v", encErr)
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, p.command, p.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Dir = p.dir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("provider %s: spawning %s for method %s", p.name, p.command, method)
	runErr := cmd.Run()
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, Tagged(TagSubprocess, "timed out after %s", p.timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, Tagged(TagSubprocess, "%s exited with code %d: %s",
				p.command, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, Tagged(TagSubprocess, "failed to run %s: %v", p.command, runErr)
	}
	return DecodeResponse(stdout.Bytes())
}
