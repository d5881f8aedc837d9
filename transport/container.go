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
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	tcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
)

// ExecAPIClient is the slice of the Docker API this transport needs. It
// is satisfied by *client.Client.
type ExecAPIClient interface {
	ContainerExecCreate(ctx context.Context, container string, options tcontainer.ExecOptions) (tcontainer.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options tcontainer.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (tcontainer.ExecInspect, error)
}

// ContainerTransport execs a provider command inside a running container
// for every call, equivalent to `docker exec -i <container> <cmd>`. The
// request travels over the attached stdin and the response is read from
// the demultiplexed stdout.
type ContainerTransport struct {
	name        string
	containerID string
	command     []string
	timeout     time.Duration
	cli         ExecAPIClient
}

// ContainerOption configures a ContainerTransport.
type ContainerOption func(*ContainerTransport)

// WithContainerTimeout overrides the per-call deadline.
func WithContainerTimeout(d time.Duration) ContainerOption {
	return func(c *ContainerTransport) {
		c.timeout = d
	}
}

// WithContainerClient injects a Docker API client, mainly for tests.
func WithContainerClient(cli ExecAPIClient) ContainerOption {
	return func(c *ContainerTransport) {
		c.cli = cli
	}
}

// NewContainerTransport creates a container exec transport for the given
// provider name, container and command line.
func NewContainerTransport(name, containerID string, command []string, opts ...ContainerOption) (*ContainerTransport, error) {
	c := &ContainerTransport{
		name:        name,
		containerID: containerID,
		command:     command,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cli == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, Tagged(TagError, "create docker client: %v", err)
		}
		c.cli = cli
	}
	return c, nil
}

// Name implements Transport.
func (c *ContainerTransport) Name() string {
	return c.name
}

// Call implements Transport.
func (c *ContainerTransport) Call(ctx context.Context, method string, params any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = Tagged(TagCritical, "panic during container call to %s: %v", c.name, r)
		}
	}()

	req := NewRequest(method, params)
	payload, encErr := req.Encode()
	if encErr != nil {
		return nil, Tagged(TagError, "%v", encErr)
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ec := tcontainer.ExecOptions{
		Cmd:          c.command,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}
	ex, execErr := c.cli.ContainerExecCreate(tctx, c.containerID, ec)
	if execErr != nil {
		return nil, c.classify("create exec", execErr, tctx)
	}
	hj, attachErr := c.cli.ContainerExecAttach(tctx, ex.ID, tcontainer.ExecStartOptions{})
	if attachErr != nil {
		return nil, c.classify("attach exec", attachErr, tctx)
	}
	defer hj.Close()

	log.Debugf("provider %s: exec in container %s for method %s", c.name, c.containerID, method)
	if _, writeErr := hj.Conn.Write(payload); writeErr != nil {
		return nil, c.classify("write request", writeErr, tctx)
	}
	if closeErr := hj.CloseWrite(); closeErr != nil {
		return nil, c.classify("close stdin", closeErr, tctx)
	}

	// The hijacked connection has no deadline of its own, so the read is
	// raced against the call context. A command that neither exits nor
	// writes must not hold the caller past the timeout.
	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, hj.Reader)
		copyDone <- copyErr
	}()
	select {
	case copyErr := <-copyDone:
		if copyErr != nil {
			return nil, c.classify("read output", copyErr, tctx)
		}
	case <-tctx.Done():
		hj.Close()
		<-copyDone
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, Tagged(TagSubprocess, "timed out after %s", c.timeout)
		}
		return nil, tctx.Err()
	}

	insp, inspErr := c.cli.ContainerExecInspect(tctx, ex.ID)
	if inspErr != nil {
		return nil, c.classify("inspect exec", inspErr, tctx)
	}
	if insp.ExitCode != 0 {
		return nil, Tagged(TagSubprocess, "container command exited with code %d: %s",
			insp.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return DecodeResponse(stdout.Bytes())
}

func (c *ContainerTransport) classify(stage string, err error, tctx context.Context) *TaggedError {
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return Tagged(TagSubprocess, "timed out after %s", c.timeout)
	}
	return Tagged(TagSubprocess, "%s in container %s: %v", stage, c.containerID, err)
}
