//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package discovery turns a tool provider's advertised declarations into
// callable tools.
//
// A provider is asked once for its tool list over its transport. Each
// declaration with a usable object schema becomes a structured tool whose
// arguments are validated before dispatch; declarations without a schema
// become freeform tools that accept simplified input. Declarations with a
// non-object root schema are dropped with a warning.
package discovery

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool/schema"
	"trpc.group/trpc-go/trpc-toolmesh-go/transport"
)

// Default JSON-RPC method names used when a provider follows the common
// convention.
const (
	DefaultDiscoverMethod = "tools/discover"
	DefaultCallMethod     = "tools/call"
)

// FreeformSuffix is appended to the description of tools wrapped without
// a schema so the model knows simplified input is accepted.
const FreeformSuffix = " (accepts simplified input)"

// FreeformArgKey carries the raw value for freeform tool invocations.
const FreeformArgKey = "__arg1"

// Provider describes one tool provider reachable over a transport.
type Provider struct {
	name           string
	transport      transport.Transport
	discoverMethod string
	callMethod     string
	filter         tool.Filter
}

// Option configures a Provider.
type Option func(*Provider)

// WithDiscoverMethod overrides the discovery method name.
func WithDiscoverMethod(method string) Option {
	return func(p *Provider) {
		p.discoverMethod = method
	}
}

// WithCallMethod overrides the invocation method name.
func WithCallMethod(method string) Option {
	return func(p *Provider) {
		p.callMethod = method
	}
}

// WithFilter restricts which discovered tools are kept.
func WithFilter(filter tool.Filter) Option {
	return func(p *Provider) {
		p.filter = filter
	}
}

// NewProvider creates a provider over the given transport.
func NewProvider(name string, t transport.Transport, opts ...Option) *Provider {
	p := &Provider{
		name:           name,
		transport:      t,
		discoverMethod: DefaultDiscoverMethod,
		callMethod:     DefaultCallMethod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Discover asks the provider for its tool list and wraps every usable
// declaration. Individual malformed declarations are skipped with a
// warning; only a transport-level failure returns an error.
func (p *Provider) Discover(ctx context.Context) ([]tool.CallableTool, error) {
	result, err := p.transport.Call(ctx, p.discoverMethod, nil)
	if err != nil {
		return nil, fmt.Errorf("discover tools from provider %s: %w", p.name, err)
	}
	raw, ok := transport.UnwrapToolList(result)
	if !ok {
		return nil, fmt.Errorf("provider %s returned an unrecognized discovery payload", p.name)
	}

	tools := make([]tool.CallableTool, 0, len(raw))
	for _, entry := range raw {
		decl, ok := parseDeclaration(p.name, entry)
		if !ok {
			continue
		}
		wrapped, ok := p.wrap(decl)
		if !ok {
			continue
		}
		tools = append(tools, wrapped)
	}
	log.Infof("provider %s: discovered %d tools", p.name, len(tools))
	return tool.ApplyFilter(tools, p.filter), nil
}

// wrap builds the callable for a declaration. Declarations without a
// schema become freeform tools; a non-object schema drops the tool.
func (p *Provider) wrap(decl *tool.Declaration) (tool.CallableTool, bool) {
	if len(decl.InputSchema) == 0 {
		decl.Description += FreeformSuffix
		return &freeformTool{decl: decl, provider: p}, true
	}
	desc, err := schema.Build(decl.Name, decl.InputSchema)
	if err != nil {
		log.Warnf("provider %s: dropping tool %s: %v", p.name, decl.Name, err)
		return nil, false
	}
	return &structuredTool{decl: decl, desc: desc, provider: p}, true
}

func parseDeclaration(provider string, entry any) (*tool.Declaration, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		log.Warnf("provider %s: skipping non-object tool declaration %T", provider, entry)
		return nil, false
	}
	name, _ := m["name"].(string)
	if name == "" {
		log.Warnf("provider %s: skipping tool declaration without a name", provider)
		return nil, false
	}
	description, _ := m["description"].(string)
	inputSchema, _ := m["inputSchema"].(map[string]any)
	if inputSchema == nil {
		// Some providers advertise the schema under "parameters".
		inputSchema, _ = m["parameters"].(map[string]any)
	}
	return &tool.Declaration{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}, true
}

// structuredTool validates arguments against the built descriptor before
// dispatching over the provider transport.
type structuredTool struct {
	decl     *tool.Declaration
	desc     *schema.Descriptor
	provider *Provider
}

// Declaration implements tool.Tool.
func (t *structuredTool) Declaration() *tool.Declaration {
	return t.decl
}

// Call implements tool.CallableTool. Provider and validation failures come
// back as tagged string results so the caller can fold them into the
// conversation.
func (t *structuredTool) Call(ctx context.Context, args map[string]any) (any, error) {
	validated, err := t.desc.Validate(StripNulls(args))
	if err != nil {
		return transport.Tagged(transport.TagValidation, "tool %s: %v", t.decl.Name, err).Error(), nil
	}
	return dispatch(ctx, t.provider, t.decl.Name, validated)
}

// freeformTool forwards simplified input to schema-less tools.
type freeformTool struct {
	decl     *tool.Declaration
	provider *Provider
}

// Declaration implements tool.Tool.
func (t *freeformTool) Declaration() *tool.Declaration {
	return t.decl
}

// Call implements tool.CallableTool.
func (t *freeformTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return dispatch(ctx, t.provider, t.decl.Name, NormalizeFreeform(args))
}

func dispatch(ctx context.Context, p *Provider, name string, args map[string]any) (any, error) {
	result, err := transport.CallTool(ctx, p.transport, p.callMethod, name, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("provider %s: tool %s failed: %v", p.name, name, err)
		return err.Error(), nil
	}
	return result, nil
}

// StripNulls removes null-valued arguments so schema defaults apply on
// the provider side. Models routinely emit explicit nulls for optional
// parameters they do not want to set.
func StripNulls(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// NormalizeFreeform shapes arguments for a schema-less tool. A single
// non-conventional entry is rewrapped under the simplified argument key;
// everything else passes through unchanged.
func NormalizeFreeform(args map[string]any) map[string]any {
	if len(args) != 1 {
		return args
	}
	if _, ok := args[FreeformArgKey]; ok {
		return args
	}
	for _, v := range args {
		return map[string]any{FreeformArgKey: v}
	}
	return args
}
