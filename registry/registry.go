//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package registry aggregates tools from every configured provider into
// one named catalog with a semantic search index.
//
// Discovery fans out across providers concurrently but merges results in
// provider declaration order, so the catalog is deterministic for a given
// configuration. A provider that fails to discover is logged and skipped;
// it never hides tools from healthy providers.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-toolmesh-go/discovery"
	"trpc.group/trpc-go/trpc-toolmesh-go/embedder"
	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
	"trpc.group/trpc-go/trpc-toolmesh-go/vectorstore/inmemory"
)

// DefaultParallelism bounds concurrent provider discovery.
const DefaultParallelism = 4

// Scored is a semantic search hit over the tool catalog.
type Scored struct {
	// Name is the registered tool name.
	Name string
	// Score is the cosine similarity against the query.
	Score float64
}

// Registry is the merged tool catalog.
type Registry struct {
	providers   []*discovery.Provider
	embed       embedder.Embedder
	parallelism int

	mu      sync.RWMutex
	tools   map[string]tool.CallableTool
	order   []string
	remote  map[string]bool
	aliases map[string]string
	index   *inmemory.Store
}

// Option configures the Registry.
type Option func(*Registry)

// WithProviders sets the tool providers to discover from. Order matters:
// it fixes merge order and collision precedence.
func WithProviders(providers ...*discovery.Provider) Option {
	return func(r *Registry) {
		r.providers = append(r.providers, providers...)
	}
}

// WithEmbedder enables the semantic index using the given embedder.
func WithEmbedder(e embedder.Embedder) Option {
	return func(r *Registry) {
		r.embed = e
	}
}

// WithParallelism bounds concurrent provider discovery.
func WithParallelism(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		parallelism: DefaultParallelism,
		tools:       make(map[string]tool.CallableTool),
		remote:      make(map[string]bool),
		aliases:     make(map[string]string),
		index:       inmemory.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover queries every provider for its tools and merges the results.
// Providers run concurrently on a bounded pool; a failing provider is
// logged and contributes nothing.
func (r *Registry) Discover(ctx context.Context) error {
	pool, err := ants.NewPool(r.parallelism)
	if err != nil {
		return fmt.Errorf("create discovery pool: %w", err)
	}
	defer pool.Release()

	results := make([][]tool.CallableTool, len(r.providers))
	var wg sync.WaitGroup
	for i, p := range r.providers {
		wg.Add(1)
		i, p := i, p
		submitErr := pool.Submit(func() {
			defer wg.Done()
			tools, err := p.Discover(ctx)
			if err != nil {
				log.Warnf("registry: provider %s discovery failed, skipping: %v", p.Name(), err)
				return
			}
			results[i] = tools
		})
		if submitErr != nil {
			wg.Done()
			log.Warnf("registry: submit discovery for provider %s: %v", p.Name(), submitErr)
		}
	}
	wg.Wait()

	// Merge in provider order so the catalog layout is reproducible.
	for i, tools := range results {
		provider := r.providers[i].Name()
		for _, t := range tools {
			r.register(t, provider, false)
		}
	}
	return nil
}

// Register adds a locally implemented tool to the catalog.
func (r *Registry) Register(t tool.CallableTool, aliases ...string) {
	r.register(t, "local", false)
	r.addAliases(t.Declaration().Name, aliases)
}

// RegisterRemote adds a tool proxied from a peer agent. Remote tools are
// excluded from the catalog this process publishes about itself.
func (r *Registry) RegisterRemote(t tool.CallableTool, aliases ...string) {
	r.register(t, "peer", true)
	r.addAliases(t.Declaration().Name, aliases)
}

func (r *Registry) register(t tool.CallableTool, origin string, remote bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Declaration().Name
	if _, taken := r.tools[name]; taken {
		renamed := name + "__" + origin
		log.Warnf("registry: tool name %s already registered, renaming %s entry to %s",
			name, origin, renamed)
		t = rename(t, renamed)
		name = renamed
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	r.remote[name] = remote
}

func (r *Registry) addAliases(name string, aliases []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alias := range aliases {
		if alias == "" || alias == name {
			continue
		}
		if existing, taken := r.aliases[alias]; taken && existing != name {
			log.Warnf("registry: alias %s already points to %s, not rebinding to %s",
				alias, existing, name)
			continue
		}
		r.aliases[alias] = name
	}
}

// Lookup returns the tool registered under the exact name.
func (r *Registry) Lookup(name string) (tool.CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ResolveName maps a possibly aliased name to its registered form. The
// empty string means the name is unknown.
func (r *Registry) ResolveName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tools[name]; ok {
		return name
	}
	if full, ok := r.aliases[name]; ok {
		return full
	}
	return ""
}

// ListAll returns every registered tool in registration order.
func (r *Registry) ListAll() []tool.CallableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.CallableTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ListLocal returns the tools this process implements itself, excluding
// peer proxies.
func (r *Registry) ListLocal() []tool.CallableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []tool.CallableTool
	for _, name := range r.order {
		if !r.remote[name] {
			out = append(out, r.tools[name])
		}
	}
	return out
}

// BuildIndex embeds every registered tool into the semantic index. Tools
// whose embedding fails are logged and left unindexed.
func (r *Registry) BuildIndex(ctx context.Context) error {
	if r.embed == nil {
		return fmt.Errorf("registry has no embedder configured")
	}
	for _, t := range r.ListAll() {
		decl := t.Declaration()
		content := decl.Name + ": " + decl.Description
		vector, err := r.embed.GetEmbedding(ctx, content)
		if err != nil {
			log.Warnf("registry: embed tool %s failed, leaving unindexed: %v", decl.Name, err)
			continue
		}
		if len(vector) == 0 {
			continue
		}
		doc := &inmemory.Document{ID: decl.Name, Content: content, Vector: vector}
		if err := r.index.Add(ctx, doc); err != nil {
			return fmt.Errorf("index tool %s: %w", decl.Name, err)
		}
	}
	log.Infof("registry: semantic index holds %d of %d tools", r.index.Count(), len(r.order))
	return nil
}

// SimilaritySearch returns up to k tool names ranked by semantic
// similarity to the query.
func (r *Registry) SimilaritySearch(ctx context.Context, query string, k int) ([]Scored, error) {
	if r.embed == nil {
		return nil, fmt.Errorf("registry has no embedder configured")
	}
	vector, err := r.embed.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search tool index: %w", err)
	}
	scored := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		scored = append(scored, Scored{Name: hit.Document.ID, Score: hit.Score})
	}
	return scored, nil
}

// rename wraps a tool under a new name without mutating the original
// declaration.
func rename(t tool.CallableTool, name string) tool.CallableTool {
	decl := *t.Declaration()
	decl.Name = name
	return &renamedTool{inner: t, decl: &decl}
}

type renamedTool struct {
	inner tool.CallableTool
	decl  *tool.Declaration
}

func (t *renamedTool) Declaration() *tool.Declaration {
	return t.decl
}

func (t *renamedTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.inner.Call(ctx, args)
}
