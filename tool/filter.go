//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package tool

// Filter decides whether a tool with the given name should be kept.
type Filter func(string) bool

// IncludeNames creates a Filter that keeps only the specified tool names.
func IncludeNames(names ...string) Filter {
	allowed := make(map[string]bool)
	for _, name := range names {
		allowed[name] = true
	}
	return func(name string) bool {
		return allowed[name]
	}
}

// ExcludeNames creates a Filter that drops the specified tool names.
func ExcludeNames(names ...string) Filter {
	excluded := make(map[string]bool)
	for _, name := range names {
		excluded[name] = true
	}
	return func(name string) bool {
		return !excluded[name]
	}
}

// ApplyFilter returns the tools accepted by the filter. A nil filter keeps
// everything.
func ApplyFilter(tools []CallableTool, filter Filter) []CallableTool {
	if filter == nil {
		return tools
	}
	var result []CallableTool
	for _, t := range tools {
		if filter(t.Declaration().Name) {
			result = append(result, t)
		}
	}
	return result
}
