//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package schema converts JSON-Schema tool descriptions into runtime
// record validators.
//
// Providers in the wild ship partially malformed schemas, so the builder
// is deliberately permissive: only a non-object root is a hard failure.
// Everything else degrades to untyped fields rather than rejecting the
// tool outright.
package schema

import (
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
)

// Kind is the semantic type of a field.
type Kind int

// Field kinds derived from JSON-Schema property types.
const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindObject
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

// Field describes one property of a validator.
type Field struct {
	// Name is the JSON property name.
	Name string
	// Kind is the semantic type of the field.
	Kind Kind
	// Elem is the element kind for KindList fields.
	Elem Kind
	// Nested is the descriptor for KindObject fields and for KindList
	// fields whose elements are objects. Nil means an untyped mapping.
	Nested *Descriptor
	// Required reports whether the property appears in the schema's
	// required list.
	Required bool
}

// Descriptor is a runtime validator built from an object JSON-Schema.
// Every property of the input schema maps to exactly one field, except
// array properties with a missing items sub-schema, which are dropped
// with a warning.
type Descriptor struct {
	// Name disambiguates generated nested descriptor names.
	Name string
	// Fields is keyed by property name.
	Fields map[string]*Field
}

// SchemaError reports a schema the builder cannot accept.
type SchemaError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %s", e.Name, e.Reason)
}

// Build converts an object JSON-Schema into a Descriptor.
//
// Only object root schemas are accepted; anything else fails with a
// *SchemaError. All other malformations degrade: arrays without items are
// skipped, unresolved $ref and empty object properties become untyped
// mappings, unrecognized types become KindAny.
func Build(name string, schema map[string]any) (*Descriptor, error) {
	if typ, _ := schema["type"].(string); typ != "object" {
		return nil, &SchemaError{Name: name, Reason: "only object schemas supported"}
	}
	defs := localDefs(schema)
	return build(name, schema, defs)
}

func build(name string, schema map[string]any, defs map[string]any) (*Descriptor, error) {
	desc := &Descriptor{
		Name:   name,
		Fields: make(map[string]*Field),
	}

	properties, _ := schema["properties"].(map[string]any)
	required := requiredSet(schema)

	for propName, raw := range properties {
		propSchema, _ := raw.(map[string]any)
		field := buildField(name, propName, propSchema, defs)
		if field == nil {
			// Array property without items; intentionally dropped.
			continue
		}
		field.Required = required[propName]
		desc.Fields[propName] = field
	}
	return desc, nil
}

// buildField builds a single field descriptor. A nil return means the
// property should be dropped from the validator.
func buildField(parent, propName string, propSchema map[string]any, defs map[string]any) *Field {
	field := &Field{Name: propName, Kind: KindAny}
	if propSchema == nil {
		return field
	}

	if ref, ok := propSchema["$ref"].(string); ok {
		resolved := resolveRef(ref, defs)
		if resolved == nil {
			log.Warnf("schema %s: unresolved $ref %q for property %s, falling back to untyped mapping",
				parent, ref, propName)
			field.Kind = KindObject
			return field
		}
		propSchema = resolved
	}

	typ, _ := propSchema["type"].(string)
	switch typ {
	case "string":
		field.Kind = KindString
	case "integer":
		field.Kind = KindInt
	case "number":
		field.Kind = KindFloat
	case "boolean":
		field.Kind = KindBool
	case "array":
		items, ok := propSchema["items"].(map[string]any)
		if !ok {
			log.Warnf("schema %s: array property %s has no items sub-schema, dropping field",
				parent, propName)
			return nil
		}
		field.Kind = KindList
		field.Elem, field.Nested = buildListElem(parent, propName, items, defs)
	case "object":
		field.Kind = KindObject
		if props, ok := propSchema["properties"].(map[string]any); ok && len(props) > 0 {
			nested, err := build(parent+"_"+propName, propSchema, defs)
			if err == nil {
				field.Nested = nested
			}
		}
	default:
		field.Kind = KindAny
	}
	return field
}

// buildListElem determines the element typing for an array field.
func buildListElem(parent, propName string, items map[string]any, defs map[string]any) (Kind, *Descriptor) {
	if ref, ok := items["$ref"].(string); ok {
		resolved := resolveRef(ref, defs)
		if resolved == nil {
			log.Warnf("schema %s: unresolved $ref %q in items of %s, using untyped elements",
				parent, ref, propName)
			return KindAny, nil
		}
		items = resolved
	}
	switch typ, _ := items["type"].(string); typ {
	case "string":
		return KindString, nil
	case "integer":
		return KindInt, nil
	case "number":
		return KindFloat, nil
	case "boolean":
		return KindBool, nil
	case "object":
		props, _ := items["properties"].(map[string]any)
		if len(props) == 0 {
			return KindObject, nil
		}
		nested, err := build(parent+"_"+propName+"_Item", items, defs)
		if err != nil {
			return KindObject, nil
		}
		return KindObject, nested
	default:
		return KindAny, nil
	}
}

// localDefs collects the schema's local definition table, accepting both
// the draft 2020 "$defs" and the legacy "definitions" spellings.
func localDefs(schema map[string]any) map[string]any {
	if defs, ok := schema["$defs"].(map[string]any); ok {
		return defs
	}
	if defs, ok := schema["definitions"].(map[string]any); ok {
		return defs
	}
	return nil
}

// resolveRef resolves a local $ref pointer against the definition table.
// Only same-document fragment refs are supported; anything else returns
// nil and the caller degrades to an untyped mapping.
func resolveRef(ref string, defs map[string]any) map[string]any {
	if defs == nil {
		return nil
	}
	name := ref
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if strings.HasPrefix(ref, prefix) {
			name = strings.TrimPrefix(ref, prefix)
			break
		}
	}
	resolved, _ := defs[name].(map[string]any)
	return resolved
}

func requiredSet(schema map[string]any) map[string]bool {
	set := make(map[string]bool)
	raw, _ := schema["required"].([]any)
	for _, entry := range raw {
		if name, ok := entry.(string); ok {
			set[name] = true
		}
	}
	return set
}
