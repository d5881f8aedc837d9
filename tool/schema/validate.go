//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package schema

import (
	"fmt"
	"math"
)

// ValidationError reports arguments that do not satisfy a descriptor.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// Validate checks args against the descriptor and returns the validated
// document containing only the declared fields.
//
// Callers strip null-valued arguments before calling Validate so that
// schema defaults apply. JSON numbers arrive as float64; integral values
// are accepted for KindInt fields.
func (d *Descriptor) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(d.Fields))
	for name, field := range d.Fields {
		value, present := args[name]
		if !present {
			if field.Required {
				return nil, &ValidationError{Field: name, Reason: "required field missing"}
			}
			continue
		}
		converted, err := validateValue(field, value)
		if err != nil {
			return nil, err
		}
		out[name] = converted
	}
	return out, nil
}

func validateValue(field *Field, value any) (any, error) {
	switch field.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, typeError(field.Name, field.Kind, value)
		}
		return s, nil
	case KindInt:
		return coerceInt(field.Name, value)
	case KindFloat:
		return coerceFloat(field.Name, value)
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, typeError(field.Name, field.Kind, value)
		}
		return b, nil
	case KindList:
		return validateList(field, value)
	case KindObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, typeError(field.Name, field.Kind, value)
		}
		if field.Nested != nil {
			return field.Nested.Validate(m)
		}
		return m, nil
	default:
		return value, nil
	}
}

func validateList(field *Field, value any) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, typeError(field.Name, field.Kind, value)
	}
	elemField := &Field{
		Name:   field.Name + "[]",
		Kind:   field.Elem,
		Nested: field.Nested,
	}
	out := make([]any, 0, len(list))
	for _, elem := range list {
		converted, err := validateValue(elemField, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func coerceInt(name string, value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("expected integer, got %v", v)}
		}
		return int(v), nil
	default:
		return nil, typeError(name, KindInt, value)
	}
}

func coerceFloat(name string, value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return nil, typeError(name, KindFloat, value)
	}
}

func typeError(name string, kind Kind, value any) *ValidationError {
	return &ValidationError{
		Field:  name,
		Reason: fmt.Sprintf("expected %s, got %T", kind, value),
	}
}
