package tools

import (
	"fmt"
	"math"
	"strings"
)

// Kind tags one node of a parameter schema. Schemas are plain data walked by
// a small interpreter, so the same declaration drives JSON-schema emission
// to the model, validation of incoming arguments, and skeleton synthesis for
// the repair prompt.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindInteger
	KindEnum
	KindObject
)

// Param is one parameter declaration. Fields is set for KindObject, Enum for
// KindEnum.
type Param struct {
	Kind        Kind
	Description string
	Required    bool
	Enum        []string
	Fields      map[string]*Param
}

// Object is a shorthand constructor for a top-level parameter object.
func Object(fields map[string]*Param) *Param {
	return &Param{Kind: KindObject, Fields: fields}
}

// JSONSchema renders the declaration in the JSON-schema dialect model APIs
// expect for tool parameters.
func (p *Param) JSONSchema() map[string]any {
	switch p.Kind {
	case KindEnum:
		return map[string]any{
			"type":        "string",
			"enum":        p.Enum,
			"description": p.Description,
		}
	case KindNumber:
		return map[string]any{"type": "number", "description": p.Description}
	case KindInteger:
		return map[string]any{"type": "integer", "description": p.Description}
	case KindObject:
		properties := make(map[string]any, len(p.Fields))
		var required []string
		for name, field := range p.Fields {
			properties[name] = field.JSONSchema()
			if field.Required {
				required = append(required, name)
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if p.Description != "" {
			schema["description"] = p.Description
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	default:
		return map[string]any{"type": "string", "description": p.Description}
	}
}

// Skeleton synthesizes a structurally valid example value: one example per
// field, enums listing their allowed values. The repair model receives this
// as the shape to conform to.
func (p *Param) Skeleton() any {
	switch p.Kind {
	case KindEnum:
		return strings.Join(p.Enum, " | ")
	case KindNumber, KindInteger:
		return 0
	case KindObject:
		skeleton := make(map[string]any, len(p.Fields))
		for name, field := range p.Fields {
			skeleton[name] = field.Skeleton()
		}
		return skeleton
	default:
		return "text"
	}
}

// optional-field sentinels some models emit instead of omitting a field
var sentinelLiterals = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
}

// Normalize maps sentinel literals on any field to "field absent",
// recursively, so validation never sees the literal text "null" or "None".
func Normalize(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for key, v := range value {
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			if sentinelLiterals[strings.ToLower(strings.TrimSpace(typed))] {
				continue
			}
			out[key] = typed
		case map[string]any:
			out[key] = Normalize(typed)
		default:
			out[key] = v
		}
	}
	return out
}

// FlattenValueWrappers recursively collapses wrapper objects of the literal
// shape {"value": X} down to X. Repair models sometimes echo typed wrapper
// objects instead of bare values.
func FlattenValueWrappers(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 1 {
			if inner, ok := typed["value"]; ok {
				return FlattenValueWrappers(inner)
			}
		}
		out := make(map[string]any, len(typed))
		for key, v := range typed {
			out[key] = FlattenValueWrappers(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = FlattenValueWrappers(v)
		}
		return out
	default:
		return value
	}
}

// Validate checks args against the declaration. Unknown fields are ignored;
// models routinely attach extras. The returned error names the offending
// field so the repair prompt can point at it.
func (p *Param) Validate(value any) error {
	return p.validate("arguments", value)
}

func (p *Param) validate(path string, value any) error {
	switch p.Kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected a string", path)
		}
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected one of %s", path, strings.Join(p.Enum, ", "))
		}
		for _, allowed := range p.Enum {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("%s: %q is not one of %s", path, s, strings.Join(p.Enum, ", "))
	case KindNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s: expected a number", path)
		}
	case KindInteger:
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("%s: expected an integer", path)
		}
	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected an object", path)
		}
		for name, field := range p.Fields {
			v, present := obj[name]
			if !present {
				if field.Required {
					return fmt.Errorf("%s: missing required field %q", path, name)
				}
				continue
			}
			if err := field.validate(path+"."+name, v); err != nil {
				return err
			}
		}
	}
	return nil
}
