package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// ErrToolNotFound means the model asked for a capability that does not
// exist. Never repaired or retried.
var ErrToolNotFound = errors.New("tool not found")

// ArgumentError is terminal after the single repair attempt failed to
// produce valid arguments.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure inside a tool's Execute on a valid call.
// Terminal; retries, if any, live inside the tool itself.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Tool is one named, schema-typed operation the model may invoke.
type Tool struct {
	Name        string
	Description string
	Params      *Param
	Execute     func(ctx context.Context, args map[string]any) (string, error)
}

// Spec is the shape published to the model API.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Fixer is the secondary model call used to repair malformed arguments.
type Fixer interface {
	FixArguments(ctx context.Context, toolName, skeleton, badArgs string) (string, error)
}

// Registry holds the tool menu. Every tool is also registered under its
// snake_case alias; some model APIs rewrite names, and both spellings must
// dispatch to the same target.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	fixer  Fixer
	logger *zap.Logger
}

func NewRegistry(fixer Fixer, logger *zap.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		fixer:  fixer,
		logger: logger,
	}
}

func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	if alias := snakeCase(t.Name); alias != t.Name {
		r.tools[alias] = t
		r.order = append(r.order, alias)
	}
}

// Specs returns the published tool menu, aliases included.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, Spec{
			Name:        name,
			Description: t.Description,
			Parameters:  t.Params.JSONSchema(),
		})
	}
	return specs
}

// Dispatch validates and executes one model-issued tool call. Malformed
// arguments get exactly one repair attempt through the fixer model; a second
// failure is terminal. Execution failures are never retried here.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args, err := parseArgs(rawArgs)
	if err == nil {
		err = t.Params.Validate(args)
	}
	if err != nil {
		r.logger.Warn("Tool arguments failed validation, attempting repair",
			zap.String("tool", t.Name),
			zap.Error(err),
		)
		args, err = r.repair(ctx, t, rawArgs)
		if err != nil {
			return "", &ArgumentError{Tool: t.Name, Err: err}
		}
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: t.Name, Err: err}
	}

	return result, nil
}

// repair is the bounded correction pass: skeleton plus broken arguments go
// to the fixer model, wrapper objects are flattened, and the cleaned value
// is validated once. No second attempt.
func (r *Registry) repair(ctx context.Context, t *Tool, rawArgs string) (map[string]any, error) {
	skeleton, err := json.MarshalIndent(t.Params.Skeleton(), "", "  ")
	if err != nil {
		return nil, err
	}

	fixed, err := r.fixer.FixArguments(ctx, t.Name, string(skeleton), rawArgs)
	if err != nil {
		return nil, fmt.Errorf("repair call failed: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(stripCodeFences(fixed)), &value); err != nil {
		return nil, fmt.Errorf("repaired arguments are not valid JSON: %w", err)
	}

	obj, ok := FlattenValueWrappers(value).(map[string]any)
	if !ok {
		return nil, errors.New("repaired arguments are not an object")
	}

	args := Normalize(obj)
	if err := t.Params.Validate(args); err != nil {
		return nil, err
	}

	r.logger.Info("Tool arguments repaired", zap.String("tool", t.Name))
	return args, nil
}

func parseArgs(rawArgs string) (map[string]any, error) {
	rawArgs = strings.TrimSpace(rawArgs)
	if rawArgs == "" {
		return map[string]any{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &obj); err != nil {
		return nil, err
	}

	return Normalize(obj), nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
