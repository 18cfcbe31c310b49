// Package registry holds the tool catalog consulted at plan-validation and
// execution time. The registry is populated at startup and read-only after
// that; enabling or disabling tools is an administrative action that happens
// before the orchestrator starts taking sessions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownTool is returned when no tool is registered under a name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolDisabled is returned for tools present but switched off.
	ErrToolDisabled = errors.New("tool disabled")
)

// Spec describes a tool: its parameters, whether it mutates a resource,
// and how the executor should treat it.
type Spec struct {
	Name        string
	Description string

	// Params is the schema checked at plan-validation time, before a plan
	// ever reaches execution.
	Params map[string]ParamSpec

	// Mutating tools get a backup snapshot before invocation.
	// ResourceParam names the parameter holding the resource reference
	// (for example the file path) that the snapshot covers.
	Mutating      bool
	ResourceParam string

	// NeedsCredential tools have a secret fetched per invocation and
	// handed over via the context, never cached.
	NeedsCredential bool

	// TimeoutSeconds bounds one invocation. Zero means the executor's
	// default applies.
	TimeoutSeconds int

	Disabled bool
}

// Tool is one invocable capability.
type Tool interface {
	Spec() Spec
	Invoke(ctx context.Context, params map[string]interface{}) (string, error)
}

// Registry resolves tool names to handles.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	specs map[string]Spec // spec overrides applied from the catalog
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		specs: make(map[string]Spec),
	}
}

// Register adds a tool. Later registrations under the same name replace
// earlier ones; this only happens during startup wiring.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec := t.Spec()
	r.tools[spec.Name] = t
	r.specs[spec.Name] = spec
}

// Resolve returns the handle for a tool name. Disabled tools resolve to an
// error so plans referencing them fail validation, not execution.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if r.specs[name].Disabled {
		return nil, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	return t, nil
}

// SpecOf returns the (possibly catalog-adjusted) spec for a tool.
func (r *Registry) SpecOf(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return spec, nil
}

// CheckParams validates params against a tool's schema.
func (r *Registry) CheckParams(name string, params map[string]interface{}) error {
	spec, err := r.SpecOf(name)
	if err != nil {
		return err
	}
	if spec.Disabled {
		return fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	return checkSchema(spec.Params, params)
}

// Names lists registered tool names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type credentialKey struct{}

// WithCredential attaches a per-invocation secret to the context. The
// orchestration core never persists it.
func WithCredential(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, credentialKey{}, secret)
}

// CredentialFrom extracts the per-invocation secret, if any.
func CredentialFrom(ctx context.Context) string {
	if s, ok := ctx.Value(credentialKey{}).(string); ok {
		return s
	}
	return ""
}
