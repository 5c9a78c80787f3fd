// Package registry implements the Tool Registry (C1): the canonical map
// from tool name to descriptor, immutable once a scan begins.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// Handler executes a tool's host-local or sandbox-dispatch behavior. A
// handler bound to a sandbox=true descriptor must never be invoked
// directly on the host; internal/sandbox owns routing such calls to the
// in-container worker. A handler bound to sandbox=false must not require
// container resources.
type Handler func(ctx context.Context, agentID string, args json.RawMessage) (string, error)

// entry pairs a descriptor with its handler and compiled schema.
type entry struct {
	descriptor models.ToolDescriptor
	handler    Handler
	schema     *jsonschema.Schema
}

// Registry is the thread-safe map from tool name to descriptor. Register
// is expected to run entirely during a startup phase; Freeze is called
// once the scan begins, after which Register rejects new or conflicting
// entries (§4.1).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	frozen  bool
}

// New returns an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool descriptor and its handler. Re-registering a name
// with an identical descriptor is a no-op; re-registering a name with a
// conflicting descriptor, or registering after Freeze, is an error.
func (r *Registry) Register(descriptor models.ToolDescriptor, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[descriptor.Name]; ok {
		if existing.descriptor.Equal(descriptor) {
			return nil
		}
		return strixerr.New(strixerr.KindConfig,
			fmt.Sprintf("tool %q already registered with a conflicting descriptor", descriptor.Name))
	}

	if r.frozen {
		return strixerr.New(strixerr.KindConfig,
			fmt.Sprintf("cannot register tool %q: registry is frozen for the running scan", descriptor.Name))
	}

	compiled, err := compileSchema(descriptor.Name, descriptor.Schema)
	if err != nil {
		return strixerr.Wrap(strixerr.KindConfig, err,
			fmt.Sprintf("tool %q has an invalid schema", descriptor.Name))
	}

	r.entries[descriptor.Name] = &entry{descriptor: descriptor, handler: handler, schema: compiled}
	return nil
}

// Freeze makes the registry immutable. Called once, when the scan begins.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the descriptor for name, or false if not registered.
func (r *Registry) Lookup(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return models.ToolDescriptor{}, false
	}
	return e.descriptor, true
}

// Schemas returns every registered descriptor, for building the model's
// tool specification.
func (r *Registry) Schemas() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.descriptor)
	}
	return out
}

// Validate checks args against the tool's declared schema, returning a
// KindToolError on mismatch so the caller can feed it back to the model
// as a tool-result error (§7).
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return strixerr.New(strixerr.KindToolError, fmt.Sprintf("tool not found: %s", name))
	}
	if e.schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return strixerr.Wrap(strixerr.KindToolError, err, fmt.Sprintf("tool %q: arguments are not valid JSON", name))
	}
	if err := e.schema.Validate(v); err != nil {
		return strixerr.Wrap(strixerr.KindToolError, err, fmt.Sprintf("tool %q: arguments do not match schema", name))
	}
	return nil
}

// Execute validates args against the tool's schema and, if valid,
// invokes its handler.
func (r *Registry) Execute(ctx context.Context, agentID, name string, args json.RawMessage) (string, error) {
	if err := r.Validate(name, args); err != nil {
		return "", err
	}
	r.mu.RLock()
	e := r.entries[name]
	r.mu.RUnlock()
	return e.handler(ctx, agentID, args)
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	uri := "strix://tools/" + name + ".schema.json"
	if err := c.AddResource(uri, bytesReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(uri)
}
