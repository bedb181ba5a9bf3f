package schema

import "fmt"

// Registry owns the set of tool definitions, keyed by name.
//
// The registry is populated once during startup and treated as immutable
// from then on; concurrent readers therefore need no locking. Replacing
// the tool set at runtime requires building a fresh Registry and swapping
// the pointer, never editing definitions in place.
type Registry struct {
	defs  map[string]*Definition
	order []string // registration order, for a stable catalogue
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a tool definition. It fails with ErrDuplicateTool if the
// name is already taken.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, def.Name)
	}

	d := def // copy; callers must not be able to mutate registered state
	r.defs[def.Name] = &d
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns the definition for name, or nil if unregistered.
func (r *Registry) Get(name string) *Definition {
	return r.defs[name]
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.defs)
}
