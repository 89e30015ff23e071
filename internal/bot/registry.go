package bot

import "sync"

// Registry collects modules before the bot starts. Modules self-register
// from init(), so registration must be safe before and after Start.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a module.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Modules returns a copy of the registered modules; later registrations
// do not leak into an already-taken snapshot.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]Module, len(r.modules))
	copy(snapshot, r.modules)
	return snapshot
}

// The global registry backs blank-import module wiring: importing a
// module package for side effects registers it here.
var globalRegistry = NewRegistry()

// Register adds a module to the global registry. Called from module
// init() functions.
func Register(m Module) {
	globalRegistry.Register(m)
}

// Modules returns the globally registered modules.
func Modules() []Module {
	return globalRegistry.Modules()
}

// ResetGlobalRegistry replaces the global registry with an empty one.
// Tests use this to isolate registrations.
func ResetGlobalRegistry() {
	globalRegistry = NewRegistry()
}
