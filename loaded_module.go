package envmodules

import (
	"maps"
	"slices"
)

// ModuleState is the lifecycle state of a module within a DependencyGraph.
type ModuleState string

const (
	ModuleStateUnloaded  ModuleState = "unloaded"
	ModuleStateLoading   ModuleState = "loading"
	ModuleStateLoaded    ModuleState = "loaded"
	ModuleStateUnloading ModuleState = "unloading"
)

// AliasDefinition is a shell alias contributed by a module.
type AliasDefinition struct {
	Name           string
	ModuleFullName string
	Definition     string
	Description    string
}

// FunctionDefinition is a shell function contributed by a module. Body is
// opaque to the engine; the shell layer decides how to register it.
type FunctionDefinition struct {
	Name           string
	ModuleFullName string
	Body           string
}

// LoadedModule is the runtime record of a resident module. It owns a private
// copy of its descriptor plus the reference counter and the module's
// contributions. Records are created and destroyed by the DependencyGraph only.
type LoadedModule struct {
	descriptor *ModuleDescriptor
	source     *ModuleDescriptor
	graph      *DependencyGraph

	root            string
	detectedVersion string
	refCount        int
	direct          bool
	state           ModuleState

	aliases   map[string]AliasDefinition
	functions map[string]FunctionDefinition

	// loadedDeps are the dependencies that were loaded on behalf of this
	// module and must be released when it is unloaded.
	loadedDeps []string
	// handedOver holds the references a DirectUnload module passed on when
	// it was removed right after its load.
	handedOver []string
}

// Descriptor returns the module's descriptor. It must be treated as read-only.
func (m *LoadedModule) Descriptor() *ModuleDescriptor { return m.descriptor }

// FullName returns the unique module key.
func (m *LoadedModule) FullName() string { return m.descriptor.FullName }

// SourceModule returns the module whose dependency resolution loaded this one,
// or nil when the module was loaded directly.
func (m *LoadedModule) SourceModule() *ModuleDescriptor { return m.source }

// Root returns the resolved module root; empty for meta and abstract modules.
func (m *LoadedModule) Root() string { return m.root }

// Version returns the detected version when the descriptor configures a
// VersionSource, and the declared version otherwise.
func (m *LoadedModule) Version() string {
	if m.detectedVersion != "" {
		return m.detectedVersion
	}
	return m.descriptor.Version
}

// ReferenceCount returns the number of outstanding loads.
func (m *LoadedModule) ReferenceCount() int { return m.refCount }

// IsLoadedDirectly reports whether the user requested the module explicitly.
func (m *LoadedModule) IsLoadedDirectly() bool { return m.direct }

// State returns the lifecycle state of the record.
func (m *LoadedModule) State() ModuleState { return m.state }

// Dependencies returns the dependencies this module holds a reference on.
func (m *LoadedModule) Dependencies() []string { return slices.Clone(m.loadedDeps) }

// Aliases returns a copy of the module's aliases keyed by name.
func (m *LoadedModule) Aliases() map[string]AliasDefinition { return maps.Clone(m.aliases) }

// Functions returns a copy of the module's functions keyed by name.
func (m *LoadedModule) Functions() map[string]FunctionDefinition { return maps.Clone(m.functions) }

// Paths returns the path mutations currently registered by the module.
func (m *LoadedModule) Paths() []PathMutation {
	return m.graph.composer.Mutations(m.FullName())
}

// AddAppendPath appends value to variable.
func (m *LoadedModule) AddAppendPath(variable, value, key string) (PathMutation, error) {
	return m.graph.composer.AddMutation(m.FullName(), PathAppend, variable, value, key)
}

// AddPrependPath prepends value to variable.
func (m *LoadedModule) AddPrependPath(variable, value, key string) (PathMutation, error) {
	return m.graph.composer.AddMutation(m.FullName(), PathPrepend, variable, value, key)
}

// AddSetPath sets variable to value.
func (m *LoadedModule) AddSetPath(variable, value string) (PathMutation, error) {
	return m.graph.composer.AddMutation(m.FullName(), PathSet, variable, value, "")
}

// AddAlias registers an alias, replacing an alias of the same name.
func (m *LoadedModule) AddAlias(name, definition, description string) AliasDefinition {
	alias := AliasDefinition{
		Name:           name,
		ModuleFullName: m.FullName(),
		Definition:     definition,
		Description:    description,
	}
	m.aliases[name] = alias
	m.graph.events.emit(EventTypeAliasAdded, map[string]any{
		"module":     m.FullName(),
		"alias":      name,
		"definition": definition,
	})
	return alias
}

// AddFunction registers a function, replacing a function of the same name.
func (m *LoadedModule) AddFunction(name, body string) FunctionDefinition {
	function := FunctionDefinition{
		Name:           name,
		ModuleFullName: m.FullName(),
		Body:           body,
	}
	m.functions[name] = function
	m.graph.events.emit(EventTypeFunctionAdded, map[string]any{
		"module":   m.FullName(),
		"function": name,
	})
	return function
}

// retract removes every contribution of the module: path mutations from the
// composer, then aliases and functions.
func (m *LoadedModule) retract() {
	m.graph.composer.RemoveMutationsForModule(m.FullName())

	for _, name := range sortedKeys(m.aliases) {
		delete(m.aliases, name)
		m.graph.events.emit(EventTypeAliasRemoved, map[string]any{"module": m.FullName(), "alias": name})
	}
	for _, name := range sortedKeys(m.functions) {
		delete(m.functions, name)
		m.graph.events.emit(EventTypeFunctionRemoved, map[string]any{"module": m.FullName(), "function": name})
	}
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
