package envmodules

import (
	"context"
	"fmt"
	"slices"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/hashicorp/go-multierror"
)

const graphEventSource = "envmodules/dependency-graph"

// ModuleInitializer runs after a module's static contributions have been
// registered and before the module is marked loaded. It is the hook hosts use
// to register contributions computed at load time through the LoadedModule
// helpers. Returning an error aborts the load.
type ModuleInitializer func(m *LoadedModule) error

// DependencyGraph is a load session: it owns the reference-counted
// LoadedModule table and the PathComposer holding their contributions.
//
// A graph is not safe for concurrent use. Hosts must serialize Load and
// Unload calls.
type DependencyGraph struct {
	catalog     ModuleCatalog
	resolver    RootResolver
	composer    *PathComposer
	events      *eventSubject
	initializer ModuleInitializer
	envLookup   func(string) (string, bool)
	logger      Logger

	modules map[string]*LoadedModule
	states  map[string]ModuleState
	order   []string
}

// GraphOption configures a DependencyGraph.
type GraphOption func(*DependencyGraph) error

// WithGraphLogger sets the logger used by the graph and the components it
// creates.
func WithGraphLogger(logger Logger) GraphOption {
	return func(g *DependencyGraph) error {
		if logger == nil {
			return fmt.Errorf("%w: logger must not be nil", ErrInvalidConfig)
		}
		g.logger = logger
		return nil
	}
}

// WithRootResolver replaces the SearchPathResolver used to locate module roots.
func WithRootResolver(resolver RootResolver) GraphOption {
	return func(g *DependencyGraph) error {
		if resolver == nil {
			return fmt.Errorf("%w: root resolver must not be nil", ErrInvalidConfig)
		}
		g.resolver = resolver
		return nil
	}
}

// WithModuleInitializer installs a hook run for every module being loaded.
func WithModuleInitializer(initializer ModuleInitializer) GraphOption {
	return func(g *DependencyGraph) error {
		g.initializer = initializer
		return nil
	}
}

// WithSessionEnvironment resolves environment variable search paths through
// lookup instead of the process environment. Ignored when a custom
// RootResolver is installed.
func WithSessionEnvironment(lookup func(string) (string, bool)) GraphOption {
	return func(g *DependencyGraph) error {
		g.envLookup = lookup
		return nil
	}
}

// NewDependencyGraph creates an empty session that resolves dependency edges
// through catalog.
func NewDependencyGraph(catalog ModuleCatalog, opts ...GraphOption) (*DependencyGraph, error) {
	if catalog == nil {
		return nil, ErrCatalogNil
	}

	g := &DependencyGraph{
		catalog: catalog,
		logger:  nopLogger{},
		modules: make(map[string]*LoadedModule),
		states:  make(map[string]ModuleState),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	if g.resolver == nil {
		g.resolver = NewSearchPathResolver(WithEnvLookup(g.envLookup), WithResolverLogger(g.logger))
	}
	g.events = newEventSubject(graphEventSource, g.logger)
	g.composer = NewPathComposer(WithComposerLogger(g.logger))
	g.composer.Observe(g.onPathChange)

	return g, nil
}

// Composer returns the composer holding the contributions of every loaded
// module. Hosts render its Snapshot.
func (g *DependencyGraph) Composer() *PathComposer {
	return g.composer
}

// Load loads d and, first, its dependencies. Loading an already resident
// module only increments its reference count.
func (g *DependencyGraph) Load(d *ModuleDescriptor, isDirect bool) (*LoadedModule, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	return g.load(d, isDirect, nil)
}

// LoadByName looks fullName up in the catalog and loads it. A short module
// name selects the latest registered version.
func (g *DependencyGraph) LoadByName(fullName string, isDirect bool) (*LoadedModule, error) {
	d, ok := g.catalog.Lookup(fullName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, fullName)
	}
	return g.load(d, isDirect, nil)
}

func (g *DependencyGraph) load(d *ModuleDescriptor, isDirect bool, source *ModuleDescriptor) (*LoadedModule, error) {
	name := d.FullName

	switch g.State(name) {
	case ModuleStateLoaded:
		m := g.modules[name]
		m.refCount++
		m.direct = m.direct || isDirect
		g.logger.Debug("Module already loaded", "module", name, "references", m.refCount)
		g.events.emit(EventTypeModuleReferenced, map[string]any{
			"module":     name,
			"references": m.refCount,
			"direct":     m.direct,
		})
		return m, nil
	case ModuleStateLoading:
		return nil, fmt.Errorf("%w: %s is already being loaded", ErrCircularDependency, name)
	case ModuleStateUnloading:
		return nil, fmt.Errorf("%w: %s", ErrModuleBusy, name)
	}

	desc, err := d.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy descriptor of %s: %w", name, err)
	}

	g.states[name] = ModuleStateLoading
	g.logger.Debug("Loading module", "module", name, "direct", isDirect)
	g.events.emit(EventTypeModuleLoading, map[string]any{"module": name, "direct": isDirect})

	var loadedDeps []string
	for _, dep := range desc.Dependencies {
		depModule, err := g.loadDependency(desc, dep)
		if err != nil {
			if dep.Optional {
				g.logger.Warn("Skipping optional dependency", "module", name, "dependency", dep.ModuleFullName, "error", err)
				g.events.emit(EventTypeDependencySkipped, map[string]any{
					"module":     name,
					"dependency": dep.ModuleFullName,
					"error":      err.Error(),
				})
				continue
			}
			return nil, g.abort(name, loadedDeps, fmt.Errorf("%w: %s requires %s: %w", ErrDependencyLoadFailed, name, dep.ModuleFullName, err))
		}
		if depModule.state == ModuleStateLoaded {
			loadedDeps = append(loadedDeps, depModule.FullName())
			continue
		}
		// A DirectUnload dependency is gone already; its own dependencies
		// are released by this module from now on.
		loadedDeps = append(loadedDeps, depModule.handedOver...)
	}

	root, err := g.resolver.ResolveRoot(desc)
	if err != nil {
		return nil, g.abort(name, loadedDeps, fmt.Errorf("failed to load module %s: %w", name, err))
	}
	desc.ModuleRoot = root

	m := &LoadedModule{
		descriptor: desc,
		source:     source,
		graph:      g,
		root:       root,
		refCount:   1,
		direct:     isDirect,
		state:      ModuleStateLoading,
		aliases:    make(map[string]AliasDefinition),
		functions:  make(map[string]FunctionDefinition),
		loadedDeps: loadedDeps,
	}
	if desc.VersionSource != nil {
		detected, err := DetectVersion(root, *desc.VersionSource)
		if err != nil {
			g.logger.Warn("Version detection failed, using declared version", "module", name, "version", desc.Version, "error", err)
		} else {
			m.detectedVersion = detected
		}
	}
	g.modules[name] = m

	if err := g.registerContributions(m); err != nil {
		m.retract()
		delete(g.modules, name)
		return nil, g.abort(name, loadedDeps, fmt.Errorf("failed to register contributions of %s: %w", name, err))
	}
	if g.initializer != nil {
		if err := g.initializer(m); err != nil {
			m.retract()
			delete(g.modules, name)
			return nil, g.abort(name, loadedDeps, fmt.Errorf("%w: %s: %w", ErrModuleInitFailed, name, err))
		}
	}

	m.state = ModuleStateLoaded
	g.states[name] = ModuleStateLoaded
	g.order = append(g.order, name)

	g.logger.Info("Module loaded", "module", name, "root", root, "direct", isDirect, "dependencies", len(loadedDeps))
	g.events.emit(EventTypeModuleLoaded, map[string]any{
		"module":       name,
		"version":      m.Version(),
		"root":         root,
		"direct":       isDirect,
		"dependencies": loadedDeps,
	})

	if desc.DirectUnload {
		m.handedOver = g.evaporate(m, source == nil)
	}
	return m, nil
}

func (g *DependencyGraph) loadDependency(parent *ModuleDescriptor, dep Dependency) (*LoadedModule, error) {
	d, ok := g.catalog.Lookup(dep.ModuleFullName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, dep.ModuleFullName)
	}
	return g.load(d, false, parent)
}

// abort releases the dependencies loaded during a failed attempt, in reverse
// order, and forces the module back to unloaded.
func (g *DependencyGraph) abort(name string, loadedDeps []string, cause error) error {
	for i := len(loadedDeps) - 1; i >= 0; i-- {
		if err := g.Unload(loadedDeps[i]); err != nil {
			g.logger.Error("Failed to roll back dependency", "module", name, "dependency", loadedDeps[i], "error", err)
		}
	}
	delete(g.states, name)

	g.logger.Error("Module load failed", "module", name, "error", cause)
	g.events.emit(EventTypeModuleFailed, map[string]any{"module": name, "error": cause.Error()})
	return cause
}

// registerContributions registers the static paths, aliases and functions of
// the descriptor. Values may reference ${MODULE_ROOT}, ${MODULE_NAME},
// ${MODULE_VERSION} and ${MODULE_ARCH}.
func (g *DependencyGraph) registerContributions(m *LoadedModule) error {
	desc := m.descriptor
	expander := strings.NewReplacer(
		"${MODULE_ROOT}", m.root,
		"${MODULE_NAME}", desc.Name,
		"${MODULE_VERSION}", m.Version(),
		"${MODULE_ARCH}", desc.Architecture,
	)

	for _, p := range desc.Paths {
		if _, err := g.composer.AddMutation(desc.FullName, p.Type, p.Variable, expander.Replace(p.Value), p.Key); err != nil {
			return err
		}
	}
	for _, a := range desc.Aliases {
		m.AddAlias(a.Name, expander.Replace(a.Definition), a.Description)
	}
	for _, f := range desc.Functions {
		m.AddFunction(f.Name, expander.Replace(f.Body))
	}
	return nil
}

// evaporate removes a DirectUnload module right after its load and returns
// the dependency references it held. Its dependencies stay resident. When the
// module was loaded by the user they become directly loaded so the user can
// unload them; otherwise the caller takes over the returned references.
func (g *DependencyGraph) evaporate(m *LoadedModule, topLevel bool) []string {
	name := m.FullName()
	m.state = ModuleStateUnloading
	g.states[name] = ModuleStateUnloading
	m.retract()

	if topLevel {
		for _, dep := range m.loadedDeps {
			if depModule, ok := g.modules[dep]; ok {
				depModule.direct = true
			}
		}
	}
	deps := m.loadedDeps
	m.loadedDeps = nil
	g.discard(m)
	g.logger.Debug("Module unloaded directly after load", "module", name, "residentDependencies", deps)
	return deps
}

// Unload releases one reference on a module. When the last reference is
// released its contributions are retracted and its dependencies are unloaded
// in reverse order. A short module name is accepted when exactly one loaded
// module has that name.
func (g *DependencyGraph) Unload(fullName string) error {
	m, err := g.resident(fullName)
	if err != nil {
		return err
	}
	if m.state != ModuleStateLoaded {
		return fmt.Errorf("%w: %s is %s", ErrModuleNotLoaded, m.FullName(), m.state)
	}

	m.refCount--
	if m.refCount > 0 {
		g.logger.Debug("Module still referenced", "module", m.FullName(), "references", m.refCount)
		g.events.emit(EventTypeModuleReleased, map[string]any{"module": m.FullName(), "references": m.refCount})
		return nil
	}
	return g.teardown(m)
}

func (g *DependencyGraph) teardown(m *LoadedModule) error {
	name := m.FullName()
	m.state = ModuleStateUnloading
	g.states[name] = ModuleStateUnloading
	m.retract()

	var result *multierror.Error
	for i := len(m.loadedDeps) - 1; i >= 0; i-- {
		if err := g.Unload(m.loadedDeps[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to unload dependency %s of %s: %w", m.loadedDeps[i], name, err))
		}
	}

	g.discard(m)
	g.logger.Info("Module unloaded", "module", name)
	return result.ErrorOrNil()
}

func (g *DependencyGraph) discard(m *LoadedModule) {
	name := m.FullName()
	m.refCount = 0
	m.state = ModuleStateUnloaded
	delete(g.modules, name)
	delete(g.states, name)
	if i := slices.Index(g.order, name); i >= 0 {
		g.order = slices.Delete(g.order, i, i+1)
	}
	g.events.emit(EventTypeModuleUnloaded, map[string]any{"module": name})
}

func (g *DependencyGraph) resident(name string) (*LoadedModule, error) {
	if m, ok := g.modules[name]; ok {
		return m, nil
	}

	var matches []*LoadedModule
	for _, fullName := range g.order {
		if m := g.modules[fullName]; m.descriptor.Name == name {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if _, known := g.catalog.Lookup(name); !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrModuleNotLoaded, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousModule, name)
	}
}

// UnloadAll tears the session down in reverse load order, regardless of
// reference counts.
func (g *DependencyGraph) UnloadAll() error {
	var result *multierror.Error
	order := slices.Clone(g.order)
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		m, ok := g.modules[name]
		if !ok || m.state != ModuleStateLoaded {
			continue
		}
		m.refCount = 1
		if err := g.Unload(name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Plan returns the order in which loading fullName would load modules,
// dependencies first. Resident modules are included. Optional dependencies
// that could not be loaded are left out, as Load would skip them.
func (g *DependencyGraph) Plan(fullName string) ([]string, error) {
	d, ok := g.catalog.Lookup(fullName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, fullName)
	}

	var result []string
	visited := make(map[string]bool)
	temp := make(map[string]bool)

	var visit func(d *ModuleDescriptor, path []string) error
	visit = func(d *ModuleDescriptor, path []string) error {
		node := d.FullName
		path = append(path, node)
		if temp[node] {
			return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(path, " -> "))
		}
		if visited[node] {
			return nil
		}
		temp[node] = true
		defer delete(temp, node)

		for _, dep := range d.Dependencies {
			depDesc, ok := g.catalog.Lookup(dep.ModuleFullName)
			if !ok {
				if dep.Optional {
					continue
				}
				return fmt.Errorf("%w: %s depends on unknown module %s", ErrUnknownModule, node, dep.ModuleFullName)
			}

			mark := len(result)
			if err := visit(depDesc, slices.Clone(path)); err != nil {
				if !dep.Optional {
					return err
				}
				for _, planned := range result[mark:] {
					delete(visited, planned)
				}
				result = result[:mark]
			}
		}

		visited[node] = true
		result = append(result, node)
		return nil
	}

	if err := visit(d, nil); err != nil {
		return nil, err
	}

	g.logger.Debug("Module load plan", "module", fullName, "order", result)
	return result, nil
}

// State returns the lifecycle state of a module; unknown modules are unloaded.
func (g *DependencyGraph) State(fullName string) ModuleState {
	if state, ok := g.states[fullName]; ok {
		return state
	}
	return ModuleStateUnloaded
}

// Get returns the record of a loaded module.
func (g *DependencyGraph) Get(fullName string) (*LoadedModule, bool) {
	m, ok := g.modules[fullName]
	if !ok || m.state != ModuleStateLoaded {
		return nil, false
	}
	return m, true
}

// IsLoaded reports whether fullName is resident.
func (g *DependencyGraph) IsLoaded(fullName string) bool {
	return g.State(fullName) == ModuleStateLoaded
}

// LoadedModules returns the resident modules in load order.
func (g *DependencyGraph) LoadedModules() []*LoadedModule {
	result := make([]*LoadedModule, 0, len(g.order))
	for _, name := range g.order {
		result = append(result, g.modules[name])
	}
	return result
}

func (g *DependencyGraph) onPathChange(change PathChange) {
	g.events.emit(EventTypePathChanged, map[string]any{
		"module":         change.Mutation.ModuleFullName,
		"kind":           string(change.Kind),
		"type":           string(change.Mutation.Type),
		"variable":       change.Mutation.Variable,
		"key":            change.Mutation.Key,
		"values":         change.Mutation.Values,
		"previousValues": change.PreviousValues,
	})
}

// RegisterObserver implements Subject.
func (g *DependencyGraph) RegisterObserver(observer Observer, eventTypes ...string) error {
	return g.events.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver implements Subject.
func (g *DependencyGraph) UnregisterObserver(observer Observer) error {
	return g.events.UnregisterObserver(observer)
}

// NotifyObservers implements Subject.
func (g *DependencyGraph) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return g.events.NotifyObservers(ctx, event)
}

// GetObservers implements Subject.
func (g *DependencyGraph) GetObservers() []ObserverInfo {
	return g.events.GetObservers()
}
