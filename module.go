// Package envmodules provides the composition and lifecycle engine behind an
// environment module system.
//
// An environment module is a named, versioned unit that contributes
// environment-variable mutations, shell aliases and shell functions, and that
// may depend on other modules. This package computes what environment state a
// set of loaded modules implies and in which order they must be loaded and
// unloaded. It does not parse description files and it never touches a real
// shell; hosts feed it ModuleDescriptor values and render the resulting
// CompositionSnapshot, aliases and functions themselves.
//
// Basic usage:
//
//	catalog := envmodules.NewCatalog()
//	_ = catalog.Register(envmodules.NewModuleDescriptor("gcc", "12.2", "x86_64",
//		envmodules.WithSearchPath(envmodules.SearchPathCandidate{
//			Key: "/opt/gcc", Type: envmodules.SearchPathDirectory, Priority: 10, IsDefault: true,
//		}),
//		envmodules.WithRequiredItem(envmodules.RequiredItemFile, "bin/gcc"),
//		envmodules.WithPath(envmodules.PathPrepend, "PATH", "${MODULE_ROOT}/bin", ""),
//	))
//
//	graph, err := envmodules.NewDependencyGraph(catalog)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := graph.LoadByName("gcc-12.2-x86_64", true); err != nil {
//		log.Fatal(err)
//	}
//	snapshot := graph.Composer().Snapshot()
package envmodules

import (
	"fmt"
	"strings"

	"github.com/mitchellh/copystructure"
)

// ModuleType classifies a module. Meta and abstract modules have no root
// directory; they only bundle dependencies or parameters.
type ModuleType string

const (
	// ModuleTypeDefault is a regular module with a root directory on disk.
	ModuleTypeDefault ModuleType = "Default"

	// ModuleTypeMeta groups other modules and has no root directory.
	ModuleTypeMeta ModuleType = "Meta"

	// ModuleTypeAbstract describes shared behaviour and has no root directory.
	ModuleTypeAbstract ModuleType = "Abstract"
)

// RequiresRoot reports whether modules of this type need a resolved root
// directory before they can be loaded.
func (t ModuleType) RequiresRoot() bool {
	return t != ModuleTypeMeta && t != ModuleTypeAbstract
}

// RequiredItemType identifies how a RequiredItem is checked against a
// candidate root directory.
type RequiredItemType string

const (
	// RequiredItemFile requires a regular file at candidate/value.
	RequiredItemFile RequiredItemType = "FILE"

	// RequiredItemDirectory requires a directory at candidate/value.
	RequiredItemDirectory RequiredItemType = "DIRECTORY"

	// RequiredItemGlob requires at least one match of the doublestar pattern
	// value below the candidate directory.
	RequiredItemGlob RequiredItemType = "GLOB"
)

// RequiredItem is an artifact that must exist below a search path candidate
// for the candidate to be accepted as module root.
type RequiredItem struct {
	Type  RequiredItemType
	Value string
}

// Dependency is an edge to another module, referenced by full name.
type Dependency struct {
	// ModuleFullName is the full name (or the short name) of the dependency.
	ModuleFullName string

	// Optional dependencies that fail to load are skipped without failing
	// the dependent module.
	Optional bool
}

// PathDeclaration is a statically declared environment-variable mutation.
// Value may reference ${MODULE_ROOT}, ${MODULE_NAME}, ${MODULE_VERSION} and
// ${MODULE_ARCH}; they are expanded when the module is loaded.
type PathDeclaration struct {
	Type     PathType
	Variable string
	Value    string
	Key      string
}

// ModuleDescriptor is the static metadata of a discoverable module. It is
// immutable once handed to a Catalog or DependencyGraph: both only keep deep
// copies.
type ModuleDescriptor struct {
	// FullName is the unique key of the module, e.g. "gcc-12.2-x86_64".
	FullName string

	Name              string
	Version           string
	Architecture      string
	AdditionalOptions string
	Type              ModuleType

	// ModuleRoot is a pre-resolved root directory. Empty for meta and
	// abstract modules, and for modules whose root is found via SearchPaths.
	ModuleRoot string

	// Dependencies are loaded in declaration order before the module itself.
	Dependencies []Dependency

	// SearchPaths are kept sorted descending by priority; ties keep their
	// declaration order.
	SearchPaths []SearchPathCandidate

	RequiredItems []RequiredItem
	MergeModules  []string
	Parameters    map[ParameterKey]ParameterValue

	// DirectUnload makes the module disappear right after it was loaded,
	// leaving only its dependencies resident.
	DirectUnload bool

	Category string

	Paths     []PathDeclaration
	Aliases   []AliasDefinition
	Functions []FunctionDefinition

	// VersionSource, when set, is used to detect the installed version below
	// the resolved root.
	VersionSource *VersionSource
}

// DescriptorOption configures a ModuleDescriptor built by NewModuleDescriptor.
type DescriptorOption func(*ModuleDescriptor)

// NewModuleDescriptor creates a descriptor of type ModuleTypeDefault. The full
// name is derived from name, version, architecture and additional options
// unless WithFullName overrides it.
func NewModuleDescriptor(name, version, architecture string, opts ...DescriptorOption) *ModuleDescriptor {
	d := &ModuleDescriptor{
		Name:         name,
		Version:      version,
		Architecture: architecture,
		Type:         ModuleTypeDefault,
		Parameters:   make(map[ParameterKey]ParameterValue),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.FullName == "" {
		d.FullName = BuildFullName(d.Name, d.Version, d.Architecture, d.AdditionalOptions)
	}
	SortSearchPaths(d.SearchPaths)

	return d
}

// BuildFullName joins the non-empty identity parts with "-".
func BuildFullName(name, version, architecture, additionalOptions string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{name, version, architecture, additionalOptions} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// WithFullName overrides the derived full name.
func WithFullName(fullName string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.FullName = fullName }
}

// WithAdditionalOptions sets the additional identity options (e.g. "debug").
func WithAdditionalOptions(options string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.AdditionalOptions = options }
}

// WithModuleType sets the module type.
func WithModuleType(t ModuleType) DescriptorOption {
	return func(d *ModuleDescriptor) { d.Type = t }
}

// WithModuleRoot sets a pre-resolved root directory.
func WithModuleRoot(root string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.ModuleRoot = root }
}

// WithDependency appends a mandatory dependency.
func WithDependency(fullName string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.Dependencies = append(d.Dependencies, Dependency{ModuleFullName: fullName})
	}
}

// WithOptionalDependency appends an optional dependency.
func WithOptionalDependency(fullName string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.Dependencies = append(d.Dependencies, Dependency{ModuleFullName: fullName, Optional: true})
	}
}

// WithSearchPath adds a search path candidate.
func WithSearchPath(candidate SearchPathCandidate) DescriptorOption {
	return func(d *ModuleDescriptor) { d.SearchPaths = append(d.SearchPaths, candidate) }
}

// WithRequiredItem adds an item that must exist below the module root.
func WithRequiredItem(itemType RequiredItemType, value string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.RequiredItems = append(d.RequiredItems, RequiredItem{Type: itemType, Value: value})
	}
}

// WithMergeModules adds module files that are folded into this module.
func WithMergeModules(files ...string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.MergeModules = append(d.MergeModules, files...) }
}

// WithParameter declares a default parameter value.
func WithParameter(name, virtualEnvironment, value string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		key := ParameterKey{Name: name, VirtualEnvironment: virtualEnvironment}
		d.Parameters[key] = ParameterValue{Name: name, VirtualEnvironment: virtualEnvironment, Value: value}
	}
}

// WithDirectUnload marks the module as a wrapper that evaporates after its
// dependencies were loaded.
func WithDirectUnload() DescriptorOption {
	return func(d *ModuleDescriptor) { d.DirectUnload = true }
}

// WithCategory sets the module category.
func WithCategory(category string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.Category = category }
}

// WithPath declares an environment-variable mutation contributed on load.
func WithPath(pathType PathType, variable, value, key string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.Paths = append(d.Paths, PathDeclaration{Type: pathType, Variable: variable, Value: value, Key: key})
	}
}

// WithAlias declares a shell alias contributed on load.
func WithAlias(name, definition, description string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.Aliases = append(d.Aliases, AliasDefinition{Name: name, Definition: definition, Description: description})
	}
}

// WithFunction declares a shell function contributed on load.
func WithFunction(name, body string) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.Functions = append(d.Functions, FunctionDefinition{Name: name, Body: body})
	}
}

// WithVersionSource configures version detection below the resolved root.
func WithVersionSource(src VersionSource) DescriptorOption {
	return func(d *ModuleDescriptor) { d.VersionSource = &src }
}

// Equal reports whether both descriptors describe the same module, i.e. name,
// version and architecture match.
func (d *ModuleDescriptor) Equal(other *ModuleDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Name == other.Name && d.Version == other.Version && d.Architecture == other.Architecture
}

// Clone returns a deep copy of the descriptor.
func (d *ModuleDescriptor) Clone() (*ModuleDescriptor, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	cpy, err := copystructure.Copy(d)
	if err != nil {
		return nil, fmt.Errorf("failed to copy descriptor %s: %w", d.FullName, err)
	}
	return cpy.(*ModuleDescriptor), nil
}

// AddSearchPath adds a candidate, typically a user-defined one, keeping the
// descending priority order. Exact duplicates are ignored.
func (d *ModuleDescriptor) AddSearchPath(candidate SearchPathCandidate) {
	for _, existing := range d.SearchPaths {
		if existing == candidate {
			return
		}
	}
	d.SearchPaths = append(d.SearchPaths, candidate)
	SortSearchPaths(d.SearchPaths)
}

// MandatoryDependencies returns the non-optional dependency names in
// declaration order.
func (d *ModuleDescriptor) MandatoryDependencies() []string {
	names := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if !dep.Optional {
			names = append(names, dep.ModuleFullName)
		}
	}
	return names
}

func (d *ModuleDescriptor) String() string {
	return d.FullName
}
