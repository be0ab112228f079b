package envmodules

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-version"
)

// ModuleCatalog is the name -> descriptor lookup used to resolve dependency
// edges. Descriptors returned by a catalog must be treated as read-only.
type ModuleCatalog interface {
	Lookup(fullName string) (*ModuleDescriptor, bool)
}

// Catalog is an in-memory ModuleCatalog. It owns deep copies of the
// registered descriptors.
type Catalog struct {
	modules map[string]*ModuleDescriptor
	byName  map[string][]string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		modules: make(map[string]*ModuleDescriptor),
		byName:  make(map[string][]string),
	}
}

// Register adds a copy of d. Full names are unique within a catalog.
func (c *Catalog) Register(d *ModuleDescriptor) error {
	if d == nil {
		return ErrNilDescriptor
	}
	if d.FullName == "" || d.Name == "" {
		return fmt.Errorf("%w: %q", ErrEmptyModuleName, d.FullName)
	}
	if _, exists := c.modules[d.FullName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, d.FullName)
	}

	cpy, err := d.Clone()
	if err != nil {
		return err
	}
	SortSearchPaths(cpy.SearchPaths)

	c.modules[cpy.FullName] = cpy
	c.byName[cpy.Name] = append(c.byName[cpy.Name], cpy.FullName)
	slices.Sort(c.byName[cpy.Name])
	return nil
}

// Lookup resolves a full name. When no module has that full name, the value
// is treated as a short module name and the latest version is returned.
func (c *Catalog) Lookup(fullName string) (*ModuleDescriptor, bool) {
	if d, ok := c.modules[fullName]; ok {
		return d, true
	}
	return c.Latest(fullName)
}

// Latest returns the descriptor with the highest version among all modules
// named name. Versions that parse as semantic versions beat those that do
// not; unparsable versions are compared lexically.
func (c *Catalog) Latest(name string) (*ModuleDescriptor, bool) {
	var best *ModuleDescriptor
	for _, fullName := range c.byName[name] {
		candidate := c.modules[fullName]
		if best == nil || compareVersions(candidate.Version, best.Version) > 0 {
			best = candidate
		}
	}
	return best, best != nil
}

// Update applies fn to the stored descriptor named fullName, or to every
// version of a module when fullName is a short module name. Modules that are
// already loaded keep the copy they were loaded with.
func (c *Catalog) Update(fullName string, fn func(*ModuleDescriptor) error) error {
	targets := []string{fullName}
	if _, ok := c.modules[fullName]; !ok {
		targets = c.byName[fullName]
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownModule, fullName)
	}

	for _, target := range targets {
		d := c.modules[target]
		if err := fn(d); err != nil {
			return fmt.Errorf("failed to update module %s: %w", target, err)
		}
		SortSearchPaths(d.SearchPaths)
	}
	return nil
}

// All returns every registered descriptor sorted by full name.
func (c *Catalog) All() []*ModuleDescriptor {
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	slices.Sort(names)

	result := make([]*ModuleDescriptor, 0, len(names))
	for _, name := range names {
		result = append(result, c.modules[name])
	}
	return result
}

// Len returns the number of registered descriptors.
func (c *Catalog) Len() int {
	return len(c.modules)
}

func compareVersions(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
