package envmodules

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// PathType is the kind of environment-variable mutation.
type PathType string

const (
	// PathAppend adds values after the existing value of the variable.
	PathAppend PathType = "APPEND"

	// PathPrepend adds values in front of the existing value of the variable.
	PathPrepend PathType = "PREPEND"

	// PathSet replaces the value of the variable.
	PathSet PathType = "SET"
)

func (t PathType) valid() bool {
	return t == PathAppend || t == PathPrepend || t == PathSet
}

// renderRank orders path types the way the shell layer applies them.
func (t PathType) renderRank() int {
	switch t {
	case PathSet:
		return 0
	case PathPrepend:
		return 1
	default:
		return 2
	}
}

// PathMutation is one environment-variable change contributed by one module.
type PathMutation struct {
	ModuleFullName string
	Type           PathType
	Variable       string

	// Key lets a module keep several independent APPEND or PREPEND entries on
	// the same variable. SET mutations ignore it.
	Key string

	// Values are atomic entries; joining them is up to the renderer.
	Values []string
}

// Equal reports whether both mutations address the same entry. Values are not
// compared.
func (m PathMutation) Equal(other PathMutation) bool {
	return m.Variable == other.Variable && m.Type == other.Type && m.Key == other.Key
}

func (m PathMutation) String() string {
	identifier := m.Variable
	if m.Key != "" {
		identifier += " (" + m.Key + ")"
	}
	return fmt.Sprintf("%s = %s [%s] (%s)", identifier,
		strings.Join(m.Values, string(filepath.ListSeparator)), m.Type, m.ModuleFullName)
}

func (m PathMutation) clone() PathMutation {
	m.Values = slices.Clone(m.Values)
	return m
}

// mutationKey is the merge key of a mutation within the composer.
type mutationKey struct {
	module   string
	pathType PathType
	variable string
	key      string
}

func newMutationKey(module string, pathType PathType, variable, key string) mutationKey {
	if pathType == PathSet {
		key = ""
	}
	return mutationKey{module: module, pathType: pathType, variable: variable, key: key}
}

// PathChangeKind describes what happened to a mutation.
type PathChangeKind string

const (
	PathChangeAdded   PathChangeKind = "added"
	PathChangeUpdated PathChangeKind = "updated"
	PathChangeRemoved PathChangeKind = "removed"
)

// PathChange is delivered to PathObservers after every change. Mutation holds
// the state after the change (the last state for removals) and
// PreviousValues the values before it (nil for additions).
type PathChange struct {
	Kind           PathChangeKind
	Mutation       PathMutation
	PreviousValues []string
}

// PathObserver receives path changes synchronously.
type PathObserver func(change PathChange)

type pathEntry struct {
	mutation PathMutation
	seq      uint64
}

// PathComposer is the per-session registry of environment-variable mutations.
// It only stores and merges; it never touches a real environment.
type PathComposer struct {
	entries   map[mutationKey]*pathEntry
	seq       uint64
	observers []PathObserver
	logger    Logger
}

// ComposerOption configures a PathComposer.
type ComposerOption func(*PathComposer)

// WithComposerLogger sets the logger of the composer.
func WithComposerLogger(logger Logger) ComposerOption {
	return func(c *PathComposer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewPathComposer creates an empty composer.
func NewPathComposer(opts ...ComposerOption) *PathComposer {
	c := &PathComposer{
		entries: make(map[mutationKey]*pathEntry),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe registers an observer for every subsequent change.
func (c *PathComposer) Observe(observer PathObserver) {
	if observer != nil {
		c.observers = append(c.observers, observer)
	}
}

// AddMutation merges value into the mutation identified by
// (moduleFullName, pathType, variable, key). SET replaces the values and
// ignores key; APPEND and PREPEND append to the values of the entry with the
// same key. The returned mutation is a copy of the merged entry.
func (c *PathComposer) AddMutation(moduleFullName string, pathType PathType, variable, value, key string) (PathMutation, error) {
	if err := validateMutationKey(moduleFullName, pathType, variable); err != nil {
		return PathMutation{}, err
	}

	mk := newMutationKey(moduleFullName, pathType, variable, key)
	entry, exists := c.entries[mk]
	if !exists {
		c.seq++
		entry = &pathEntry{
			mutation: PathMutation{
				ModuleFullName: moduleFullName,
				Type:           pathType,
				Variable:       variable,
				Key:            mk.key,
				Values:         []string{value},
			},
			seq: c.seq,
		}
		c.entries[mk] = entry
		c.logger.Debug("Path mutation added", "module", moduleFullName, "type", pathType, "variable", variable, "key", mk.key)
		c.notify(PathChange{Kind: PathChangeAdded, Mutation: entry.mutation.clone()})
		return entry.mutation.clone(), nil
	}

	previous := slices.Clone(entry.mutation.Values)
	if pathType == PathSet {
		entry.mutation.Values = []string{value}
	} else {
		entry.mutation.Values = append(entry.mutation.Values, value)
	}
	c.logger.Debug("Path mutation updated", "module", moduleFullName, "type", pathType, "variable", variable, "key", mk.key)
	c.notify(PathChange{Kind: PathChangeUpdated, Mutation: entry.mutation.clone(), PreviousValues: previous})

	return entry.mutation.clone(), nil
}

// ChangeValues replaces the values of an existing mutation.
func (c *PathComposer) ChangeValues(moduleFullName string, pathType PathType, variable, key string, values []string) (PathMutation, error) {
	if err := validateMutationKey(moduleFullName, pathType, variable); err != nil {
		return PathMutation{}, err
	}

	entry, exists := c.entries[newMutationKey(moduleFullName, pathType, variable, key)]
	if !exists {
		return PathMutation{}, fmt.Errorf("%w: %s %s (%s) of %s", ErrMutationNotFound, pathType, variable, key, moduleFullName)
	}

	previous := entry.mutation.Values
	entry.mutation.Values = slices.Clone(values)
	c.notify(PathChange{Kind: PathChangeUpdated, Mutation: entry.mutation.clone(), PreviousValues: previous})

	return entry.mutation.clone(), nil
}

// RemoveMutationsForModule retracts every mutation owned by the module and
// returns them in registration order.
func (c *PathComposer) RemoveMutationsForModule(moduleFullName string) []PathMutation {
	removed := c.entriesFor(moduleFullName)
	for _, entry := range removed {
		delete(c.entries, newMutationKey(entry.mutation.ModuleFullName, entry.mutation.Type, entry.mutation.Variable, entry.mutation.Key))
	}

	result := make([]PathMutation, 0, len(removed))
	for _, entry := range removed {
		c.notify(PathChange{Kind: PathChangeRemoved, Mutation: entry.mutation.clone(), PreviousValues: slices.Clone(entry.mutation.Values)})
		result = append(result, entry.mutation.clone())
	}

	if len(result) > 0 {
		c.logger.Debug("Path mutations retracted", "module", moduleFullName, "count", len(result))
	}
	return result
}

// Mutations returns copies of the module's mutations in registration order.
func (c *PathComposer) Mutations(moduleFullName string) []PathMutation {
	entries := c.entriesFor(moduleFullName)
	result := make([]PathMutation, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.mutation.clone())
	}
	return result
}

// Len returns the number of mutations currently registered.
func (c *PathComposer) Len() int {
	return len(c.entries)
}

func (c *PathComposer) entriesFor(moduleFullName string) []*pathEntry {
	var result []*pathEntry
	for mk, entry := range c.entries {
		if mk.module == moduleFullName {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b *pathEntry) int { return cmp.Compare(a.seq, b.seq) })
	return result
}

func (c *PathComposer) notify(change PathChange) {
	for _, observer := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Path observer panicked", "variable", change.Mutation.Variable, "panic", r)
				}
			}()
			observer(change)
		}()
	}
}

func validateMutationKey(moduleFullName string, pathType PathType, variable string) error {
	switch {
	case moduleFullName == "":
		return fmt.Errorf("%w: empty module name", ErrInvalidMutationKey)
	case variable == "":
		return fmt.Errorf("%w: empty variable for module %s", ErrInvalidMutationKey, moduleFullName)
	case !pathType.valid():
		return fmt.Errorf("%w: unknown path type %q for %s", ErrInvalidMutationKey, pathType, variable)
	}
	return nil
}

// PathGroup holds every mutation of one type on one variable, ordered by
// priority: highest first.
type PathGroup struct {
	Type      PathType
	Variable  string
	Mutations []PathMutation
}

// Values flattens the group's values in priority order.
func (g PathGroup) Values() []string {
	var values []string
	for _, m := range g.Mutations {
		values = append(values, m.Values...)
	}
	return values
}

// CompositionSnapshot is a read-only view of all registered mutations, grouped
// per (type, variable). Groups are ordered by variable name, then SET,
// PREPEND, APPEND, which is the order a renderer has to apply them in.
type CompositionSnapshot struct {
	Groups []PathGroup
}

// Group returns the group for the given type and variable.
func (s CompositionSnapshot) Group(pathType PathType, variable string) (PathGroup, bool) {
	for _, g := range s.Groups {
		if g.Type == pathType && g.Variable == variable {
			return g, true
		}
	}
	return PathGroup{}, false
}

// Variables returns the sorted names of all variables touched by the snapshot.
func (s CompositionSnapshot) Variables() []string {
	var names []string
	for _, g := range s.Groups {
		if !slices.Contains(names, g.Variable) {
			names = append(names, g.Variable)
		}
	}
	return names
}

// Snapshot builds the grouped view used by renderers. PREPEND groups list the
// most recently registered entry first because it ends up in front; SET and
// APPEND groups keep registration order. It does not modify the composer.
func (c *PathComposer) Snapshot() CompositionSnapshot {
	type groupKey struct {
		pathType PathType
		variable string
	}

	grouped := make(map[groupKey][]*pathEntry)
	for _, entry := range c.entries {
		gk := groupKey{pathType: entry.mutation.Type, variable: entry.mutation.Variable}
		grouped[gk] = append(grouped[gk], entry)
	}

	groups := make([]PathGroup, 0, len(grouped))
	for gk, entries := range grouped {
		slices.SortFunc(entries, func(a, b *pathEntry) int {
			if gk.pathType == PathPrepend {
				return cmp.Compare(b.seq, a.seq)
			}
			return cmp.Compare(a.seq, b.seq)
		})

		group := PathGroup{Type: gk.pathType, Variable: gk.variable, Mutations: make([]PathMutation, 0, len(entries))}
		for _, entry := range entries {
			group.Mutations = append(group.Mutations, entry.mutation.clone())
		}
		groups = append(groups, group)
	}

	slices.SortFunc(groups, func(a, b PathGroup) int {
		if byVariable := cmp.Compare(a.Variable, b.Variable); byVariable != 0 {
			return byVariable
		}
		return cmp.Compare(a.Type.renderRank(), b.Type.renderRank())
	})

	return CompositionSnapshot{Groups: groups}
}
