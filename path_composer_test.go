package envmodules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathComposer_AppendAccumulatesPerKey(t *testing.T) {
	c := NewPathComposer()

	_, err := c.AddMutation("gcc", PathAppend, "PATH", "x", "k1")
	require.NoError(t, err)
	m, err := c.AddMutation("gcc", PathAppend, "PATH", "y", "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, m.Values)

	other, err := c.AddMutation("gcc", PathAppend, "PATH", "z", "k2")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, other.Values)
	assert.False(t, m.Equal(other))

	mutations := c.Mutations("gcc")
	require.Len(t, mutations, 2)
	assert.Equal(t, "k1", mutations[0].Key)
	assert.Equal(t, []string{"x", "y"}, mutations[0].Values)
	assert.Equal(t, "k2", mutations[1].Key)
	assert.Equal(t, []string{"z"}, mutations[1].Values)
}

func TestPathComposer_SetReplacesAndIgnoresKey(t *testing.T) {
	c := NewPathComposer()

	_, err := c.AddMutation("gcc", PathSet, "PATH", "a", "k1")
	require.NoError(t, err)
	m, err := c.AddMutation("gcc", PathSet, "PATH", "b", "k2")
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, m.Values)
	assert.Empty(t, m.Key)
	assert.Equal(t, 1, c.Len())
}

func TestPathComposer_MutationEquality(t *testing.T) {
	a := PathMutation{Variable: "PATH", Type: PathAppend, Key: "k", Values: []string{"x"}}
	b := PathMutation{Variable: "PATH", Type: PathAppend, Key: "k", Values: []string{"y", "z"}, ModuleFullName: "other"}
	c := PathMutation{Variable: "PATH", Type: PathPrepend, Key: "k"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPathComposer_ModulesDoNotShareEntries(t *testing.T) {
	c := NewPathComposer()

	_, err := c.AddMutation("gcc", PathPrepend, "PATH", "/opt/gcc/bin", "")
	require.NoError(t, err)
	_, err = c.AddMutation("clang", PathPrepend, "PATH", "/opt/clang/bin", "")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	removed := c.RemoveMutationsForModule("gcc")
	require.Len(t, removed, 1)
	assert.Equal(t, []string{"/opt/gcc/bin"}, removed[0].Values)
	assert.Empty(t, c.Mutations("gcc"))
	assert.Len(t, c.Mutations("clang"), 1)
}

func TestPathComposer_InvalidKeys(t *testing.T) {
	c := NewPathComposer()

	_, err := c.AddMutation("", PathAppend, "PATH", "x", "")
	assert.ErrorIs(t, err, ErrInvalidMutationKey)
	_, err = c.AddMutation("gcc", PathAppend, "", "x", "")
	assert.ErrorIs(t, err, ErrInvalidMutationKey)
	_, err = c.AddMutation("gcc", PathType("REMOVE"), "PATH", "x", "")
	assert.ErrorIs(t, err, ErrInvalidMutationKey)
	assert.Zero(t, c.Len())
}

func TestPathComposer_ChangeValues(t *testing.T) {
	c := NewPathComposer()
	_, err := c.AddMutation("gcc", PathAppend, "MANPATH", "/opt/gcc/man", "docs")
	require.NoError(t, err)

	var changes []PathChange
	c.Observe(func(change PathChange) { changes = append(changes, change) })

	m, err := c.ChangeValues("gcc", PathAppend, "MANPATH", "docs", []string{"/a", "/b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, m.Values)

	require.Len(t, changes, 1)
	assert.Equal(t, PathChangeUpdated, changes[0].Kind)
	assert.Equal(t, []string{"/opt/gcc/man"}, changes[0].PreviousValues)

	_, err = c.ChangeValues("gcc", PathAppend, "MANPATH", "other", []string{"/c"})
	assert.ErrorIs(t, err, ErrMutationNotFound)
}

func TestPathComposer_ObserverReceivesPreviousValues(t *testing.T) {
	c := NewPathComposer()

	var changes []PathChange
	c.Observe(func(change PathChange) { changes = append(changes, change) })

	_, err := c.AddMutation("gcc", PathAppend, "PATH", "x", "k1")
	require.NoError(t, err)
	_, err = c.AddMutation("gcc", PathAppend, "PATH", "y", "k1")
	require.NoError(t, err)
	c.RemoveMutationsForModule("gcc")

	want := []PathChange{
		{
			Kind:     PathChangeAdded,
			Mutation: PathMutation{ModuleFullName: "gcc", Type: PathAppend, Variable: "PATH", Key: "k1", Values: []string{"x"}},
		},
		{
			Kind:           PathChangeUpdated,
			Mutation:       PathMutation{ModuleFullName: "gcc", Type: PathAppend, Variable: "PATH", Key: "k1", Values: []string{"x", "y"}},
			PreviousValues: []string{"x"},
		},
		{
			Kind:           PathChangeRemoved,
			Mutation:       PathMutation{ModuleFullName: "gcc", Type: PathAppend, Variable: "PATH", Key: "k1", Values: []string{"x", "y"}},
			PreviousValues: []string{"x", "y"},
		},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("path changes mismatch (-want +got):\n%s", diff)
	}
}

func TestPathComposer_ObserverPanicIsContained(t *testing.T) {
	c := NewPathComposer(WithComposerLogger(newTestLogger(t)))
	calls := 0
	c.Observe(func(PathChange) { panic("boom") })
	c.Observe(func(PathChange) { calls++ })

	assert.NotPanics(t, func() {
		_, err := c.AddMutation("gcc", PathSet, "CC", "gcc", "")
		require.NoError(t, err)
	})
	assert.Equal(t, 1, calls)
}

func TestPathComposer_Snapshot(t *testing.T) {
	c := NewPathComposer()

	add := func(module string, pathType PathType, variable, value, key string) {
		t.Helper()
		_, err := c.AddMutation(module, pathType, variable, value, key)
		require.NoError(t, err)
	}
	add("gcc", PathPrepend, "PATH", "/opt/gcc/bin", "")
	add("gcc", PathAppend, "MANPATH", "/opt/gcc/man", "")
	add("cuda", PathPrepend, "PATH", "/opt/cuda/bin", "")
	add("cuda", PathAppend, "PATH", "/opt/cuda/tools", "")
	add("gcc", PathSet, "CC", "gcc", "")
	add("clang", PathSet, "CC", "clang", "")

	before := c.Mutations("gcc")
	snapshot := c.Snapshot()

	want := CompositionSnapshot{Groups: []PathGroup{
		{Type: PathSet, Variable: "CC", Mutations: []PathMutation{
			{ModuleFullName: "gcc", Type: PathSet, Variable: "CC", Values: []string{"gcc"}},
			{ModuleFullName: "clang", Type: PathSet, Variable: "CC", Values: []string{"clang"}},
		}},
		{Type: PathAppend, Variable: "MANPATH", Mutations: []PathMutation{
			{ModuleFullName: "gcc", Type: PathAppend, Variable: "MANPATH", Values: []string{"/opt/gcc/man"}},
		}},
		{Type: PathPrepend, Variable: "PATH", Mutations: []PathMutation{
			{ModuleFullName: "cuda", Type: PathPrepend, Variable: "PATH", Values: []string{"/opt/cuda/bin"}},
			{ModuleFullName: "gcc", Type: PathPrepend, Variable: "PATH", Values: []string{"/opt/gcc/bin"}},
		}},
		{Type: PathAppend, Variable: "PATH", Mutations: []PathMutation{
			{ModuleFullName: "cuda", Type: PathAppend, Variable: "PATH", Values: []string{"/opt/cuda/tools"}},
		}},
	}}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	group, ok := snapshot.Group(PathPrepend, "PATH")
	require.True(t, ok)
	assert.Equal(t, []string{"/opt/cuda/bin", "/opt/gcc/bin"}, group.Values())
	assert.Equal(t, []string{"CC", "MANPATH", "PATH"}, snapshot.Variables())

	// Snapshots are copies.
	snapshot.Groups[0].Mutations[0].Values[0] = "changed"
	assert.Equal(t, before, c.Mutations("gcc"))
	assert.Equal(t, 6, c.Len())
}
