package envmodules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegister(t *testing.T, c *Catalog, descriptors ...*ModuleDescriptor) {
	t.Helper()
	for _, d := range descriptors {
		require.NoError(t, c.Register(d))
	}
}

func TestCatalog_RegisterAndLookup(t *testing.T) {
	c := NewCatalog()
	d := NewModuleDescriptor("gcc", "12.2", "x86_64")
	mustRegister(t, c, d)

	found, ok := c.Lookup("gcc-12.2-x86_64")
	require.True(t, ok)
	assert.True(t, found.Equal(d))
	assert.NotSame(t, d, found, "catalog keeps its own copy")

	d.Category = "changed after registration"
	assert.Empty(t, found.Category)

	_, ok = c.Lookup("clang")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c, NewModuleDescriptor("gcc", "12.2", "x86_64"))

	err := c.Register(NewModuleDescriptor("gcc", "12.2", "x86_64"))
	assert.ErrorIs(t, err, ErrDuplicateModule)

	assert.ErrorIs(t, c.Register(nil), ErrNilDescriptor)
	assert.ErrorIs(t, c.Register(&ModuleDescriptor{FullName: "nameless"}), ErrEmptyModuleName)
}

func TestCatalog_LatestVersion(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		NewModuleDescriptor("gcc", "9.5", "x86_64"),
		NewModuleDescriptor("gcc", "12.2", "x86_64"),
		NewModuleDescriptor("gcc", "12.10", "x86_64"),
		NewModuleDescriptor("gcc", "nightly", "x86_64"),
	)

	latest, ok := c.Latest("gcc")
	require.True(t, ok)
	assert.Equal(t, "12.10", latest.Version, "semantic comparison, not lexical")

	byShortName, ok := c.Lookup("gcc")
	require.True(t, ok)
	assert.Equal(t, latest.FullName, byShortName.FullName)

	_, ok = c.Latest("clang")
	assert.False(t, ok)
}

func TestCatalog_LatestFallsBackToLexicalOrder(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		NewModuleDescriptor("tool", "beta", ""),
		NewModuleDescriptor("tool", "alpha", ""),
	)

	latest, ok := c.Latest("tool")
	require.True(t, ok)
	assert.Equal(t, "beta", latest.Version)
}

func TestCatalog_All(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		NewModuleDescriptor("python", "3.12", ""),
		NewModuleDescriptor("cuda", "12.4", "x86_64"),
		NewModuleDescriptor("gcc", "12.2", "x86_64"),
	)

	var names []string
	for _, d := range c.All() {
		names = append(names, d.FullName)
	}
	assert.Equal(t, []string{"cuda-12.4-x86_64", "gcc-12.2-x86_64", "python-3.12"}, names)
}

func TestCatalog_Update(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		NewModuleDescriptor("gcc", "12.2", "x86_64"),
		NewModuleDescriptor("gcc", "13.1", "x86_64"),
	)

	err := c.Update("gcc", func(d *ModuleDescriptor) error {
		d.Category = "compiler"
		return nil
	})
	require.NoError(t, err)
	for _, d := range c.All() {
		assert.Equal(t, "compiler", d.Category)
	}

	err = c.Update("gcc-13.1-x86_64", func(d *ModuleDescriptor) error {
		d.Category = "latest"
		return nil
	})
	require.NoError(t, err)
	d, _ := c.Lookup("gcc-12.2-x86_64")
	assert.Equal(t, "compiler", d.Category)

	assert.ErrorIs(t, c.Update("clang", func(*ModuleDescriptor) error { return nil }), ErrUnknownModule)
}
