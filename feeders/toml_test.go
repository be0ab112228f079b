package feeders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTomlFeeder(t *testing.T) {
	path := writeFile(t, "config.toml", `
logLevel = "debug"

[[searchPaths]]
module = "python"
key = "PYTHON_HOME"
priority = 5
`)

	var cfg fileConfig
	require.NoError(t, NewTomlFeeder(path).Feed(&cfg))

	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.SearchPaths, 1)
	assert.Equal(t, "python", cfg.SearchPaths[0].Module)
	assert.Equal(t, "PYTHON_HOME", cfg.SearchPaths[0].Key)
	assert.Equal(t, 5, cfg.SearchPaths[0].Priority)
}

func TestTomlFeeder_UnknownKeys(t *testing.T) {
	path := writeFile(t, "config.toml", "logLevel = \"info\"\ncolour = \"blue\"\n")

	var cfg fileConfig
	err := NewTomlFeeder(path).Feed(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestTomlFeeder_EmptyPath(t *testing.T) {
	var cfg fileConfig
	require.ErrorIs(t, NewTomlFeeder("").Feed(&cfg), ErrEmptyPath)
}
