package envmodules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envmodules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: info\n"), 0o600))

	reloaded := make(chan *Config, 4)
	watcher, err := NewConfigWatcher(func(_ context.Context, cfg *Config) error {
		reloaded <- cfg
		return nil
	}, []string{path}, WithWatchDebounce(20*time.Millisecond), WithWatchLogger(newTestLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// An invalid file is ignored.
	require.NoError(t, os.WriteFile(path, []byte("logLevel: loud\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\nsearchPaths:\n  - module: gcc\n    key: /opt/gcc\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
		require.Len(t, cfg.SearchPaths, 1)
		assert.Equal(t, "/opt/gcc", cfg.SearchPaths[0].Key)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewConfigWatcher_Errors(t *testing.T) {
	noop := func(context.Context, *Config) error { return nil }

	_, err := NewConfigWatcher(nil, []string{"envmodules.yaml"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewConfigWatcher(noop, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewConfigWatcher(noop, []string{"envmodules.ini"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewConfigWatcher(noop, []string{filepath.Join(t.TempDir(), "missing", "envmodules.yaml")})
	assert.Error(t, err)
}

func TestLoadConfigFiles(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "base.yaml")
	tomlPath := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("logLevel: warn\n"), 0o600))
	require.NoError(t, os.WriteFile(tomlPath, []byte("logLevel = \"error\"\n"), 0o600))

	cfg, err := LoadConfigFiles(yamlPath, tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)

	_, err = LoadConfigFiles(filepath.Join(dir, "config.json"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
