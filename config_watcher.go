package envmodules

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// ConfigReloadFunc receives every successfully reloaded configuration. It runs
// on the watcher's goroutine; hosts that share a Catalog with a
// DependencyGraph must serialize access themselves. Passing cfg to
// Config.Apply replaces the settings of the previous reload.
type ConfigReloadFunc func(ctx context.Context, cfg *Config) error

// ConfigWatcher reloads configuration files when they change on disk.
// Invalid configurations are logged and the previous one stays in effect.
type ConfigWatcher struct {
	files    []string
	onReload ConfigReloadFunc
	debounce time.Duration
	logger   Logger
	fsw      *fsnotify.Watcher
}

// ConfigWatcherOption configures a ConfigWatcher.
type ConfigWatcherOption func(*ConfigWatcher)

// WithWatchDebounce sets the quiet period between the last file event and the
// reload.
func WithWatchDebounce(d time.Duration) ConfigWatcherOption {
	return func(w *ConfigWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger of the watcher.
func WithWatchLogger(logger Logger) ConfigWatcherOption {
	return func(w *ConfigWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewConfigWatcher watches the directories holding files. Directories are
// watched instead of the files so that editors replacing a file by rename are
// noticed.
func NewConfigWatcher(onReload ConfigReloadFunc, files []string, opts ...ConfigWatcherOption) (*ConfigWatcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("%w: reload callback must not be nil", ErrInvalidConfig)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no configuration files to watch", ErrInvalidConfig)
	}

	w := &ConfigWatcher{
		onReload: onReload,
		debounce: defaultWatchDebounce,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, file := range files {
		if _, err := FeederForFile(file); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config file %s: %w", file, err)
		}
		w.files = append(w.files, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	var dirs []string
	for _, file := range w.files {
		if dir := filepath.Dir(file); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.fsw = fsw

	return w, nil
}

// Run processes file events until ctx is cancelled. Reloads run on the
// calling goroutine. Run closes the watcher when it returns.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Failed to close config watcher", "error", err)
		}
	}()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("config watcher event channel closed unexpectedly")
			}
			if !w.relevant(evt) {
				continue
			}
			w.logger.Debug("Config file changed", "file", evt.Name, "op", evt.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload(ctx)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("config watcher error channel closed unexpectedly")
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) relevant(evt fsnotify.Event) bool {
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(w.files, filepath.Clean(evt.Name))
}

func (w *ConfigWatcher) reload(ctx context.Context) {
	cfg, err := LoadConfigFiles(w.files...)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration", "error", err)
		return
	}
	if err := w.onReload(ctx, cfg); err != nil {
		w.logger.Error("Config reload callback failed", "error", err)
		return
	}
	w.logger.Info("Configuration reloaded", "files", w.files)
}
