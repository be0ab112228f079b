package envmodules

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/go-homedir"
)

// RootResolver locates the root directory of a module.
type RootResolver interface {
	ResolveRoot(d *ModuleDescriptor) (string, error)
}

// SearchPathResolver evaluates a descriptor's search path candidates in
// priority order and returns the first directory holding every required item.
type SearchPathResolver struct {
	lookupEnv func(string) (string, bool)
	logger    Logger
}

// ResolverOption configures a SearchPathResolver.
type ResolverOption func(*SearchPathResolver)

// WithEnvLookup replaces os.LookupEnv for environment variable candidates.
// Hosts use it to resolve against a session environment instead of the
// process environment.
func WithEnvLookup(lookup func(string) (string, bool)) ResolverOption {
	return func(r *SearchPathResolver) {
		if lookup != nil {
			r.lookupEnv = lookup
		}
	}
}

// WithResolverLogger sets the logger of the resolver.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *SearchPathResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSearchPathResolver creates a resolver backed by the process environment
// and the local filesystem.
func NewSearchPathResolver(opts ...ResolverOption) *SearchPathResolver {
	r := &SearchPathResolver{
		lookupEnv: os.LookupEnv,
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveRoot returns the module root. Meta and abstract modules need no root
// and resolve to "". A pre-set ModuleRoot is used when it satisfies the
// required items; otherwise the search path candidates are evaluated.
func (r *SearchPathResolver) ResolveRoot(d *ModuleDescriptor) (string, error) {
	if d == nil {
		return "", ErrNilDescriptor
	}
	if !d.Type.RequiresRoot() {
		r.logger.Debug("Skipping root resolution", "module", d.FullName, "type", d.Type)
		return "", nil
	}

	if d.ModuleRoot != "" {
		if isDir(d.ModuleRoot) && r.accepts(d, d.ModuleRoot) {
			return d.ModuleRoot, nil
		}
		r.logger.Debug("Preset module root rejected", "module", d.FullName, "root", d.ModuleRoot)
	}

	candidates := slices.Clone(d.SearchPaths)
	SortSearchPaths(candidates)

	for _, candidate := range candidates {
		dir, ok := r.candidateDir(candidate)
		if !ok {
			continue
		}
		if r.accepts(d, dir) {
			r.logger.Debug("Module root resolved", "module", d.FullName, "root", dir, "priority", candidate.Priority)
			return dir, nil
		}
	}

	return "", fmt.Errorf("%w: %s (%d candidates checked)", ErrRootNotFound, d.FullName, len(candidates))
}

// candidateDir computes the directory a candidate points to. Candidates that
// cannot be resolved yield no directory and are skipped.
func (r *SearchPathResolver) candidateDir(c SearchPathCandidate) (string, bool) {
	var base string
	switch c.Type {
	case SearchPathDirectory:
		base = c.Key
	case SearchPathEnvironmentVariable:
		value, ok := r.lookupEnv(c.Key)
		if !ok || value == "" {
			r.logger.Debug("Search path variable not set", "variable", c.Key)
			return "", false
		}
		base = value
	default:
		r.logger.Warn("Unknown search path type", "type", c.Type, "key", c.Key)
		return "", false
	}

	expanded, err := homedir.Expand(base)
	if err != nil {
		r.logger.Debug("Cannot expand search path", "path", base, "error", err)
		return "", false
	}
	if c.SubFolder != "" {
		expanded = filepath.Join(expanded, c.SubFolder)
	}

	if !isDir(expanded) {
		r.logger.Debug("Search path candidate is not a directory", "path", expanded)
		return "", false
	}
	return expanded, true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (r *SearchPathResolver) accepts(d *ModuleDescriptor, dir string) bool {
	for _, item := range d.RequiredItems {
		if !r.itemExists(dir, item) {
			r.logger.Debug("Required item missing", "module", d.FullName, "candidate", dir, "item", item.Value, "type", item.Type)
			return false
		}
	}
	return true
}

func (r *SearchPathResolver) itemExists(dir string, item RequiredItem) bool {
	switch item.Type {
	case RequiredItemFile:
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(item.Value)))
		return err == nil && info.Mode().IsRegular()
	case RequiredItemDirectory:
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(item.Value)))
		return err == nil && info.IsDir()
	case RequiredItemGlob:
		matches, err := doublestar.Glob(os.DirFS(dir), filepath.ToSlash(item.Value))
		return err == nil && len(matches) > 0
	default:
		r.logger.Warn("Unknown required item type", "type", item.Type, "value", item.Value)
		return false
	}
}
