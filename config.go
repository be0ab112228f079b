package envmodules

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/envmodules/feeders"
	"github.com/hashicorp/go-multierror"
)

// AllModules selects every registered module in a UserSearchPath.
const AllModules = "*"

// Feeder populates a configuration struct from a source.
type Feeder interface {
	Feed(structure any) error
}

// Config holds user settings merged into a Catalog: additional search paths
// and parameter overrides.
type Config struct {
	LogLevel    string              `yaml:"logLevel" toml:"logLevel" env:"LOG_LEVEL"`
	SearchPaths []UserSearchPath    `yaml:"searchPaths" toml:"searchPaths"`
	Parameters  []ParameterOverride `yaml:"parameters" toml:"parameters"`
}

// UserSearchPath adds a search path candidate to a module, or to every module
// when Module is AllModules.
type UserSearchPath struct {
	Module    string         `yaml:"module" toml:"module"`
	Key       string         `yaml:"key" toml:"key"`
	Type      SearchPathType `yaml:"type" toml:"type"`
	Priority  int            `yaml:"priority" toml:"priority"`
	SubFolder string         `yaml:"subFolder" toml:"subFolder"`
}

// Candidate converts the entry into a user-defined SearchPathCandidate.
func (p UserSearchPath) Candidate() SearchPathCandidate {
	return SearchPathCandidate{
		Key:       p.Key,
		Type:      p.Type,
		Priority:  p.Priority,
		SubFolder: p.SubFolder,
		IsDefault: false,
	}
}

// ParameterOverride replaces a module parameter with a user-defined value.
type ParameterOverride struct {
	Module             string `yaml:"module" toml:"module"`
	Name               string `yaml:"name" toml:"name"`
	VirtualEnvironment string `yaml:"virtualEnvironment" toml:"virtualEnvironment"`
	Value              string `yaml:"value" toml:"value"`
}

// DefaultConfigFeeders returns the feeders used when LoadConfig gets none:
// ENVMODULES_* environment variables.
func DefaultConfigFeeders() []Feeder {
	return []Feeder{feeders.NewEnvFeeder("ENVMODULES")}
}

// FeederForFile picks the feeder matching the file extension.
func FeederForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %s", ErrInvalidConfig, path)
	}
}

// LoadConfigFiles loads the given files in order and then the ENVMODULES_*
// environment variables.
func LoadConfigFiles(paths ...string) (*Config, error) {
	configFeeders := make([]Feeder, 0, len(paths)+1)
	for _, path := range paths {
		feeder, err := FeederForFile(path)
		if err != nil {
			return nil, err
		}
		configFeeders = append(configFeeders, feeder)
	}
	configFeeders = append(configFeeders, DefaultConfigFeeders()...)
	return LoadConfig(configFeeders...)
}

// LoadConfig applies feeders in order, later feeders overriding earlier ones,
// and validates the result.
func LoadConfig(configFeeders ...Feeder) (*Config, error) {
	if len(configFeeders) == 0 {
		configFeeders = DefaultConfigFeeders()
	}

	cfg := &Config{LogLevel: "info"}
	for _, feeder := range configFeeders {
		if err := feeder.Feed(cfg); err != nil {
			return nil, fmt.Errorf("failed to feed configuration: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	for i := range c.SearchPaths {
		p := &c.SearchPaths[i]
		if p.Type == "" {
			p.Type = SearchPathDirectory
		}
		switch {
		case p.Module == "":
			return fmt.Errorf("%w: searchPaths[%d]: module is required", ErrInvalidConfig, i)
		case p.Key == "":
			return fmt.Errorf("%w: searchPaths[%d]: key is required", ErrInvalidConfig, i)
		case p.Type != SearchPathDirectory && p.Type != SearchPathEnvironmentVariable:
			return fmt.Errorf("%w: searchPaths[%d]: unknown type %q", ErrInvalidConfig, i, p.Type)
		}
	}

	for i, p := range c.Parameters {
		if p.Module == "" || p.Name == "" {
			return fmt.Errorf("%w: parameters[%d]: module and name are required", ErrInvalidConfig, i)
		}
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Apply replaces the user search paths and parameter overrides of the
// descriptors registered in catalog with the ones in c. Settings from an
// earlier Apply that c no longer names are removed. Entries naming unknown
// modules are reported together after all others were applied.
func (c *Config) Apply(catalog *Catalog) error {
	if catalog == nil {
		return ErrCatalogNil
	}

	var result *multierror.Error
	for _, d := range catalog.All() {
		err := catalog.Update(d.FullName, func(d *ModuleDescriptor) error {
			d.ResetUserSettings()
			return nil
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, p := range c.SearchPaths {
		targets := []string{p.Module}
		if p.Module == AllModules {
			targets = targets[:0]
			for _, d := range catalog.All() {
				targets = append(targets, d.FullName)
			}
		}
		for _, target := range targets {
			err := catalog.Update(target, func(d *ModuleDescriptor) error {
				d.AddSearchPath(p.Candidate())
				return nil
			})
			if err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	for _, p := range c.Parameters {
		err := catalog.Update(p.Module, func(d *ModuleDescriptor) error {
			d.SetUserParameter(p.Name, p.VirtualEnvironment, p.Value)
			return nil
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return l, fmt.Errorf("%w: log level %q", ErrInvalidConfig, level)
	}
	return l, nil
}
