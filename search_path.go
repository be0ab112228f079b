package envmodules

import (
	"cmp"
	"fmt"
	"slices"
)

// SearchPathType identifies what the key of a SearchPathCandidate refers to.
type SearchPathType string

const (
	// SearchPathDirectory candidates use their key as a literal directory.
	SearchPathDirectory SearchPathType = "DIRECTORY"

	// SearchPathEnvironmentVariable candidates use the current value of the
	// environment variable named by their key.
	SearchPathEnvironmentVariable SearchPathType = "ENVIRONMENT_VARIABLE"
)

// SearchPathCandidate is a prioritized source for a module's root directory.
type SearchPathCandidate struct {
	// Key is a directory path or an environment variable name, depending on Type.
	Key string `yaml:"key" toml:"key" json:"key"`

	Type SearchPathType `yaml:"type" toml:"type" json:"type"`

	// Priority orders candidates; higher values are evaluated first.
	Priority int `yaml:"priority" toml:"priority" json:"priority"`

	// SubFolder is appended to whatever Key resolves to.
	SubFolder string `yaml:"subFolder" toml:"subFolder" json:"subFolder"`

	// IsDefault is true for candidates declared by the description file and
	// false for candidates added by the user.
	IsDefault bool `yaml:"-" toml:"-" json:"isDefault"`
}

func (c SearchPathCandidate) String() string {
	sub := ""
	if c.SubFolder != "" {
		sub = " \\ " + c.SubFolder
	}
	return fmt.Sprintf("%s: %s%s (Priority: %d, Default: %t)", c.Type, c.Key, sub, c.Priority, c.IsDefault)
}

// SortSearchPaths sorts candidates descending by priority. The sort is stable:
// a candidate only moves ahead of another one when its priority is strictly
// greater, so the earlier declared candidate wins a tie.
func SortSearchPaths(paths []SearchPathCandidate) {
	slices.SortStableFunc(paths, func(a, b SearchPathCandidate) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
}
