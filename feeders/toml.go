package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file into a struct.
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a feeder for the TOML file at filePath.
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file into structure. Keys the struct does not declare are
// rejected.
func (t TomlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if t.Path == "" {
		return ErrEmptyPath
	}

	meta, err := toml.DecodeFile(t.Path, structure)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", t.Path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("TOML file %s: unknown keys %v", t.Path, undecoded)
	}
	return nil
}
