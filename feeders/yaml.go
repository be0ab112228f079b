package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file into a struct.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a feeder for the YAML file at filePath.
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the file into structure. Fields missing from the file keep
// their current values.
func (y YamlFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if y.Path == "" {
		return ErrEmptyPath
	}

	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", y.Path, err)
	}
	if err := yaml.Unmarshal(content, structure); err != nil {
		return fmt.Errorf("failed to decode YAML file %s: %w", y.Path, err)
	}
	return nil
}
