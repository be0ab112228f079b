package envmodules

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-version"
)

// VersionSourceType selects how DetectVersion finds the installed version.
type VersionSourceType string

const (
	// VersionSourceConstant takes Value as the version.
	VersionSourceConstant VersionSourceType = "CONSTANT_VERSION"

	// VersionSourceFile reads the trimmed content of File.
	VersionSourceFile VersionSourceType = "FILE_VERSION"

	// VersionSourceRegexFile applies the pattern in Value to the content of
	// File and uses the first capture group.
	VersionSourceRegexFile VersionSourceType = "REGEX_FILE_VERSION"

	// VersionSourceRegexFileName applies the pattern in Value to the base
	// names of the files matching the glob File and uses the first capture
	// group of the first match.
	VersionSourceRegexFileName VersionSourceType = "REGEX_FILE_NAME_VERSION"
)

// VersionSource describes where the concrete version of an installed module
// can be found. File is relative to the module root.
type VersionSource struct {
	Type  VersionSourceType `yaml:"type" toml:"type" json:"type"`
	File  string            `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`
	Value string            `yaml:"value,omitempty" toml:"value,omitempty" json:"value,omitempty"`
}

// DetectVersion returns the version described by src below root. The result
// must be a valid version string.
func DetectVersion(root string, src VersionSource) (string, error) {
	var raw string
	switch src.Type {
	case VersionSourceConstant:
		raw = src.Value

	case VersionSourceFile:
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(src.File)))
		if err != nil {
			return "", fmt.Errorf("failed to read version file: %w", err)
		}
		raw = string(content)

	case VersionSourceRegexFile:
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(src.File)))
		if err != nil {
			return "", fmt.Errorf("failed to read version file: %w", err)
		}
		match, err := captureVersion(src.Value, string(content))
		if err != nil {
			return "", fmt.Errorf("%s: %w", src.File, err)
		}
		raw = match

	case VersionSourceRegexFileName:
		match, err := versionFromFileNames(root, src)
		if err != nil {
			return "", err
		}
		raw = match

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVersionSource, src.Type)
	}

	raw = strings.TrimSpace(raw)
	v, err := version.NewVersion(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidVersion, raw, err)
	}
	return v.Original(), nil
}

func versionFromFileNames(root string, src VersionSource) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(src.File))
	if err != nil {
		return "", fmt.Errorf("invalid version file pattern %q: %w", src.File, err)
	}

	var lastErr error = fmt.Errorf("%w: no file matches %q", ErrVersionPatternNoMatch, src.File)
	for _, match := range matches {
		found, err := captureVersion(src.Value, path.Base(match))
		if err == nil {
			return found, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func captureVersion(pattern, text string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid version pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() < 1 {
		return "", fmt.Errorf("%w: %q", ErrVersionPatternNoCapture, pattern)
	}
	groups := re.FindStringSubmatch(text)
	if groups == nil {
		return "", fmt.Errorf("%w: %q", ErrVersionPatternNoMatch, pattern)
	}
	return groups[1], nil
}
