package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File is the on-disk rules document. Aliases maps a lookup table name to
// surface-value -> canonical-value substitutions applied before enum lookup.
type File struct {
	RuleSet `yaml:",inline"`
	Aliases map[string]map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
}

// Format identifies a rules file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported rules file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// LoadFile reads and validates a rules file.
func LoadFile(path string) (File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes a rules document and checks that it compiles.
func Parse(data []byte, format Format) (File, error) {
	var f File
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("decode yaml rules: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("decode toml rules: %w", err)
		}
	default:
		return File{}, fmt.Errorf("unknown rules format %q", format)
	}

	if _, err := New(f.RuleSet); err != nil {
		return File{}, fmt.Errorf("invalid rules: %w", err)
	}
	return f, nil
}
