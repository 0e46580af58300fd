package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/lattice-isolate/resolver"
)

// DefinitionFile pairs a parsed artifact definition with its on-disk source.
type DefinitionFile struct {
	Definition ArtifactDefinition
	Path       string
}

// ParseDefinitionYAML decodes and validates a single artifact definition payload.
func ParseDefinitionYAML(data []byte) (ArtifactDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ArtifactDefinition{}, fmt.Errorf("plugin: definition payload is empty")
	}
	var def ArtifactDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ArtifactDefinition{}, fmt.Errorf("plugin: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return ArtifactDefinition{}, err
	}
	return def.Normalized(), nil
}

// LoadDefinitionFile reads a YAML file from disk and returns the parsed definition.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DefinitionFile{}, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir scans a directory for *.yaml definitions.
// Missing directories are treated as "no definitions".
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isYAMLFile(name) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(trimmed, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// DefinitionSource is a local source backed by a directory of YAML
// definitions, one file per artifact named <name>.yaml or <name>.yml.
type DefinitionSource struct {
	label string
	dir   string
}

// NewDefinitionSource returns a source reading definitions from dir.
func NewDefinitionSource(label, dir string) *DefinitionSource {
	return &DefinitionSource{label: label, dir: filepath.Clean(dir)}
}

func (s *DefinitionSource) String() string {
	return fmt.Sprintf("%s (yaml %s)", s.label, s.dir)
}

// Dir returns the directory the source reads from.
func (s *DefinitionSource) Dir() string {
	return s.dir
}

// Find loads the definition for name. A missing file, or a name that cannot
// be a file name in dir, is reported as resolver.ErrNotPresent; a file that exists but does not hold a valid
// definition of name is a resolver.InvalidArtifactError.
func (s *DefinitionSource) Find(name string) (*resolver.Artifact, error) {
	if err := validateFileName(name); err != nil {
		return nil, err
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.dir, name+ext)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, resolver.InvalidArtifactError{Name: name, Location: path, Err: fmt.Errorf("is a directory")}
		}
		file, err := LoadDefinitionFile(path)
		if err != nil {
			return nil, resolver.InvalidArtifactError{Name: name, Location: path, Err: err}
		}
		if file.Definition.Name != name {
			return nil, resolver.InvalidArtifactError{
				Name:     name,
				Location: path,
				Err:      fmt.Errorf("file declares %q", file.Definition.Name),
			}
		}
		return &resolver.Artifact{
			Name:     name,
			Origin:   resolver.OriginLocal,
			Location: file.Path,
			Value:    file.Definition,
		}, nil
	}
	return nil, fmt.Errorf("plugin: %s in %s: %w", name, s.label, resolver.ErrNotPresent)
}

// Names lists every artifact the source defines.
func (s *DefinitionSource) Names() ([]string, error) {
	defs, err := LoadDefinitionDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Definition.Name)
	}
	sort.Strings(names)
	return names, nil
}

func validateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return resolver.InvalidNameError{Name: name, Reason: "name is empty"}
	case trimmed != name:
		return resolver.InvalidNameError{Name: name, Reason: "surrounding whitespace"}
	case strings.ContainsAny(name, `/\`):
		return resolver.InvalidNameError{Name: name, Reason: "contains a path separator"}
	case strings.HasPrefix(name, ".") || strings.Contains(name, ".."):
		return resolver.InvalidNameError{Name: name, Reason: "empty name segment"}
	}
	return nil
}
