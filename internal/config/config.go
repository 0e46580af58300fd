// internal/config/config.go
//
// This package handles configuration and the .lattice directory structure.
// Every project that resolves plugins gets a .lattice/ folder in its root
// holding the ordered list of local sources.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// LatticeDir is the name of the directory we create in each project
	LatticeDir = ".lattice"

	// ConfigEnv overrides the location of resolver.yaml.
	ConfigEnv = "LATTICE_RESOLVER_CONFIG"

	SourceKindYAML = "yaml"
	SourceKindGo   = "go"
)

const defaultProjectConfigYAML = `# lattice resolver configuration
version: 1

# Local sources, probed in order. Earlier entries shadow later ones and all
# of them shadow the host's own artifacts.
sources:
  - name: overrides
    kind: yaml
    path: .lattice/sources/overrides
  - name: plugins
    kind: go
    path: .lattice/sources/plugins

ambient:
  # Also cache artifacts the host resolved.
  cache: false
`

// SourceRef declares one local source entry inside .lattice/resolver.yaml.
type SourceRef struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// AmbientConfig captures fallback preferences.
type AmbientConfig struct {
	Cache bool `yaml:"cache"`
}

// ProjectConfig models .lattice/resolver.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Sources []SourceRef   `yaml:"sources"`
	Ambient AmbientConfig `yaml:"ambient"`
}

// Config holds the runtime configuration for the resolver.
type Config struct {
	// ProjectDir is the directory the tool was started from
	ProjectDir string

	// LatticeProjectDir is ProjectDir/.lattice
	LatticeProjectDir string

	// ConfigPath is the resolver.yaml that was loaded
	ConfigPath string

	Project ProjectConfig
}

// InitLatticeDir creates the .lattice directory structure in the given project directory.
//
// Structure created:
// .lattice/
// ├── logs/             <- resolver.log
// ├── sources/
// │   ├── overrides/    <- <name>.yaml definitions
// │   └── plugins/src/  <- Go packages, GOPATH layout
// └── resolver.yaml
func InitLatticeDir(projectDir string) error {
	latticeDir := filepath.Join(projectDir, LatticeDir)

	dirs := []string{
		filepath.Join(latticeDir, "logs"),
		filepath.Join(latticeDir, "sources", "overrides"),
		filepath.Join(latticeDir, "sources", "plugins", "src"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(latticeDir, "resolver.yaml"))
}

// NewConfig creates a new Config populated with project settings. The
// LATTICE_RESOLVER_CONFIG environment variable, when set, replaces the
// default .lattice/resolver.yaml location.
func NewConfig(projectDir string) (*Config, error) {
	return NewConfigFromFile(projectDir, os.Getenv(ConfigEnv))
}

// NewConfigFromFile is NewConfig with an explicit resolver.yaml path. An
// empty path selects .lattice/resolver.yaml; relative paths are taken from
// projectDir.
func NewConfigFromFile(projectDir, path string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		LatticeProjectDir: filepath.Join(projectDir, LatticeDir),
		Project:           defaultProjectConfig(),
	}
	cfg.ConfigPath = filepath.Join(cfg.LatticeProjectDir, "resolver.yaml")
	if override := strings.TrimSpace(path); override != "" {
		cfg.ConfigPath = resolvePath(projectDir, override)
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.LatticeProjectDir, "logs")
}

// Sources returns the ordered list of configured local sources.
func (c *Config) Sources() []SourceRef {
	return c.Project.Sources
}

// CacheAmbient reports whether host-resolved artifacts are cached too.
func (c *Config) CacheAmbient() bool {
	return c.Project.Ambient.Cache
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{Version: 1}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
}

func (pc *ProjectConfig) normalize(base string) {
	for i := range pc.Sources {
		pc.Sources[i].normalize(base)
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	seen := make(map[string]struct{}, len(pc.Sources))
	for i := range pc.Sources {
		if err := pc.Sources[i].validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[pc.Sources[i].Name]; exists {
			return fmt.Errorf("sources[%d]: duplicate source name %s", i, pc.Sources[i].Name)
		}
		seen[pc.Sources[i].Name] = struct{}{}
	}
	return nil
}

func (ref *SourceRef) normalize(base string) {
	ref.Name = strings.TrimSpace(ref.Name)
	ref.Kind = strings.ToLower(strings.TrimSpace(ref.Kind))
	ref.Path = resolvePath(base, ref.Path)
}

func (ref SourceRef) validate() error {
	if ref.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch ref.Kind {
	case SourceKindYAML, SourceKindGo:
	default:
		return fmt.Errorf("kind must be 'yaml' or 'go'")
	}
	if ref.Path == "" {
		return fmt.Errorf("path is required for source %s", ref.Name)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
