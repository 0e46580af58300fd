package plugins

import (
	"fmt"
	"strings"
)

// ArtifactDefinition describes a locally supplied artifact loaded from YAML.
//
// The struct mirrors the on-disk schema of <source>/<name>.yaml and is kept
// narrow so a definition can be validated before it shadows anything the
// host would otherwise provide.
type ArtifactDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Requires    []string       `json:"requires,omitempty" yaml:"requires,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def ArtifactDefinition) Normalized() ArtifactDefinition {
	clone := ArtifactDefinition{
		Name:        strings.TrimSpace(def.Name),
		Version:     strings.TrimSpace(def.Version),
		Description: strings.TrimSpace(def.Description),
	}
	if len(def.Requires) > 0 {
		clone.Requires = make([]string, len(def.Requires))
		for i, name := range def.Requires {
			clone.Requires[i] = strings.TrimSpace(name)
		}
	}
	if len(def.Config) > 0 {
		clone.Config = make(map[string]any, len(def.Config))
		for key, value := range def.Config {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Config[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the definition is well-formed.
func (def ArtifactDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	if normalized.Version == "" {
		return fmt.Errorf("plugin %s: version is required", normalized.Name)
	}
	seen := make(map[string]struct{}, len(normalized.Requires))
	for idx, req := range normalized.Requires {
		if req == "" {
			return fmt.Errorf("plugin %s: requires[%d]: name is required", normalized.Name, idx)
		}
		if req == normalized.Name {
			return fmt.Errorf("plugin %s: requires[%d]: artifact requires itself", normalized.Name, idx)
		}
		if _, exists := seen[req]; exists {
			return fmt.Errorf("plugin %s: requires[%d]: duplicate requirement %s", normalized.Name, idx, req)
		}
		seen[req] = struct{}{}
	}
	return nil
}
