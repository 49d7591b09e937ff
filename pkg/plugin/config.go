package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManagerConfig describes where the manager searches for plugins and which
// policy flags the host applies to individual plugins before
// initialization.
type ManagerConfig struct {
	SearchPaths []string                `yaml:"searchPaths"`
	Plugins     map[string]PluginPolicy `yaml:"plugins"`
}

// PluginPolicy is the per-plugin policy block. Persistent plugins cannot be
// disabled; the enabled override replaces the spec's enabled flag. Apply runs
// after LoadPlugins, so the override does not change which plugins the
// current run loads; it reaches the persisted disabled list on Close.
type PluginPolicy struct {
	Enabled    *bool `yaml:"enabled"`
	Persistent bool  `yaml:"persistent"`
}

// LoadManagerConfig reads a YAML file into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginPolicy{}
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (c ManagerConfig) Validate() error {
	if len(c.SearchPaths) == 0 {
		return errors.New("at least one plugin search path is required")
	}
	for name, policy := range c.Plugins {
		if name == "" {
			return errors.New("plugin name cannot be empty")
		}
		if policy.Persistent && policy.Enabled != nil && !*policy.Enabled {
			return fmt.Errorf("plugin %s cannot be both persistent and disabled", name)
		}
	}
	return nil
}

// Apply transfers the per-plugin policy flags onto the manager's specs.
// Call it after LoadPlugins has read the description files, before the
// plugins are initialized.
func (c ManagerConfig) Apply(m *Manager) {
	for _, spec := range m.PluginSpecs() {
		policy, ok := c.Plugins[spec.Name()]
		if !ok {
			continue
		}
		if policy.Persistent {
			spec.SetPersistent(true)
		}
		if policy.Enabled != nil {
			spec.SetEnabled(*policy.Enabled)
		}
	}
}
