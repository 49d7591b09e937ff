package plugin

import (
	"errors"
	goplugin "plugin"
)

// Loader resolves plugin library paths into Plugin implementations and
// releases them again.
type Loader interface {
	// Load opens the library at path and returns its Plugin instance.
	Load(path string) (Plugin, error)
	// Unload releases the library. It reports false when the library is
	// still referenced and stays in memory.
	Unload(path string) bool
}

// GoPluginLoader uses the Go standard library plugin mechanism to load
// shared objects built with -buildmode=plugin.
type GoPluginLoader struct{}

// Load opens the shared object and looks up a `Plugin` symbol implementing
// the Plugin interface.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, err
	}
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, errors.New("plugin symbol must implement plugin.Plugin")
	}
}

// Unload always reports the library as still referenced: the Go runtime
// never unmaps a shared object once opened.
func (GoPluginLoader) Unload(string) bool {
	return false
}
