package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	xerrors "QDataServer/internal/errors"
	"QDataServer/pkg/logger"
)

// DisabledPluginsKey is the settings key holding the names of the plugins
// the user disabled.
const DisabledPluginsKey = "PluginManager/PluginSpec.DisabledPlugins"

// SpecFileSuffix is the file name suffix of plugin description files.
const SpecFileSuffix = ".spec"

// Manager owns the plugin specs, drives every spec through the lifecycle
// state machine, propagates enable and disable decisions and persists the
// disabled-plugin list.
//
// All manager methods are called on the host's main thread; the manager
// serialises nothing itself.
type Manager struct {
	specs     []*Spec
	instances map[Plugin]*Spec

	loader    Loader
	settings  SettingsStore
	listeners []LifecycleListener

	disabledPlugins []string

	pluginWhichRequestedShutdown string

	closed bool
}

var (
	managerInstance *Manager
	managerOnce     sync.Once
)

// Instance returns the process-wide manager, lazily constructed on first
// access with the default loader and no settings store. Hosts that need a
// configured manager construct one with NewManager before anything queries
// the singleton.
func Instance() *Manager {
	managerOnce.Do(func() {
		if managerInstance == nil {
			managerInstance = NewManager()
		}
	})
	return managerInstance
}

// NewManager constructs a manager and restores the persisted
// disabled-plugin list. The first manager constructed becomes the
// singleton returned by Instance.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		instances: make(map[Plugin]*Spec),
		loader:    GoPluginLoader{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.restoreSettings()
	if managerInstance == nil {
		managerInstance = m
	}
	return m
}

// LoadPlugins searches the given paths for plugin description files,
// resolves the dependencies among the found plugins and loads them in
// dependency order.
//
// It must be called once, before any plugin is loaded.
func (m *Manager) LoadPlugins(paths []string) error {
	if len(paths) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument,
			"no plugin search paths given")
	}
	if len(m.specs) != 0 {
		return xerrors.New(xerrors.CodeConflict, "plugins already loaded")
	}

	m.readPluginSpecs(paths)
	m.resolveDependencies()

	for _, spec := range m.loadQueue() {
		if instance := spec.LoadPlugin(); instance != nil {
			m.instances[instance] = spec
			m.notify(EventLoaded, spec.Name(), "")
		}
	}
	return nil
}

// readPluginSpecs walks the search paths breadth-first, collecting every
// file ending in the spec suffix, and parses each into a fresh spec. Specs
// that fail to read stay registered in the Invalid state so their errors
// remain reportable.
func (m *Manager) readPluginSpecs(paths []string) {
	var specFileNames []string
	searchPaths := slices.Clone(paths)

	for len(searchPaths) > 0 {
		dir := searchPaths[0]
		searchPaths = searchPaths[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.L().Warn("plugin search path could not be read",
				"path", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			fullPath := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				searchPaths = append(searchPaths, fullPath)
				continue
			}
			if strings.HasSuffix(entry.Name(), SpecFileSuffix) {
				specFileNames = append(specFileNames, fullPath)
			}
		}
	}

	for _, specFileName := range specFileNames {
		spec := NewSpec()
		spec.loader = m.loader
		if err := spec.Read(specFileName); err != nil {
			logger.L().Warn("plugin description could not be read",
				"file", specFileName, "error", err)
		}
		m.specs = append(m.specs, spec)
	}
}

// resolveDependencies applies the persisted disabled list, establishes the
// graph edges on every spec and recomputes the indirectly-disabled flag of
// the whole spec set.
func (m *Manager) resolveDependencies() {
	for _, spec := range m.specs {
		if slices.Contains(m.disabledPlugins, spec.Name()) {
			spec.SetEnabled(false)
		}
		if err := spec.ResolveDependencies(m.specs); err != nil {
			logger.L().Warn("plugin dependencies could not be resolved",
				"plugin", spec.Name(), "error", err)
		}
	}
	for _, spec := range m.specs {
		spec.ResolveIndirectlyDisabled(true)
	}
}

// loadQueue builds the queue in which plugins must be loaded. Specs are
// handed over in ascending name order so the final sequence is the same on
// every run for a given plugin set.
func (m *Manager) loadQueue() []*Spec {
	sorted := make([]*Spec, 0, len(m.specs))
	for _, spec := range m.specs {
		if spec.State() >= StateResolved {
			sorted = append(sorted, spec)
		}
	}
	slices.SortFunc(sorted, func(a, b *Spec) int {
		return strings.Compare(a.Name(), b.Name())
	})

	var queue []*Spec
	for _, spec := range sorted {
		var cycleCheck []*Spec
		spec.LoadQueue(&queue, &cycleCheck)
	}
	return queue
}

// unloadQueue builds the queue in which plugins must be unloaded:
// dependents first. Specs are handed over in descending name order, the
// mirror image of the load queue, so unloading retraces loading backwards.
func (m *Manager) unloadQueue() []*Spec {
	sorted := make([]*Spec, 0, len(m.specs))
	for _, spec := range m.specs {
		if spec.State() >= StateLoaded {
			sorted = append(sorted, spec)
		}
	}
	slices.SortFunc(sorted, func(a, b *Spec) int {
		return strings.Compare(b.Name(), a.Name())
	})

	var queue []*Spec
	for _, spec := range sorted {
		var cycleCheck []*Spec
		spec.UnloadQueue(&queue, &cycleCheck)
	}
	return queue
}

// InitializePlugins initializes every loaded plugin in load order,
// reporting each plugin's name to the monitor first. When a plugin fails,
// its transitive dependents are unloaded and marked indirectly disabled;
// when the failing plugin requests application shutdown, the pass aborts
// immediately.
//
// It returns true iff every loaded plugin reached the Initialized state.
func (m *Manager) InitializePlugins(monitor ProgressMonitor) bool {
	allInitialized := true
	m.pluginWhichRequestedShutdown = ""

	for _, spec := range m.loadQueue() {
		if spec.State() != StateLoaded {
			continue
		}
		if monitor != nil {
			monitor.SetStatus(spec.Name())
		}
		if err := spec.InitializePlugin(); err != nil {
			allInitialized = false
			m.notify(EventInitializationFailed, spec.Name(), err.Error())

			// Shutdown requested: remember the plugin and abort the pass
			// without initializing the remaining plugins.
			if spec.Plugin().IsShutdownRequested() {
				m.pluginWhichRequestedShutdown = spec.Name()
				m.notify(EventAllInitialized, "", "")
				return false
			}

			// Unload the dependent plugins and update their
			// indirectly-disabled state.
			var queue, cycleCheck []*Spec
			spec.UnloadQueue(&queue, &cycleCheck)
			m.unloadPlugins(queue)
			spec.ResolveIndirectlyDisabled(true)
			continue
		}
		m.notify(EventInitialized, spec.Name(), "")
	}

	m.notify(EventAllInitialized, "", "")
	return allInitialized
}

// IsShutdownRequested reports whether a failing plugin requested
// application shutdown during the last initialization pass, and which one.
func (m *Manager) IsShutdownRequested() (pluginName string, requested bool) {
	return m.pluginWhichRequestedShutdown, m.pluginWhichRequestedShutdown != ""
}

// UnloadPlugins unloads every loaded plugin, dependents before the plugins
// they depend on. Each plugin that was initialized is shut down first.
func (m *Manager) UnloadPlugins() {
	m.unloadPlugins(m.unloadQueue())
}

func (m *Manager) unloadPlugins(queue []*Spec) {
	for _, spec := range queue {
		instance := spec.Plugin()
		if instance == nil {
			continue
		}
		delete(m.instances, instance)
		spec.UnloadPlugin()
		m.notify(EventUnloaded, spec.Name(), "")
	}
}

// Plugins returns the successfully loaded plugin instances.
func (m *Manager) Plugins() []Plugin {
	plugins := make([]Plugin, 0, len(m.instances))
	for instance := range m.instances {
		plugins = append(plugins, instance)
	}
	return plugins
}

// PluginSpecs returns every known spec, including those whose description
// file failed to read.
func (m *Manager) PluginSpecs() []*Spec {
	return slices.Clone(m.specs)
}

// PluginSpec returns the spec a loaded plugin instance belongs to.
func (m *Manager) PluginSpec(instance Plugin) *Spec {
	if instance == nil {
		return nil
	}
	return m.instances[instance]
}

// IsPluginLoaded reports whether the named plugin is currently loaded.
func (m *Manager) IsPluginLoaded(pluginName string) bool {
	for _, spec := range m.instances {
		if spec.Name() == pluginName {
			return true
		}
	}
	return false
}

// Close writes the disabled-plugin list back to the settings store. The
// manager stays queryable afterwards but persists nothing further.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.saveSettings()
}

func (m *Manager) restoreSettings() {
	if m.settings == nil {
		return
	}
	disabled, err := m.settings.StringList(DisabledPluginsKey)
	if err != nil {
		logger.L().Warn("disabled-plugin list could not be restored", "error", err)
		return
	}
	m.disabledPlugins = disabled
	logger.L().Debug("plugin manager settings restored",
		"disabled", len(disabled))
}

func (m *Manager) saveSettings() error {
	if m.settings == nil {
		return nil
	}

	var disabled []string
	for _, spec := range m.specs {
		if spec.State() >= StateRead && !spec.IsEnabled() &&
			!slices.Contains(disabled, spec.Name()) {
			disabled = append(disabled, spec.Name())
		}
	}

	if err := m.settings.SetStringList(DisabledPluginsKey, disabled); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err,
			fmt.Sprintf("disabled-plugin list could not be saved (%d entries)",
				len(disabled)))
	}
	logger.L().Debug("plugin manager settings saved", "disabled", len(disabled))
	return nil
}

func (m *Manager) notify(event Event, pluginName, detail string) {
	logger.Audit().Info("plugin lifecycle",
		"event", string(event), "plugin", pluginName, "detail", detail)
	for _, listener := range m.listeners {
		listener(event, pluginName, detail)
	}
}
