// Package plugin implements the plugin lifecycle of the QDataServer host.
//
// The host discovers XML description files under its plugin search paths,
// parses each into a Spec, resolves the inter-plugin dependency graph and
// drives every spec through the states Invalid, Read, Resolved, Loaded and
// Initialized. Enable and disable decisions - explicit user choices as well
// as the indirect consequences of disabled or broken dependencies - are
// propagated through the graph before anything is loaded.
package plugin

// Plugin is the general abstract API a plugin library must implement.
//
// A plugin consists of two parts: a description file, and a shared library
// that at least contains the Plugin implementation.
type Plugin interface {
	// Initialize allocates the plugin's resources and sets up its internal
	// state. Plugins that depend on this one are initialized after this
	// method has returned. A non-nil error carries the user-readable
	// reason the initialization failed.
	Initialize() error

	// Shutdown stores the plugin's state and releases all allocated
	// resources. Plugins are shut down in reverse initialization order.
	Shutdown()

	// IsShutdownRequested reports whether a failed initialization is
	// critical enough that the whole application should terminate.
	IsShutdownRequested() bool
}

// ProgressMonitor receives the name of every plugin about to be
// initialized, so the host can surface start-up progress. The monitor must
// not call back into the manager.
type ProgressMonitor interface {
	SetStatus(status string)
}

// LifecycleListener observes lifecycle milestones. The plugin name is empty
// for milestones that concern the whole pass, such as EventAllInitialized.
type LifecycleListener func(event Event, pluginName, detail string)

// Event names a lifecycle milestone reported to listeners.
type Event string

const (
	// EventLoaded fires after a plugin library was loaded.
	EventLoaded Event = "loaded"
	// EventInitialized fires after a plugin initialized successfully.
	EventInitialized Event = "initialized"
	// EventInitializationFailed fires when a plugin fails to initialize.
	EventInitializationFailed Event = "initialization-failed"
	// EventUnloaded fires after a plugin was unloaded.
	EventUnloaded Event = "unloaded"
	// EventAllInitialized fires exactly once per initialization pass.
	EventAllInitialized Event = "plugins-initialized"
)

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default dynamic library loader.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithSettings attaches the host settings store used to persist the
// disabled-plugin list.
func WithSettings(store SettingsStore) Option {
	return func(m *Manager) {
		m.settings = store
	}
}

// WithListener registers a lifecycle listener.
func WithListener(listener LifecycleListener) Option {
	return func(m *Manager) {
		if listener != nil {
			m.listeners = append(m.listeners, listener)
		}
	}
}

// SettingsStore is the slice of the host's settings service the manager
// needs: one string-list value per key.
type SettingsStore interface {
	StringList(key string) ([]string, error)
	SetStringList(key string, values []string) error
}
