package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// recordingMonitor captures the status updates of an initialization pass.
type recordingMonitor struct {
	statuses []string
}

func (m *recordingMonitor) SetStatus(status string) {
	m.statuses = append(m.statuses, status)
}

// memorySettings is an in-memory SettingsStore.
type memorySettings struct {
	values map[string][]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: map[string][]string{}}
}

func (s *memorySettings) StringList(key string) ([]string, error) {
	return s.values[key], nil
}

func (s *memorySettings) SetStringList(key string, values []string) error {
	s.values[key] = values
	return nil
}

// newTestManager builds a manager over a temp directory of spec files.
// deps maps plugin name to its dependency names.
func newTestManager(t *testing.T, loader *fakeLoader, deps map[string][]string, opts ...Option) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	for name, depNames := range deps {
		var dependencies []Dependency
		for _, depName := range depNames {
			dependencies = append(dependencies, Dependency{Name: depName})
		}
		writeSpecFile(t, dir, name, "1.0", dependencies...)
	}
	opts = append([]Option{WithLoader(loader)}, opts...)
	return NewManager(opts...), dir
}

func TestLoadPluginsFollowsDependencyOrder(t *testing.T) {
	loader := newFakeLoader()
	for _, name := range []string{"A", "B", "C", "D"} {
		loader.add(name)
	}
	// Diamond: B and C depend on A, D depends on B and C.
	m, dir := newTestManager(t, loader, map[string][]string{
		"A": nil, "B": {"A"}, "C": {"A"}, "D": {"B", "C"},
	})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if !slices.Equal(loader.loaded, []string{"A", "B", "C", "D"}) {
		t.Fatalf("load order = %v, want [A B C D]", loader.loaded)
	}
	for _, spec := range m.PluginSpecs() {
		if spec.State() != StateLoaded {
			t.Fatalf("%s state = %v, want loaded", spec.Name(), spec.State())
		}
		if m.PluginSpec(spec.Plugin()) != spec {
			t.Fatalf("instance mapping broken for %s", spec.Name())
		}
	}
}

func TestLoadPluginsTwiceFails(t *testing.T) {
	loader := newFakeLoader()
	loader.add("A")
	m, dir := newTestManager(t, loader, map[string][]string{"A": nil})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if err := m.LoadPlugins([]string{dir}); err == nil {
		t.Fatalf("second loadPlugins must fail")
	}
}

func TestDiscoveryDescendsSubdirectories(t *testing.T) {
	loader := newFakeLoader()
	loader.add("Nested")
	dir := t.TempDir()
	subDir := filepath.Join(dir, "extra", "deep")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSpecFile(t, subDir, "Nested", "1.0")

	m := NewManager(WithLoader(loader))
	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if !m.IsPluginLoaded("Nested") {
		t.Fatalf("spec in nested directory must be discovered")
	}
}

func TestUnreadableSpecStaysRegisteredWithError(t *testing.T) {
	loader := newFakeLoader()
	loader.add("Good")
	dir := t.TempDir()
	writeSpecFile(t, dir, "Good", "1.0")
	brokenPath := filepath.Join(dir, "broken.spec")
	if err := os.WriteFile(brokenPath, []byte("<plugin>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(WithLoader(loader))
	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if len(m.PluginSpecs()) != 2 {
		t.Fatalf("both specs must stay registered, got %d", len(m.PluginSpecs()))
	}
	var broken *Spec
	for _, spec := range m.PluginSpecs() {
		if spec.State() == StateInvalid {
			broken = spec
		}
	}
	if broken == nil || !broken.HasError() {
		t.Fatalf("the unreadable spec must report its error")
	}
	if !m.IsPluginLoaded("Good") {
		t.Fatalf("the healthy spec must still load")
	}
}

func TestInitializePluginsReportsProgressInOrder(t *testing.T) {
	loader := newFakeLoader()
	loader.add("A")
	loader.add("B")
	var events []string
	m, dir := newTestManager(t, loader,
		map[string][]string{"A": nil, "B": {"A"}},
		WithListener(func(event Event, pluginName, _ string) {
			events = append(events, string(event)+":"+pluginName)
		}))

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	monitor := &recordingMonitor{}
	if !m.InitializePlugins(monitor) {
		t.Fatalf("initializePlugins must succeed")
	}
	if !slices.Equal(monitor.statuses, []string{"A", "B"}) {
		t.Fatalf("statuses = %v, want [A B]", monitor.statuses)
	}
	for _, spec := range m.PluginSpecs() {
		if spec.State() != StateInitialized {
			t.Fatalf("%s state = %v, want initialized", spec.Name(), spec.State())
		}
	}
	if n := countEvent(events, EventAllInitialized, ""); n != 1 {
		t.Fatalf("plugins-initialized must fire exactly once, got %d", n)
	}
}

func countEvent(events []string, event Event, pluginName string) int {
	n := 0
	for _, entry := range events {
		if entry == string(event)+":"+pluginName {
			n++
		}
	}
	return n
}

func TestInitializeFailureUnloadsDependents(t *testing.T) {
	loader := newFakeLoader()
	loader.add("A")
	loader.add("B").initErr = fmt.Errorf("boom")
	loader.add("C")
	// C depends on the failing B, which depends on A.
	m, dir := newTestManager(t, loader, map[string][]string{
		"A": nil, "B": {"A"}, "C": {"B"},
	})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if m.InitializePlugins(nil) {
		t.Fatalf("initializePlugins must report failure")
	}

	byName := map[string]*Spec{}
	for _, spec := range m.PluginSpecs() {
		byName[spec.Name()] = spec
	}
	if byName["A"].State() != StateInitialized {
		t.Fatalf("A state = %v, want initialized", byName["A"].State())
	}
	if byName["B"].State() != StateResolved {
		t.Fatalf("the failing plugin must be unloaded, B state = %v",
			byName["B"].State())
	}
	if byName["C"].State() != StateResolved {
		t.Fatalf("the dependent plugin must be unloaded, C state = %v",
			byName["C"].State())
	}
	if !byName["C"].IsIndirectlyDisabled() {
		t.Fatalf("C must become indirectly disabled")
	}
	if _, requested := m.IsShutdownRequested(); requested {
		t.Fatalf("no plugin requested shutdown")
	}
}

func TestInitializeShutdownRequestAbortsPass(t *testing.T) {
	loader := newFakeLoader()
	critical := loader.add("A")
	critical.initErr = fmt.Errorf("unrecoverable")
	critical.shutdownRequested = true
	loader.add("B")
	m, dir := newTestManager(t, loader, map[string][]string{
		"A": nil, "B": nil,
	})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if m.InitializePlugins(nil) {
		t.Fatalf("initializePlugins must report failure")
	}
	name, requested := m.IsShutdownRequested()
	if !requested || name != "A" {
		t.Fatalf("shutdown requested = %q/%v, want A/true", name, requested)
	}
	for _, spec := range m.PluginSpecs() {
		if spec.Name() == "B" && spec.State() == StateInitialized {
			t.Fatalf("the pass must abort before initializing B")
		}
	}
}

func TestUnloadPluginsShutsDownInReverseOrder(t *testing.T) {
	var shutdowns []string
	loader := newFakeLoader()
	for _, name := range []string{"A", "B", "C"} {
		loader.add(name).shutdowns = &shutdowns
	}
	// Chain: C -> B -> A.
	m, dir := newTestManager(t, loader, map[string][]string{
		"A": nil, "B": {"A"}, "C": {"B"},
	})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if !m.InitializePlugins(nil) {
		t.Fatalf("initializePlugins must succeed")
	}
	m.UnloadPlugins()

	if !slices.Equal(shutdowns, []string{"C", "B", "A"}) {
		t.Fatalf("shutdown order = %v, want [C B A]", shutdowns)
	}
	if len(m.Plugins()) != 0 {
		t.Fatalf("no plugin instance may remain after unloadPlugins")
	}
	for _, spec := range m.PluginSpecs() {
		if spec.State() != StateResolved {
			t.Fatalf("%s state = %v, want resolved", spec.Name(), spec.State())
		}
	}
}

func TestDisabledListRestoredFromSettings(t *testing.T) {
	settings := newMemorySettings()
	settings.values[DisabledPluginsKey] = []string{"B"}

	loader := newFakeLoader()
	loader.add("A")
	loader.add("B")
	m, dir := newTestManager(t, loader,
		map[string][]string{"A": nil, "B": nil},
		WithSettings(settings))

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	if m.IsPluginLoaded("B") {
		t.Fatalf("the persisted disabled plugin must not load")
	}
	if !m.IsPluginLoaded("A") {
		t.Fatalf("A must load")
	}
}

func TestDisabledListSavedOnClose(t *testing.T) {
	settings := newMemorySettings()
	loader := newFakeLoader()
	loader.add("A")
	loader.add("B")
	m, dir := newTestManager(t, loader,
		map[string][]string{"A": nil, "B": nil},
		WithSettings(settings))

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	for _, spec := range m.PluginSpecs() {
		if spec.Name() == "B" {
			spec.SetEnabled(false)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := settings.values[DisabledPluginsKey]; !slices.Equal(got, []string{"B"}) {
		t.Fatalf("persisted disabled list = %v, want [B]", got)
	}
}

func TestUnloadQueueIsReversedLoadQueue(t *testing.T) {
	loader := newFakeLoader()
	for _, name := range []string{"A", "B", "C", "D"} {
		loader.add(name)
	}
	m, dir := newTestManager(t, loader, map[string][]string{
		"A": nil, "B": {"A"}, "C": {"A"}, "D": {"B", "C"},
	})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	loadOrder := specNames(m.loadQueue())
	unloadOrder := specNames(m.unloadQueue())

	reversed := slices.Clone(unloadOrder)
	slices.Reverse(reversed)
	if !slices.Equal(loadOrder, reversed) {
		t.Fatalf("unload queue %v is not the reverse of load queue %v",
			unloadOrder, loadOrder)
	}
	if !slices.Equal(loadOrder, []string{"A", "B", "C", "D"}) {
		t.Fatalf("load queue = %v, want [A B C D]", loadOrder)
	}
}

func TestManagerConfigAppliesPolicies(t *testing.T) {
	loader := newFakeLoader()
	loader.add("Core")
	loader.add("Extra")
	m, dir := newTestManager(t, loader,
		map[string][]string{"Core": nil, "Extra": nil})

	if err := m.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}

	disabled := false
	cfg := ManagerConfig{
		SearchPaths: []string{dir},
		Plugins: map[string]PluginPolicy{
			"Core":  {Persistent: true},
			"Extra": {Enabled: &disabled},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.Apply(m)

	for _, spec := range m.PluginSpecs() {
		switch spec.Name() {
		case "Core":
			if !spec.IsPersistent() || !spec.IsEnabled() {
				t.Fatalf("Core must be persistent and enabled")
			}
		case "Extra":
			if spec.IsEnabled() {
				t.Fatalf("Extra must be disabled by policy")
			}
		}
	}
}
