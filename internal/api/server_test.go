package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"QDataServer/internal/lifecycle"
	"QDataServer/pkg/plugin"
)

// stubPlugin satisfies the Plugin interface for the stub loader.
type stubPlugin struct{}

func (stubPlugin) Initialize() error         { return nil }
func (stubPlugin) Shutdown()                 {}
func (stubPlugin) IsShutdownRequested() bool { return false }

// stubLoader serves a fresh stub plugin for every library.
type stubLoader struct{}

func (stubLoader) Load(string) (plugin.Plugin, error) { return stubPlugin{}, nil }
func (stubLoader) Unload(string) bool                 { return true }

func writeSpec(t *testing.T, dir, name string, deps ...string) {
	t.Helper()
	content := fmt.Sprintf("<plugin name=%q version=\"1.0\">\n", name)
	content += "  <description>Status test plugin</description>\n"
	if len(deps) > 0 {
		content += "  <dependencyList>\n"
		for _, dep := range deps {
			content += fmt.Sprintf("    <dependency name=%q/>\n", dep)
		}
		content += "  </dependencyList>\n"
	}
	content += "</plugin>\n"
	path := filepath.Join(dir, name+".spec")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
}

func newStatusServer(t *testing.T) (*Server, *lifecycle.MemoryPublisher) {
	t.Helper()
	dir := t.TempDir()
	writeSpec(t, dir, "Base")
	writeSpec(t, dir, "App", "Base")

	events := lifecycle.NewMemoryPublisher(0)
	manager := plugin.NewManager(
		plugin.WithLoader(stubLoader{}),
		plugin.WithListener(lifecycle.Listener(events)))
	if err := manager.LoadPlugins([]string{dir}); err != nil {
		t.Fatalf("loadPlugins: %v", err)
	}
	return NewServer(":0", manager, events), events
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newStatusServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPluginsEndpointReportsStatesAndOrder(t *testing.T) {
	server, _ := newStatusServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/plugins", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var payload struct {
		Plugins []struct {
			Name         string   `json:"name"`
			State        string   `json:"state"`
			Dependencies []string `json:"dependencies"`
		} `json:"plugins"`
		DependencyOrder []string `json:"dependency_order"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(payload.Plugins))
	}
	for _, entry := range payload.Plugins {
		if entry.State != "loaded" {
			t.Fatalf("%s state = %q, want loaded", entry.Name, entry.State)
		}
	}
	if !slices.Equal(payload.DependencyOrder, []string{"Base", "App"}) {
		t.Fatalf("dependency order = %v, want [Base App]", payload.DependencyOrder)
	}
}

func TestEventsEndpointServesLifecycleTrail(t *testing.T) {
	server, events := newStatusServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/events", nil))

	var payload struct {
		Events []lifecycle.Event `json:"events"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Events) != len(events.Events()) {
		t.Fatalf("endpoint served %d events, publisher holds %d",
			len(payload.Events), len(events.Events()))
	}
	if len(payload.Events) == 0 {
		t.Fatalf("loading plugins must have produced lifecycle events")
	}
}

func TestPluginsEndpointRejectsNonGet(t *testing.T) {
	server, _ := newStatusServer(t)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder,
		httptest.NewRequest(http.MethodPost, "/plugins", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}
