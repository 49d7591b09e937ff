// Package api exposes the daemon's headless status surface: a health probe
// and a read-only view of the plugin specs, their lifecycle states and the
// dependency order.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"QDataServer/internal/lifecycle"
	"QDataServer/pkg/depgraph"
	"QDataServer/pkg/logger"
	"QDataServer/pkg/plugin"
)

// Server serves the status endpoints over HTTP.
type Server struct {
	addr    string
	manager *plugin.Manager
	events  *lifecycle.MemoryPublisher
}

// NewServer constructs the status server. The events publisher is optional;
// without it the events endpoint reports an empty list.
func NewServer(addr string, manager *plugin.Manager, events *lifecycle.MemoryPublisher) *Server {
	return &Server{addr: addr, manager: manager, events: events}
}

// Handler returns the HTTP handler serving the status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/plugins", s.handlePlugins)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start runs the HTTP server until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// pluginStatus is the serialised view of one spec.
type pluginStatus struct {
	Name                 string   `json:"name"`
	Version              string   `json:"version,omitempty"`
	Description          string   `json:"description,omitempty"`
	Category             string   `json:"category,omitempty"`
	State                string   `json:"state"`
	Enabled              bool     `json:"enabled"`
	Persistent           bool     `json:"persistent"`
	IndirectlyDisabled   bool     `json:"indirectly_disabled"`
	CircularDependency   bool     `json:"circular_dependency"`
	InitializationFailed bool     `json:"initialization_failed"`
	Error                string   `json:"error,omitempty"`
	Dependencies         []string `json:"dependencies,omitempty"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}

	specs := s.manager.PluginSpecs()
	statuses := make([]pluginStatus, 0, len(specs))
	for _, spec := range specs {
		status := pluginStatus{
			Name:                 spec.Name(),
			Version:              spec.Version(),
			Description:          spec.Description(),
			Category:             spec.Category(),
			State:                spec.State().String(),
			Enabled:              spec.IsEnabled(),
			Persistent:           spec.IsPersistent(),
			IndirectlyDisabled:   spec.IsIndirectlyDisabled(),
			CircularDependency:   spec.HasCircularDependency(),
			InitializationFailed: spec.InitializationFailed(),
			Error:                spec.ErrorString(),
		}
		for _, dep := range spec.Dependencies() {
			entry := dep.Name
			if dep.Version != "" {
				entry += " " + dep.Version
			}
			status.Dependencies = append(status.Dependencies, entry)
		}
		statuses = append(statuses, status)
	}

	writeJSON(w, map[string]any{
		"plugins":          statuses,
		"dependency_order": dependencyOrder(specs),
	})
}

// dependencyOrder lists the resolved, cycle-free specs in a load-compatible
// order: every plugin appears after the plugins it requires, independent
// plugins sorted by name.
func dependencyOrder(specs []*plugin.Spec) []string {
	graph := depgraph.NewOrderedGraph[string]()
	included := map[string]bool{}
	for _, spec := range specs {
		if spec.State() >= plugin.StateResolved && !spec.HasCircularDependency() {
			graph.AddNode(spec.Name())
			included[spec.Name()] = true
		}
	}
	for _, spec := range specs {
		if !included[spec.Name()] {
			continue
		}
		for _, dep := range spec.DependencySpecs() {
			if included[dep.Name()] {
				graph.AddEdge(spec.Name(), dep.Name())
			}
		}
	}
	return graph.Sort()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	events := []lifecycle.Event{}
	if s.events != nil {
		events = s.events.Events()
	}
	writeJSON(w, map[string]any{"events": events})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(payload); err != nil && !isBrokenPipe(err) {
		logger.L().Warn("status response could not be written", "error", err)
	}
}

func isBrokenPipe(err error) bool {
	return err != nil && strings.Contains(err.Error(), "broken pipe")
}
