package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"verisync/config"
	"verisync/internal/checker"
	"verisync/internal/engine"
	"verisync/internal/events"
	"verisync/internal/model"
	"verisync/logging"
)

// ComponentRequest names a component for the action endpoints.
type ComponentRequest struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InterpretRequest carries simulation inputs for a component.
type InterpretRequest struct {
	URI    string `json:"uri"`
	Name   string `json:"name"`
	Inputs string `json:"inputs"`
}

// CounterExampleRequest names one property of one analysis.
type CounterExampleRequest struct {
	URI      string   `json:"uri"`
	Name     string   `json:"name"`
	Abstract []string `json:"abstract"`
	Concrete []string `json:"concrete"`
	Property string   `json:"property"`
}

// ChangeEvent is the SSE payload streamed to presentation clients.
type ChangeEvent struct {
	Type string `json:"type"` // "tree" or "decorations"
	All  bool   `json:"all,omitempty"`
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`
}

// CORS middleware to handle cross-origin requests
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

type server struct {
	engine *engine.Engine
	hub    *events.Hub
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI string `json:"uri"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URI == "" {
		http.Error(w, "Missing 'uri' field", http.StatusBadRequest)
		return
	}
	if err := s.engine.Refresh(r.Context(), req.URI); err != nil {
		http.Error(w, fmt.Sprintf("Refresh failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) checkHandler(w http.ResponseWriter, r *http.Request) {
	var req ComponentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.engine.Check(model.ComponentID{File: model.FileID(req.URI), Name: req.Name})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownComponent) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]string{"status": "running"})
}

func (s *server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	var req ComponentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.engine.Cancel(model.ComponentID{File: model.FileID(req.URI), Name: req.Name})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

func (s *server) interpretHandler(w http.ResponseWriter, r *http.Request) {
	var req InterpretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.engine.Interpret(r.Context(), model.ComponentID{File: model.FileID(req.URI), Name: req.Name}, req.Inputs)
	if err != nil {
		http.Error(w, fmt.Sprintf("Interpret failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"result": result})
}

func (s *server) counterExampleHandler(w http.ResponseWriter, r *http.Request) {
	var req CounterExampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.engine.CounterExample(r.Context(),
		model.ComponentID{File: model.FileID(req.URI), Name: req.Name},
		req.Abstract, req.Concrete, req.Property)
	if err != nil {
		http.Error(w, fmt.Sprintf("Counterexample failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"result": result})
}

func (s *server) rawHandler(w http.ResponseWriter, r *http.Request) {
	var req ComponentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd, err := s.engine.RawCommand(r.Context(), model.ComponentID{File: model.FileID(req.URI), Name: req.Name})
	if err != nil {
		http.Error(w, fmt.Sprintf("Raw command lookup failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string][]string{"command": cmd})
}

func (s *server) treeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Snapshot())
}

func (s *server) decorationsHandler(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		http.Error(w, "Missing 'uri' query parameter", http.StatusBadRequest)
		return
	}
	buckets := s.engine.Decorations(uri)
	out := make(map[string][]int, len(buckets))
	for state, lines := range buckets {
		out[state.String()] = lines
	}
	writeJSON(w, out)
}

func (s *server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(s.engine.Snapshot())
	if err != nil {
		http.Error(w, fmt.Sprintf("Snapshot failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// eventsHandler streams tree-changed and decoration-refresh notifications as
// Server-Sent Events. Events are fire-and-forget: a slow client loses events
// and recovers by re-reading /tree.
func (s *server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := make(chan ChangeEvent, 64)
	offer := func(ev ChangeEvent) {
		select {
		case ch <- ev:
		default: // drop; the tree is the source of truth
		}
	}
	unsubTree := s.hub.OnTreeChanged(func(ev events.TreeEvent) {
		offer(ChangeEvent{
			Type: "tree",
			All:  ev.All,
			URI:  string(ev.Component.File),
			Name: ev.Component.Name,
		})
	})
	unsubDeco := s.hub.OnDecorationsChanged(func() {
		offer(ChangeEvent{Type: "decorations"})
	})
	defer unsubTree()
	defer unsubDeco()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	if err := config.Load(); err != nil {
		logrus.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger()

	client, err := checker.NewClient(
		config.AppConfig.Checker.BaseURL,
		time.Duration(config.AppConfig.Checker.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		logrus.Fatalf("Error creating checker client: %v", err)
	}

	hub := events.NewHub()
	s := &server{
		engine: engine.New(client, hub),
		hub:    hub,
	}

	http.HandleFunc("/refresh", corsMiddleware(s.refreshHandler))
	http.HandleFunc("/check", corsMiddleware(s.checkHandler))
	http.HandleFunc("/cancel", corsMiddleware(s.cancelHandler))
	http.HandleFunc("/interpret", corsMiddleware(s.interpretHandler))
	http.HandleFunc("/counterexample", corsMiddleware(s.counterExampleHandler))
	http.HandleFunc("/raw", corsMiddleware(s.rawHandler))
	http.HandleFunc("/tree", corsMiddleware(s.treeHandler))
	http.HandleFunc("/decorations", corsMiddleware(s.decorationsHandler))
	http.HandleFunc("/snapshot", corsMiddleware(s.snapshotHandler))
	http.HandleFunc("/events", corsMiddleware(s.eventsHandler))
	http.HandleFunc("/health", corsMiddleware(healthCheckHandler))

	port := fmt.Sprintf(":%d", config.AppConfig.Server.Port)
	logrus.Infof("Starting server on port %s...", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}
