// Package qservertest provides a fake queue server for tests.
package qservertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sophys.sh/cli/pkg/plan"
)

// Config configures a Server.
type Config struct {
	// When non-empty, requests must carry "Authorization: ApiKey <APIKey>".
	APIKey  string
	Plans   []string
	Devices []string
	// Whether the worker environment starts open. Items can only be added
	// and the queue started with an open environment.
	EnvironmentOpen bool
}

// Item is an item received by the server.
type Item struct {
	plan.Item
	UID  string
	User string
}

// Server is a fake queue server listening on a local port.
type Server struct {
	*httptest.Server
	cfg Config

	mu       sync.Mutex
	envOpen  bool
	running  bool
	queue    []Item
	requests []string
}

// New starts a fake server. Callers must Close it.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, envOpen: cfg.EnvironmentOpen}
	r := chi.NewRouter()
	r.Use(s.record, s.auth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/plans/allowed", s.handleAllowed("plans_allowed", cfg.Plans))
		r.Get("/devices/allowed", s.handleAllowed("devices_allowed", cfg.Devices))
		r.Post("/queue/item/add", s.handleItemAdd)
		r.Get("/queue/get", s.handleQueueGet)
		r.Post("/queue/start", s.handleQueueStart)
		r.Post("/environment/open", s.handleEnvironmentOpen)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// Queue returns the items added so far.
func (s *Server) Queue() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

// Requests returns the "METHOD /path" of every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// EnvironmentOpen reports whether the worker environment is open.
func (s *Server) EnvironmentOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envOpen
}

// Running reports whether the queue was started.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("Authorization") != "ApiKey "+s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	managerState := "idle"
	if s.running {
		managerState = "executing_queue"
	}
	envState := "closed"
	if s.envOpen {
		envState = "idle"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"msg":                       "RE Manager",
		"manager_state":             managerState,
		"items_in_queue":            len(s.queue),
		"items_in_history":          0,
		"running_item_uid":          nil,
		"worker_environment_exists": s.envOpen,
		"worker_environment_state":  envState,
		"re_state":                  nil,
	})
}

func (s *Server) handleAllowed(key string, names []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed := make(map[string]any, len(names))
		for _, name := range names {
			allowed[name] = map[string]any{"name": name}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "msg": "", key: allowed})
	}
}

func (s *Server) handleItemAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item *struct {
			plan.Item
			ItemType string `json:"item_type"`
			User     string `json:"user"`
		} `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Item == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid item"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.envOpen {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "msg": "RE Worker environment does not exist", "qsize": len(s.queue)})
		return
	}
	if req.Item.ItemType != "plan" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "msg": "unsupported item type " + req.Item.ItemType})
		return
	}
	if len(s.cfg.Plans) > 0 && !slices.Contains(s.cfg.Plans, req.Item.Name) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "msg": "Plan '" + req.Item.Name + "' is not in the list of allowed plans"})
		return
	}
	item := Item{Item: req.Item.Item, UID: uuid.NewString(), User: req.Item.User}
	s.queue = append(s.queue, item)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "msg": "", "qsize": len(s.queue), "item": wireItem(item)})
}

func (s *Server) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]map[string]any, len(s.queue))
	for i, item := range s.queue {
		items[i] = wireItem(item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "msg": "", "items": items, "running_item": map[string]any{}})
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.envOpen {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "msg": "Failed to start the queue: RE Worker environment does not exist"})
		return
	}
	s.running = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "msg": ""})
}

func (s *Server) handleEnvironmentOpen(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envOpen {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false, "msg": "RE Worker environment already exists"})
		return
	}
	s.envOpen = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "msg": ""})
}

func wireItem(item Item) map[string]any {
	return map[string]any{
		"name": item.Name, "args": item.Args, "kwargs": item.Kwargs,
		"item_type": "plan", "item_uid": item.UID, "user": item.User,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
