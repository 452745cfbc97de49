// Package server exposes the shopping list over HTTP, next to health and
// metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddvo/chorelist/internal/chores"
	"github.com/ddvo/chorelist/internal/infra/storage"
	"github.com/ddvo/chorelist/internal/txretry"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server provides the HTTP API.
type Server struct {
	svc    *chores.Service
	checks map[string]HealthCheck
	server *http.Server
}

// New creates a new server.
func New(svc *chores.Service, checks map[string]HealthCheck, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:    svc,
		checks: checks,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /lists/{username}/items", s.handleList)
	mux.HandleFunc("POST /lists/{username}/items", s.handleAdd)
	mux.HandleFunc("POST /lists/{username}/items/{id}/bought", s.handleBuy)
	mux.HandleFunc("DELETE /lists/{username}/items/{id}", s.handleRemove)

	return s
}

// Handler exposes the routing mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			report[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListItems(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type addRequest struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := s.svc.AddItem(r.Context(), r.PathValue("username"), req.Item, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	item, err := s.svc.MarkBought(r.Context(), r.PathValue("username"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	remaining, err := s.svc.RemoveItem(r.Context(), r.PathValue("username"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps service failures to HTTP statuses. Exhausted budgets and
// cancellations come back 503 so well-behaved clients retry later;
// constraint violations are conflicts the client must resolve.
func writeError(w http.ResponseWriter, err error) {
	var (
		fatal     *txretry.FatalError
		exhausted *txretry.ExhaustedError
		cancelled *txretry.CancelledError
		cls       *txretry.ClassifiedError
	)

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, storage.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.As(err, &exhausted), errors.As(err, &cancelled):
		status = http.StatusServiceUnavailable
	case errors.As(err, &fatal):
		status = http.StatusInternalServerError
		if errors.As(err, &cls) && cls.Kind == txretry.KindConstraint {
			status = http.StatusConflict
		}
	}

	if status >= 500 {
		slog.Error("request failed", "status", status, "error", err)
	}
	http.Error(w, err.Error(), status)
}
