// Package testdps provides a fake chi-routed DPS service for exercising
// transport.HTTPTransport in integration tests, without a real provisioning
// backend.
package testdps

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
)

// Operation is one scripted registration operation, keyed by operation id.
// Statuses lists the status returned by the register call and then by each
// successive poll; the server holds at the final entry once exhausted.
// State is returned as the registration state only with the final entry.
type Operation struct {
	Statuses []string
	State    map[string]any
}

// Server is a fake DPS service: POST /api/register starts a new scripted
// operation, GET /api/register/{id} advances it one step per call.
type Server struct {
	log *slog.Logger

	mu         sync.Mutex
	nextOpID   int
	operations map[string]*runningOp
	script     func(operationID string) Operation
}

type runningOp struct {
	op    Operation
	index int
}

// New builds a Server whose registrations are all driven by the same
// script function, keyed by the operation id it assigns.
func New(log *slog.Logger, script func(operationID string) Operation) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, operations: map[string]*runningOp{}, script: script}
}

// Handler returns the routed, logging-wrapped http.Handler for this server.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.With(s.httpLogger).Post("/api/register", s.handleRegister)
	mux.With(s.httpLogger).Get("/api/register/{operationID}", s.handleStatus)
	return mux
}

// Start wraps Handler in an httptest.Server for use as an HTTPTransport
// BaseURL in tests.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s.Handler())
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.nextOpID++
	id := fmt.Sprintf("op-%d", s.nextOpID)
	op := s.script(id)
	s.operations[id] = &runningOp{op: op}
	s.mu.Unlock()

	s.writeStatus(w, id, 0)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")

	s.mu.Lock()
	running, ok := s.operations[id]
	if ok && running.index < len(running.op.Statuses)-1 {
		running.index++
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "unknown operation id", http.StatusNotFound)
		return
	}
	s.writeStatus(w, id, running.index)
}

func (s *Server) writeStatus(w http.ResponseWriter, id string, index int) {
	s.mu.Lock()
	running := s.operations[id]
	status := running.op.Statuses[index]
	var state map[string]any
	if index == len(running.op.Statuses)-1 {
		state = running.op.State
	}
	s.mu.Unlock()

	body := map[string]any{"operationId": id, "status": status}
	if state != nil {
		body["registrationState"] = state
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}
