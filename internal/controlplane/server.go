package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminara-labs/luminara/internal/assistant"
)

// Server provides the HTTP API for Luminara.
type Server struct {
	service *Service
	addr    string
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		addr:    addr,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("starting luminara daemon", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/agents/", s.handleAgentByID)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// handleAgents handles POST /agents and GET /agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAgent(w, r)
	case http.MethodGet:
		includeDeleted := r.URL.Query().Get("include_deleted") == "true"
		writeJSON(w, http.StatusOK, s.service.ListAgents(includeDeleted))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAgentByID handles /agents/{id} and its sub-resources.
func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/agents/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "agent id required", http.StatusBadRequest)
		return
	}

	agentID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getAgent(w, agentID)
	case action == "" && r.Method == http.MethodDelete:
		agent, err := s.service.DeleteAgent(agentID)
		s.respond(w, agent, err)
	case action == "restore" && r.Method == http.MethodPost:
		agent, err := s.service.RestoreAgent(agentID)
		s.respond(w, agent, err)
	case action == "toggle" && r.Method == http.MethodPost:
		agent, err := s.service.ToggleStatus(agentID)
		s.respond(w, agent, err)
	case action == "auto-execute" && r.Method == http.MethodPost:
		agent, err := s.service.ToggleAutoExecute(agentID)
		s.respond(w, agent, err)
	case action == "message" && r.Method == http.MethodPost:
		s.sendMessage(w, r, agentID)
	case action == "confirm" && r.Method == http.MethodPost:
		s.confirmMarkAll(w, r, agentID)
	case action == "revise" && r.Method == http.MethodPost:
		s.reviseAgent(w, r, agentID)
	case action == "tasks" && len(parts) == 4 && parts[3] == "execute" && r.Method == http.MethodPost:
		s.executeTask(w, r, agentID, parts[2])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	agent, err := s.service.CreateAgent(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) getAgent(w http.ResponseWriter, agentID string) {
	agent, err := s.service.GetAgent(agentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, agentID string) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	agent, err := s.service.SendMessage(r.Context(), agentID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type confirmRequest struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) confirmMarkAll(w http.ResponseWriter, r *http.Request, agentID string) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	agent, err := s.service.ConfirmMarkAll(agentID, req.TaskIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type reviseRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) reviseAgent(w http.ResponseWriter, r *http.Request, agentID string) {
	var req reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	agent, err := s.service.ReviseAgent(r.Context(), agentID, req.Feedback)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) executeTask(w http.ResponseWriter, r *http.Request, agentID, taskID string) {
	outcome, err := s.service.ExecuteTask(r.Context(), agentID, taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	agent, err := s.service.GetAgent(agentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
		"agent":   agent,
	})
}

// respond writes a service (agent, error) result uniformly.
func (s *Server) respond(w http.ResponseWriter, agent any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// writeError maps service errors to HTTP statuses. Only generation errors
// and not-found are expected; everything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var genErr *assistant.GenerationError
	switch {
	case errors.As(err, &genErr):
		http.Error(w, genErr.Error(), http.StatusBadGateway)
	case errors.Is(err, ErrAgentNotFound), errors.Is(err, ErrTaskNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmptyGoal), errors.Is(err, ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
