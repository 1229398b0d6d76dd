// Package api exposes the deliberation engine over HTTP: round execution,
// agent registry management, and session threads, behind the usual
// middleware chain (recovery, request IDs, logging, metrics, auth, rate
// limiting).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/config"
	"github.com/agentcouncil/roundtable/deliberation"
	"github.com/agentcouncil/roundtable/internal/metrics"
	"github.com/agentcouncil/roundtable/store"
)

// Server wires HTTP routes onto the deliberation engine and its stores.
// Sessions and Results may be nil when the corresponding backend is
// disabled; their routes then return 503.
type Server struct {
	cfg      *config.Config
	registry *agent.Registry
	table    *deliberation.RoundTable
	sessions *store.SessionStore
	results  *store.ResultStore
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewServer assembles the API surface.
func NewServer(cfg *config.Config, registry *agent.Registry, table *deliberation.RoundTable,
	sessions *store.SessionStore, results *store.ResultStore,
	collector *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		table:    table,
		sessions: sessions,
		results:  results,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// Handler builds the routed handler with the full middleware chain applied.
// ctx bounds background work started by the middleware (rate limiter
// cleanup).
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/rounds", s.handleRunRound)
	mux.HandleFunc("GET /api/v1/rounds", s.handleListRounds)
	mux.HandleFunc("GET /api/v1/rounds/{id}", s.handleGetRound)

	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/v1/agents", s.handleRegisterAgent)
	mux.HandleFunc("DELETE /api/v1/agents/{name}", s.handleUnregisterAgent)
	mux.HandleFunc("GET /api/v1/agents/health", s.handleAgentHealth)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/turns", s.handleAppendTurn)
	mux.HandleFunc("GET /api/v1/sessions/{id}/turns", s.handleListTurns)

	skipAuth := []string{"/healthz"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, Metrics(s.metrics))
	}
	if s.cfg.API.RateLimit.Enabled {
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.API.RateLimit.RPS, s.cfg.API.RateLimit.Burst, s.logger))
	}
	if s.cfg.API.JWT.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.API.JWT, skipAuth, s.logger))
	} else if len(s.cfg.API.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.API.APIKeys, skipAuth, s.logger))
	}
	return Chain(mux, middlewares...)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": s.registry.Count(),
	})
}

// runRoundRequest is the round execution request body.
type runRoundRequest struct {
	Content      string         `json:"content"`
	Constraints  map[string]any `json:"constraints,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"` // restrict the pool to agents carrying every tag
	SessionID    string         `json:"session_id,omitempty"`
}

func (s *Server) handleRunRound(w http.ResponseWriter, r *http.Request) {
	var req runRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	task := &agent.Task{Content: req.Content, Constraints: req.Constraints}

	var (
		result *deliberation.RoundResult
		err    error
	)
	if len(req.Capabilities) > 0 {
		pool := s.registry.GetByCapabilities(req.Capabilities)
		result, err = s.table.RunWithPool(r.Context(), task, pool)
	} else {
		result, err = s.table.Run(r.Context(), task)
	}
	if err != nil {
		if errors.Is(err, deliberation.ErrEmptyPool) {
			writeJSONError(w, http.StatusConflict, "no agents available for deliberation")
			return
		}
		s.logger.Error("round failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "round execution failed")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRound(result.ConsensusReached, result.ApprovalRate, result.Duration)
	}
	if s.results != nil {
		if err := s.results.Save(r.Context(), result); err != nil {
			s.logger.Warn("archive round failed", zap.String("task_id", result.TaskID), zap.Error(err))
		}
	}
	if s.sessions != nil && req.SessionID != "" {
		turn := store.Turn{
			Role:      "roundtable",
			Content:   result.Synthesis.RecommendedDirection,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.sessions.AppendTurn(r.Context(), req.SessionID, turn); err != nil {
			s.logger.Warn("session append failed", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "round archive disabled")
		return
	}
	result, err := s.results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrResultNotFound) {
			writeJSONError(w, http.StatusNotFound, "round not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "round archive disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	results, err := s.results.List(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "archive list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rounds": results, "count": len(results)})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	var entries []*agent.Entry
	if tenantID := TenantIDFromContext(r.Context()); tenantID != "" {
		entries = s.registry.ListForTenant(tenantID)
	} else {
		entries = s.registry.GetAllEntries()
	}
	infos := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info())
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": infos, "count": len(infos)})
}

// registerAgentRequest registers a remote agent. Credentials travel as env
// var names only; the key itself is read from the environment when the
// adapter is built and never stored.
type registerAgentRequest struct {
	Name         string   `json:"name"`
	Domain       string   `json:"domain"`
	BaseURL      string   `json:"base_url"`
	APIKeyEnv    string   `json:"api_key_env,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	TimeoutSecs  int      `json:"timeout,omitempty"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Domain == "" || req.BaseURL == "" {
		writeJSONError(w, http.StatusBadRequest, "name, domain and base_url are required")
		return
	}
	cfg := agent.RemoteConfig{
		Name:         req.Name,
		Domain:       req.Domain,
		BaseURL:      req.BaseURL,
		APIKeyEnv:    req.APIKeyEnv,
		Capabilities: req.Capabilities,
		Mode:         agent.Mode(req.Mode),
		Timeout:      time.Duration(req.TimeoutSecs) * time.Second,
	}
	remote, err := s.registry.RegisterRemote(cfg)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("register failed: %v", err))
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"name":   remote.Name(),
		"domain": remote.Domain(),
	})
}

func (s *Server) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.registry.Unregister(name) {
		writeJSONError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	respondJSON(w, http.StatusOK, map[string]any{"agents": s.registry.HealthCheckAll(ctx)})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	var req struct {
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	session, err := s.sessions.Create(r.Context(), req.Metadata)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	session, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	var turn store.Turn
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if turn.Role == "" || turn.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	turn.CreatedAt = time.Now().UTC()
	if err := s.sessions.AppendTurn(r.Context(), r.PathValue("id"), turn); err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			writeJSONError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, store.ErrTurnTooLarge):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "turn content too large")
		default:
			writeJSONError(w, http.StatusInternalServerError, "turn append failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "sessions disabled")
		return
	}
	turns, err := s.sessions.Turns(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "turn list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns, "count": len(turns)})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
