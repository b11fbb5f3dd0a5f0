// Package httpapi exposes the orchestrator over HTTP and WebSocket. Photo
// library credentials arrive per request and live only for the duration of
// that request's collaborator set.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gibbonas/MemAgent/internal/agents"
	"github.com/gibbonas/MemAgent/internal/budget"
	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/guardrail"
	"github.com/gibbonas/MemAgent/internal/imagegen"
	"github.com/gibbonas/MemAgent/internal/observability"
	"github.com/gibbonas/MemAgent/internal/photos"
	"github.com/gibbonas/MemAgent/internal/team"
)

// Server wires the long-lived collaborators to the request cycle. Only the
// photo client is rebuilt per request, because it carries the caller's own
// bearer token.
type Server struct {
	cfg        config.Config
	orch       *team.Orchestrator
	collector  *agents.Collector
	screener   *agents.Screener
	generator  *imagegen.Client
	tracker    *budget.Tracker
	guardrails *guardrail.Chain
	httpClient *http.Client
	mux        *http.ServeMux
}

func NewServer(cfg config.Config, orch *team.Orchestrator, tracker *budget.Tracker, guardrails *guardrail.Chain) *Server {
	httpClient := agents.NewHTTPClient()
	s := &Server{
		cfg:        cfg,
		orch:       orch,
		collector:  agents.NewCollector(httpClient, cfg.LLM),
		screener:   agents.NewScreener(httpClient, cfg.LLM),
		generator:  imagegen.NewClient(httpClient, cfg.ImageGen),
		tracker:    tracker,
		guardrails: guardrails,
		httpClient: httpClient,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("POST /api/v1/sessions/{session_id}/messages", s.handleMessage)
	s.mux.HandleFunc("POST /api/v1/sessions/{session_id}/references/confirm", s.handleConfirmReferences)
	s.mux.HandleFunc("POST /api/v1/sessions/{session_id}/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /api/v1/picker/{picker_session_id}", s.handlePickerStatus)
	s.mux.HandleFunc("GET /api/v1/picker/{picker_session_id}/media", s.handlePickerMedia)
	s.mux.HandleFunc("GET /ws/{session_id}", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler { return s.mux }

// collaborators builds the per-request service handles. An empty photo token
// yields a nil photo client, which the orchestrator reports as needing
// re-authorization when a photo stage is reached.
func (s *Server) collaborators(photoToken string) team.Collaborators {
	c := team.Collaborators{
		Collector:  s.collector,
		Screener:   s.screener,
		Generator:  s.generator,
		Tracker:    s.tracker,
		Guardrails: s.guardrails,
	}
	if photoToken != "" {
		c.Photos = photos.NewClient(s.httpClient, s.cfg.Photos.BaseURL, s.cfg.Photos.PickerBaseURL, photoToken)
	}
	return c
}

// photoToken extracts the caller's photo library credential. The header is
// separate from any API auth so the two concerns never mix.
func photoToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Photos-Token")); v != "" {
		return v
	}
	// WebSocket clients can't always set custom headers.
	return strings.TrimSpace(r.URL.Query().Get("photos_token"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	id := uuid.NewString()
	s.orch.Sessions().GetOrCreate(id, req.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id, "stage": "collecting"})
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}
	env := s.orch.Handle(r.Context(), sessionID, req.UserID,
		team.Input{Text: req.Message}, s.collaborators(photoToken(r)))
	writeJSON(w, http.StatusOK, env)
}

type confirmReferencesRequest struct {
	UserID            string   `json:"user_id"`
	MediaItemIDs      []string `json:"media_item_ids"`
	URLs              []string `json:"urls"`
	AdditionalContext string   `json:"additional_context"`
}

func (s *Server) handleConfirmReferences(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	var req confirmReferencesRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	env := s.orch.Handle(r.Context(), sessionID, req.UserID, team.Input{
		Selection: &team.Selection{
			MediaItemIDs:      req.MediaItemIDs,
			URLs:              req.URLs,
			AdditionalContext: req.AdditionalContext,
		},
	}, s.collaborators(photoToken(r)))
	writeJSON(w, http.StatusOK, env)
}

type generateRequest struct {
	UserID            string `json:"user_id"`
	AdditionalContext string `json:"additional_context"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	in := team.Input{Text: "generate", AdditionalContext: req.AdditionalContext}
	env := s.orch.Handle(r.Context(), sessionID, req.UserID, in, s.collaborators(photoToken(r)))
	writeJSON(w, http.StatusOK, env)
}

// handlePickerStatus is a read-only passthrough: it reports whether the user
// finished picking, without touching session state. Merging happens only
// through the orchestrator.
func (s *Server) handlePickerStatus(w http.ResponseWriter, r *http.Request) {
	token := photoToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "photo library token required")
		return
	}
	client := photos.NewClient(s.httpClient, s.cfg.Photos.BaseURL, s.cfg.Photos.PickerBaseURL, token)
	ps, err := client.GetPickerSession(r.Context(), r.PathValue("picker_session_id"))
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn("picker status lookup failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "picker session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"picker_session_id": ps.ID,
		"media_items_set":   ps.MediaItemsSet,
		"expire_time":       ps.ExpireTime.Format(time.RFC3339),
	})
}

func (s *Server) handlePickerMedia(w http.ResponseWriter, r *http.Request) {
	token := photoToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "photo library token required")
		return
	}
	client := photos.NewClient(s.httpClient, s.cfg.Photos.BaseURL, s.cfg.Photos.PickerBaseURL, token)
	items, err := client.ListPickerMedia(r.Context(), r.PathValue("picker_session_id"), 8)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn("picker media lookup failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "picker media unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media_items": items})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
