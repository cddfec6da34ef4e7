package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/refunda-ai/refunda/internal/api"
	"github.com/refunda-ai/refunda/internal/config/store"
	"github.com/refunda-ai/refunda/internal/session"
	"github.com/refunda-ai/refunda/internal/version"
)

const defaultDecisionListLimit = 50

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (s *APIServer) handleDaemonStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	running, total := s.sessions.SessionCounts()
	status := api.DaemonStatusDTO{
		Version:         version.String(),
		Instance:        s.instance,
		UptimeSeconds:   time.Since(s.startTime).Seconds(),
		SessionsRunning: running,
		SessionsTotal:   total,
		AuthRequired:    s.AuthRequired(),
	}
	if s.eligibility != nil {
		status.EligibilityCount = s.eligibility.Customers()
	}
	if s.history != nil {
		counts, err := s.history.CountDecisionsByStatus(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		status.Decisions = counts
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) handleDaemonShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.RequestShutdown()
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "metrics exporter not configured")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(s.exporter.Export())
}

func (s *APIServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := s.sessions.List()
		dtos := make([]api.SessionDTO, 0, len(sessions))
		for _, sess := range sessions {
			dtos = append(dtos, api.ToSessionDTO(sess.Snapshot()))
		}
		writeJSON(w, http.StatusOK, dtos)

	case http.MethodPost:
		var req api.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sess := s.sessions.Create(req.InputSource)
		writeJSON(w, http.StatusCreated, api.ToSessionDTO(sess.Snapshot()))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionByID routes /sessions/{id}[/messages|/conversation].
func (s *APIServer) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	id := parts[0]

	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, api.ToSessionDTO(sess.Snapshot()))
		case http.MethodDelete:
			if err := s.sessions.Stop(id); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, api.ToSessionDTO(sess.Snapshot()))
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}

	case len(parts) == 2 && parts[1] == "messages":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req api.TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		reply, err := s.sessions.Submit(r.Context(), id, req.Text)
		if err != nil {
			if errors.Is(err, session.ErrSessionStopped) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, api.ToTurnReplyDTO(reply))

	case len(parts) == 2 && parts[1] == "conversation":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, api.ToConversationDTO(id, sess.Transcript()))

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *APIServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "decision history not configured")
		return
	}

	limit := defaultDecisionListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = value
	}

	records, err := s.history.ListDecisions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]api.DecisionRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, api.ToDecisionRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *APIServer) handleLatestDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "decision history not configured")
		return
	}

	rec, err := s.history.LatestDecision(r.Context())
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no decisions yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ToDecisionRecordDTO(rec))
}

func (s *APIServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.artifacts == nil {
		writeError(w, http.StatusNotFound, "artifact store not configured")
		return
	}

	list, err := s.artifacts.List(strings.TrimSpace(r.URL.Query().Get("kind")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]api.ArtifactDTO, 0, len(list))
	for _, info := range list {
		dtos = append(dtos, api.ToArtifactDTO(info))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *APIServer) handleLatestArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.artifacts == nil {
		writeError(w, http.StatusNotFound, "artifact store not configured")
		return
	}

	info, ok, err := s.artifacts.Latest(strings.TrimSpace(r.URL.Query().Get("kind")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no artifacts yet")
		return
	}
	writeJSON(w, http.StatusOK, api.ToArtifactDTO(info))
}
