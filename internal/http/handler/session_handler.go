package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/http/middleware"
	"github.com/securekit/secure-session-service/internal/http/response"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	users    repository.UserRepository
}

func NewSessionHandler(sessions *service.SessionService, users repository.UserRepository) *SessionHandler {
	return &SessionHandler{sessions: sessions, users: users}
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc := callerContext(r)
	user, err := h.users.FindByID(r.Context(), sc.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sc := callerContext(r)
	sessions, err := h.sessions.ListActiveSessions(r.Context(), sc.UserID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

// Validate re-checks the caller's presented session against stored state. The
// response says only whether the session is still live; the reasons stay in
// the audit trail.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.SessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "access token carries no session", nil)
		return
	}
	valid, err := h.sessions.ValidateSession(r.Context(), claims.SessionID, callerContext(r))
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"session_id": claims.SessionID, "valid": valid})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "session_id is required", nil)
		return
	}
	sc := callerContext(r)
	sess, err := h.sessions.FindSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if sess.UserID != sc.UserID {
		// same response as a missing session so session IDs cannot be probed
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
		return
	}
	h.sessions.TerminateSession(r.Context(), sessionID, domain.TerminationLogout)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "terminated", "session_id": sessionID})
}
