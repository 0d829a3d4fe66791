package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/http/middleware"
	"github.com/securekit/secure-session-service/internal/http/response"
	"github.com/securekit/secure-session-service/internal/service"
)

type AuthHandler struct {
	auth      *service.AuthService
	accessTTL time.Duration
}

func NewAuthHandler(auth *service.AuthService, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, accessTTL: accessTTL}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	SessionID    string       `json:"session_id,omitempty"`
	User         *domain.User `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "username and password are required", nil)
		return
	}

	result, err := h.auth.Authenticate(r.Context(), req.Username, req.Password, requestContext(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountLocked):
			response.Error(w, r, http.StatusTooManyRequests, "ACCOUNT_LOCKED", "too many failed attempts, try again later", nil)
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		}
		return
	}

	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.accessTTL.Seconds()),
		SessionID:    result.Session.ID,
		User:         result.User,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "refresh_token is required", nil)
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken, requestContext(r))
	if err != nil {
		// a reused token gets the same surface response as an invalid one
		if errors.Is(err, service.ErrInvalidRefreshToken) ||
			errors.Is(err, service.ErrRefreshTokenReuseDetected) ||
			errors.Is(err, service.ErrSubjectInactive) {
			response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.accessTTL.Seconds()),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.RawTokenFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	if err := h.auth.Logout(r.Context(), raw, callerContext(r)); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}
