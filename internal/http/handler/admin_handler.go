package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/securekit/secure-session-service/internal/crypto"
	"github.com/securekit/secure-session-service/internal/http/response"
	"github.com/securekit/secure-session-service/internal/repository"
)

type AdminHandler struct {
	keyring *crypto.Keyring
	audits  repository.AuditRepository
}

func NewAdminHandler(keyring *crypto.Keyring, audits repository.AuditRepository) *AdminHandler {
	return &AdminHandler{keyring: keyring, audits: audits}
}

// RotateKeys retires the active key and installs a fresh one. With a
// key_context query parameter only that context rotates; without it every
// known context does.
func (h *AdminHandler) RotateKeys(w http.ResponseWriter, r *http.Request) {
	keyContext := strings.TrimSpace(r.URL.Query().Get("key_context"))
	if keyContext != "" {
		key, err := h.keyring.Rotate(r.Context(), keyContext)
		if err != nil {
			response.Error(w, r, http.StatusInternalServerError, "ROTATION_FAILED", "key rotation failed", nil)
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]string{
			"status":      "rotated",
			"key_context": keyContext,
			"key_id":      key.ID,
		})
		return
	}
	if err := h.keyring.RotateAll(r.Context()); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "ROTATION_FAILED", "key rotation failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "rotated"})
}

func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	event := strings.TrimSpace(r.URL.Query().Get("event"))
	if event == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "event is required", nil)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}
	records, err := h.audits.RecentByEvent(r.Context(), event, limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"records": records})
}
