package username

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Handler handles username availability checks.
type Handler struct {
	logger   *slog.Logger
	registry *auth.UsernameRegistry
}

// NewHandler creates a new username handler.
func NewHandler(logger *slog.Logger, registry *auth.UsernameRegistry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// CheckResponse represents a username availability result. Message is
// populated only when the username is unavailable or invalid.
type CheckResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// Check reports whether a username is available.
// GET /auth/check-username?username=...
//
// The result is advisory: another request may claim the name between this
// check and a subsequent registration, which then fails with a conflict.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("username")
	if candidate == "" {
		httputil.Error(w, http.StatusBadRequest, "username query parameter is required")
		return
	}

	resp := CheckResponse{Username: candidate}

	err := h.registry.CheckAvailable(r.Context(), candidate)
	switch {
	case err == nil:
		resp.Available = true
	case errors.Is(err, domain.ErrUsernameLength):
		resp.Message = "Username must be between 3 and 30 characters"
	case errors.Is(err, domain.ErrUsernameCharset):
		resp.Message = "Username can only contain letters, numbers, and underscores"
	case errors.Is(err, domain.ErrUsernameTaken):
		resp.Message = "Username is already taken"
	default:
		h.logger.Error("username check failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "availability check failed")
		return
	}

	httputil.JSON(w, http.StatusOK, resp)
}
