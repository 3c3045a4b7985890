package me

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/unifra/unifra-auth/internal/http/middleware"
	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// AccountStore is the slice of the accounts repository this handler needs.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string, pictureURL *string) error
}

// Handler handles current-account endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts AccountStore
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, accounts AccountStore) *Handler {
	return &Handler{logger: logger, accounts: accounts}
}

// AccountResponse represents the authenticated account.
type AccountResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email,omitempty"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	PictureURL  string     `json:"picture_url,omitempty"`
	AuthMethod  string     `json:"auth_method"`
	IsGuest     bool       `json:"is_guest"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UpdateRequest represents a profile update. Nil fields are left unchanged.
type UpdateRequest struct {
	DisplayName *string `json:"display_name"`
	PictureURL  *string `json:"picture_url"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:          a.ID.String(),
		Username:    a.Username,
		DisplayName: a.DisplayName,
		AuthMethod:  string(a.AuthMethod),
		IsGuest:     a.IsGuest,
		ExpiresAt:   a.ExpiresAt,
		CreatedAt:   a.CreatedAt,
	}
	if a.Email != nil {
		resp.Email = *a.Email
	}
	if a.PictureURL != nil {
		resp.PictureURL = *a.PictureURL
	}
	return resp
}

// GetMe returns the authenticated account.
// GET /auth/me
//
// A valid access token is not sufficient on its own: a guest account may
// have been removed by the expiry sweep after its token was issued, so
// the account row is re-read and a missing row maps to 401.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			httputil.Error(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.logger.Error("failed to load account", "error", err, "account_id", accountID)
		httputil.Error(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	httputil.JSON(w, http.StatusOK, toAccountResponse(account))
}

// UpdateMe updates the authenticated account's profile.
// PATCH /auth/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == nil && req.PictureURL == nil {
		httputil.Error(w, http.StatusBadRequest, "nothing to update")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			httputil.Error(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.logger.Error("failed to load account", "error", err, "account_id", accountID)
		httputil.Error(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	displayName := account.DisplayName
	if req.DisplayName != nil {
		displayName = auth.SanitizeName(*req.DisplayName)
		if err := auth.ValidateDisplayName(displayName); err != nil {
			httputil.Error(w, http.StatusBadRequest, "display name is too short")
			return
		}
	}

	pictureURL := account.PictureURL
	if req.PictureURL != nil {
		if *req.PictureURL == "" {
			pictureURL = nil
		} else {
			pictureURL = req.PictureURL
		}
	}

	if err := h.accounts.UpdateProfile(r.Context(), accountID, displayName, pictureURL); err != nil {
		h.logger.Error("profile update failed", "error", err, "account_id", accountID)
		httputil.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	account.DisplayName = displayName
	account.PictureURL = pictureURL
	httputil.JSON(w, http.StatusOK, toAccountResponse(account))
}
