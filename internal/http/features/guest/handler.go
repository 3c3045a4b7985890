package guest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/unifra/unifra-auth/internal/http/middleware"
	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Handler handles guest account endpoints.
type Handler struct {
	logger       *slog.Logger
	authService  *auth.AuthService
	sessions     *auth.SessionService
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new guest handler.
func NewHandler(logger *slog.Logger, authService *auth.AuthService, sessions *auth.SessionService) *Handler {
	return &Handler{
		logger:       logger,
		authService:  authService,
		sessions:     sessions,
		cookieConfig: httputil.DefaultCookieConfig(),
	}
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AuthMethod  string `json:"auth_method"`
	IsGuest     bool   `json:"is_guest"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// AuthResponse represents a successful authentication response.
type AuthResponse struct {
	Account      AccountResponse `json:"user"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
}

// ConvertRequest represents a guest-to-permanent conversion request.
type ConvertRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ConvertResponse represents a successful conversion.
type ConvertResponse struct {
	Account AccountResponse `json:"user"`
	Message string          `json:"message"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:          a.ID.String(),
		Username:    a.Username,
		DisplayName: a.DisplayName,
		AuthMethod:  string(a.AuthMethod),
		IsGuest:     a.IsGuest,
	}
	if a.Email != nil {
		resp.Email = *a.Email
	}
	if a.ExpiresAt != nil {
		resp.ExpiresAt = a.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Create provisions a temporary guest account and signs it in.
// POST /auth/guest
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	result, err := h.authService.SignIn(r.Context(), auth.Credentials{Method: domain.AuthMethodGuest},
		auth.IssueSessionOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		if errors.Is(err, domain.ErrUsernameExhausted) {
			httputil.Error(w, http.StatusServiceUnavailable, "could not allocate a username, please retry")
			return
		}
		h.logger.Error("guest creation failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to create guest account")
		return
	}

	resp := AuthResponse{
		Account:   toAccountResponse(result.Account),
		TokenType: result.Tokens.TokenType,
		ExpiresIn: result.Tokens.ExpiresIn,
	}

	if httputil.IsMobileClient(r) {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
		httputil.JSON(w, http.StatusCreated, resp)
		return
	}

	httputil.SetAuthCookies(
		w,
		result.Tokens.AccessToken,
		result.Tokens.RefreshToken,
		h.sessions.AccessTokenTTL(),
		h.sessions.RefreshTokenTTL(),
		h.cookieConfig,
	)
	httputil.JSON(w, http.StatusCreated, resp)
}

// Convert upgrades the authenticated guest account to a permanent
// password account. The account keeps its id and username; existing
// sessions stay valid.
// POST /auth/convert-guest
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := h.authService.ConvertGuest(r.Context(), accountID, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			// The guest may have been swept after the token was issued.
			httputil.Error(w, http.StatusUnauthorized, "account no longer exists")
		case errors.Is(err, domain.ErrNotGuest):
			httputil.Error(w, http.StatusPreconditionFailed, "account is not a guest account")
		case errors.Is(err, domain.ErrInvalidEmail):
			httputil.Error(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		case errors.Is(err, domain.ErrEmailTaken):
			httputil.Error(w, http.StatusConflict, "email already registered")
		default:
			h.logger.Error("guest conversion failed", "error", err, "account_id", accountID)
			httputil.Error(w, http.StatusInternalServerError, "conversion failed")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, ConvertResponse{
		Account: toAccountResponse(account),
		Message: "Account converted successfully",
	})
}
