package oauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Handler handles external identity provider sign-in.
type Handler struct {
	logger       *slog.Logger
	authService  *auth.AuthService
	sessions     *auth.SessionService
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new oauth handler.
func NewHandler(logger *slog.Logger, authService *auth.AuthService, sessions *auth.SessionService) *Handler {
	return &Handler{
		logger:       logger,
		authService:  authService,
		sessions:     sessions,
		cookieConfig: httputil.DefaultCookieConfig(),
	}
}

// ExchangeRequest carries the provider credential: an ID token for
// google, a session id for emergent.
type ExchangeRequest struct {
	Credential string `json:"credential"`
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url,omitempty"`
	AuthMethod  string `json:"auth_method"`
	IsGuest     bool   `json:"is_guest"`
}

// AuthResponse represents a successful authentication response.
type AuthResponse struct {
	Account      AccountResponse `json:"user"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
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
	if a.PictureURL != nil {
		resp.PictureURL = *a.PictureURL
	}
	return resp
}

// Exchange verifies a provider credential and signs the account in,
// creating it on first contact.
// POST /auth/oauth/{provider}
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Credential == "" {
		httputil.Error(w, http.StatusBadRequest, "credential is required")
		return
	}

	result, err := h.authService.OAuthExchange(r.Context(), domain.AuthMethod(provider), req.Credential,
		auth.IssueSessionOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownProvider):
			httputil.Error(w, http.StatusNotFound, "unknown provider")
		case errors.Is(err, domain.ErrProviderVerify):
			httputil.Error(w, http.StatusUnauthorized, "credential verification failed")
		case errors.Is(err, domain.ErrEmailClaimMissing):
			httputil.Error(w, http.StatusUnprocessableEntity, "provider did not supply an email address")
		case errors.Is(err, domain.ErrUsernameExhausted):
			httputil.Error(w, http.StatusServiceUnavailable, "could not allocate a username, please retry")
		default:
			h.logger.Error("oauth exchange failed", "error", err, "provider", provider)
			httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		}
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
		httputil.JSON(w, http.StatusOK, resp)
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
	httputil.JSON(w, http.StatusOK, resp)
}
