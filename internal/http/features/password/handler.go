package password

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/unifra/unifra-auth/internal/httputil"
	"github.com/unifra/unifra-auth/pkg/auth"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Handler handles password authentication endpoints.
type Handler struct {
	logger       *slog.Logger
	authService  *auth.AuthService
	resetService *auth.ResetService
	sessions     *auth.SessionService
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new password handler.
func NewHandler(
	logger *slog.Logger,
	authService *auth.AuthService,
	resetService *auth.ResetService,
	sessions *auth.SessionService,
) *Handler {
	return &Handler{
		logger:       logger,
		authService:  authService,
		resetService: resetService,
		sessions:     sessions,
		cookieConfig: httputil.DefaultCookieConfig(),
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"full_name"`
}

// LoginRequest represents a login request. Identifier may be an email
// address or a username; email is accepted as an alias.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
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
// Token fields are omitted for web clients, which receive cookies instead.
type AuthResponse struct {
	Account      AccountResponse `json:"user"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
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

// Register handles account registration.
// POST /auth/register
//
// For web clients: Sets HttpOnly cookies, returns account only.
// For mobile clients (X-Client-Type: mobile): Returns tokens in response body.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		httputil.Error(w, http.StatusBadRequest, "email, username and password are required")
		return
	}

	result, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}, auth.IssueSessionOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUsernameLength):
			httputil.Error(w, http.StatusBadRequest, "Username must be between 3 and 30 characters")
		case errors.Is(err, domain.ErrUsernameCharset):
			httputil.Error(w, http.StatusBadRequest, "Username can only contain letters, numbers, and underscores")
		case errors.Is(err, domain.ErrInvalidEmail):
			httputil.Error(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		case errors.Is(err, domain.ErrDisplayNameLength):
			httputil.Error(w, http.StatusBadRequest, "display name is too short")
		case errors.Is(err, domain.ErrUsernameTaken):
			httputil.Error(w, http.StatusConflict, "Username is already taken")
		case errors.Is(err, domain.ErrEmailTaken):
			httputil.Error(w, http.StatusConflict, "email already registered")
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	h.writeAuthResponse(w, r, result, http.StatusCreated)
}

// Login handles account login.
// POST /auth/login
//
// Unknown email and wrong password return the same error, by the same
// status, so the endpoint cannot be used to probe which emails exist.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.authService.Login(r.Context(), identifier, req.Password,
		auth.IssueSessionOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, domain.ErrAccountLocked):
			httputil.Error(w, http.StatusForbidden, "account temporarily locked due to too many failed login attempts. Please try again in 15 minutes.")
		default:
			h.logger.Error("login failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	h.writeAuthResponse(w, r, result, http.StatusOK)
}

// ForgotPasswordRequest represents a password reset request.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest represents a reset code verification request.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"otp"`
}

// VerifyOTPResponse reports whether a reset code is currently usable.
type VerifyOTPResponse struct {
	Valid bool `json:"valid"`
}

// ResetPasswordRequest represents a password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// ForgotPassword issues a password reset code.
// POST /auth/forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	// Don't reveal whether the email exists - always return success
	if err := h.resetService.RequestReset(r.Context(), req.Email); err != nil {
		h.logger.Error("failed to issue reset code", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to process reset request")
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{
		Message: "If an account exists with that email, a reset code has been sent",
	})
}

// VerifyOTP checks a reset code without consuming it.
// POST /auth/verify-otp
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "email and code are required")
		return
	}

	if err := h.resetService.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		h.writeResetError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, VerifyOTPResponse{Valid: true})
}

// ResetPassword consumes a reset code and sets a new password.
// POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "email, code and new password are required")
		return
	}

	if err := h.resetService.Reset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrWeakPassword) {
			httputil.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		h.writeResetError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}

func (h *Handler) writeResetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrResetCodeNotFound):
		httputil.Error(w, http.StatusBadRequest, "invalid reset code")
	case errors.Is(err, domain.ErrResetCodeExpired):
		httputil.Error(w, http.StatusBadRequest, "reset code expired")
	case errors.Is(err, domain.ErrResetCodeConsumed):
		httputil.Error(w, http.StatusBadRequest, "reset code already used")
	case errors.Is(err, domain.ErrResetNotPassword):
		httputil.Error(w, http.StatusBadRequest, "password reset is not available for this account")
	default:
		h.logger.Error("reset code check failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "validation failed")
	}
}

// writeAuthResponse writes tokens as cookies (web) or JSON (mobile).
func (h *Handler) writeAuthResponse(w http.ResponseWriter, r *http.Request, result *auth.Result, status int) {
	resp := AuthResponse{
		Account:   toAccountResponse(result.Account),
		TokenType: result.Tokens.TokenType,
		ExpiresIn: result.Tokens.ExpiresIn,
	}

	if httputil.IsMobileClient(r) {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
		httputil.JSON(w, status, resp)
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
	httputil.JSON(w, status, resp)
}
