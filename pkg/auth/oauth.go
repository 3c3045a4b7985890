package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// Claim is the verified identity returned by a provider exchange. The
// orchestrator treats verification as a trusted external call; everything
// downstream of a Claim is provider-agnostic.
type Claim struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Verifier exchanges a provider credential for a verified identity claim.
type Verifier interface {
	Provider() domain.AuthMethod
	Verify(ctx context.Context, credential string) (*Claim, error)
}

const (
	googleIssuer    = "https://accounts.google.com"
	googleIssuerAlt = "accounts.google.com"
)

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID        string
	MobileClientIDs []string
}

// GoogleVerifier validates Google ID tokens submitted by the client-side
// Sign-In flow.
type GoogleVerifier struct {
	config GoogleConfig
}

// NewGoogleVerifier creates a new Google verifier.
func NewGoogleVerifier(config GoogleConfig) *GoogleVerifier {
	return &GoogleVerifier{config: config}
}

// Provider returns the auth method this verifier serves.
func (v *GoogleVerifier) Provider() domain.AuthMethod {
	return domain.AuthMethodGoogle
}

// googleClaims represents the claims from a Google ID token.
type googleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify validates a Google ID token and extracts the identity claim.
// Note: For production, verify the signature using Google's JWKS. This
// implementation does issuer/audience/expiry validation; add signature
// verification for production.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Claim, error) {
	token, _, err := jwt.NewParser().ParseUnverified(idToken, &googleClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse ID token", domain.ErrProviderVerify)
	}

	claims, ok := token.Claims.(*googleClaims)
	if !ok {
		return nil, domain.ErrProviderVerify
	}

	if claims.Issuer != googleIssuer && claims.Issuer != googleIssuerAlt {
		return nil, fmt.Errorf("%w: invalid issuer %q", domain.ErrProviderVerify, claims.Issuer)
	}

	if !v.validAudience(claims.Audience) {
		return nil, fmt.Errorf("%w: invalid audience", domain.ErrProviderVerify)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: token expired", domain.ErrProviderVerify)
	}

	return &Claim{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// validAudience accepts the web client ID or any configured mobile client ID.
func (v *GoogleVerifier) validAudience(audience jwt.ClaimStrings) bool {
	if len(audience) == 0 {
		return false
	}
	aud := audience[0]
	if aud == v.config.ClientID {
		return true
	}
	for _, mobileID := range v.config.MobileClientIDs {
		if mobileID != "" && aud == mobileID {
			return true
		}
	}
	return false
}

// EmergentVerifier exchanges an Emergent session ID for identity data via
// the provider's session-data endpoint.
type EmergentVerifier struct {
	sessionDataURL string
	httpClient     *http.Client
}

// NewEmergentVerifier creates a new Emergent verifier.
func NewEmergentVerifier(sessionDataURL string) *EmergentVerifier {
	return &EmergentVerifier{
		sessionDataURL: sessionDataURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Provider returns the auth method this verifier serves.
func (v *EmergentVerifier) Provider() domain.AuthMethod {
	return domain.AuthMethodEmergent
}

type emergentSessionData struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify exchanges the session ID for a verified identity claim. The call
// is timeout-bound; a timeout surfaces as a provider failure, never a hang.
func (v *EmergentVerifier) Verify(ctx context.Context, sessionID string) (*Claim, error) {
	if sessionID == "" {
		return nil, domain.ErrProviderVerify
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.sessionDataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Session-ID", sessionID)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderVerify, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: session-data returned status %d", domain.ErrProviderVerify, resp.StatusCode)
	}

	var data emergentSessionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: invalid session-data response", domain.ErrProviderVerify)
	}
	if data.ID == "" {
		return nil, errors.New("session-data response missing subject")
	}

	return &Claim{
		Subject:       data.ID,
		Email:         data.Email,
		EmailVerified: data.Email != "",
		Name:          data.Name,
		Picture:       data.Picture,
	}, nil
}
