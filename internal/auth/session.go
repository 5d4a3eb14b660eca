package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew is subtracted from the access token's expiry so a token about to
// lapse mid-request is refreshed up front rather than bounced off a 401.
const expirySkew = 30 * time.Second

// Session is the ambient authenticated session held by the Client.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Email        string
}

// Expired reports whether the access token is expired, or will be within the
// skew window, as of now. A session with no known expiry never reports
// expired; the server's 401 is the fallback there.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt.Add(-expirySkew))
}

// tokenClaims extracts the expiry and subject from an access token without
// verifying its signature. The client holds no signing key; verification is
// the backend's job, this is only local expiry bookkeeping.
func tokenClaims(accessToken string) (expiresAt time.Time, userID string, err error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, "", fmt.Errorf("parsing access token: %w", err)
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return expiresAt, claims.Subject, nil
}
