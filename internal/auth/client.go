package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client talks to the hosted auth API (GoTrue wire shape under /auth/v1) and
// owns the ambient session that the rest of the application observes. All
// session mutation goes through the internal mutex; callers receive copies.
type Client struct {
	baseURL string
	anonKey string
	client  *http.Client

	mu      sync.Mutex
	session *Session

	// OnSessionChange, if set, is invoked with a copy of the session after
	// every change (a zero Session on sign-out). Used to persist the token
	// pair to config. Set it before the first exchange; it is called without
	// the client lock held.
	OnSessionChange func(Session)
}

// NewClient creates a Client for the backend at baseURL.
// Pass a test server URL in tests.
func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// sessionEnvelope is the raw wire shape of a successful token grant.
type sessionEnvelope struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (e sessionEnvelope) toSession() Session {
	expiresAt, userID, err := tokenClaims(e.AccessToken)
	if (err != nil || expiresAt.IsZero()) && e.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(e.ExpiresIn) * time.Second)
	}
	if userID == "" {
		userID = e.User.ID
	}
	return Session{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       userID,
		Email:        e.User.Email,
	}
}

// ExchangeCode exchanges a PKCE authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	return c.tokenGrant(ctx, "pkce", map[string]string{"auth_code": code})
}

// SetSession adopts an implicit-flow token pair as the ambient session.
// An already-expired access token is not adopted blindly: the refresh token
// is redeemed first so the caller ends up with a usable session or an error.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	expiresAt, userID, err := tokenClaims(accessToken)
	if err != nil {
		return fmt.Errorf("invalid access token: %w", err)
	}
	sess := Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       userID,
	}
	if sess.Expired(time.Now()) {
		if refreshToken == "" {
			return &APIError{
				Status:  http.StatusUnauthorized,
				Code:    "session_expired",
				Message: "access token expired and no refresh token supplied",
			}
		}
		return c.refreshWith(ctx, refreshToken)
	}
	c.adopt(sess)
	return nil
}

// VerifyRecovery redeems a one-time recovery code for a session.
// hashed selects the token_hash form; otherwise the plain token form is sent.
func (c *Client) VerifyRecovery(ctx context.Context, token string, hashed bool) error {
	payload := map[string]string{"type": "recovery"}
	if hashed {
		payload["token_hash"] = token
	} else {
		payload["token"] = token
	}
	var env sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/v1/verify", "", payload, &env); err != nil {
		return err
	}
	c.adopt(env.toSession())
	return nil
}

// SignIn performs a password grant and establishes the ambient session.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	return c.tokenGrant(ctx, "password", map[string]string{"email": email, "password": password})
}

// UpdatePassword sets a new password for the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/auth/v1/user", token, map[string]string{"password": newPassword}, nil)
}

// RequestRecovery asks the backend to email a fresh recovery link.
func (c *Client) RequestRecovery(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "", map[string]string{"email": email}, nil)
}

// SignOut revokes the session server-side and clears the ambient session.
// The local session is cleared even if the revoke call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	hook := c.OnSessionChange
	c.mu.Unlock()
	if hook != nil {
		hook(Session{})
	}
	if sess == nil {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil)
}

// Session returns a copy of the ambient session and whether one exists.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// AccessToken returns a bearer token for API calls, refreshing first when the
// session is expired or inside the skew window. Returns ErrUnauthorized when
// no session exists.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return "", ErrUnauthorized
	}
	if !sess.Expired(time.Now()) {
		return sess.AccessToken, nil
	}
	if sess.RefreshToken == "" {
		return "", ErrUnauthorized
	}
	if err := c.refreshWith(ctx, sess.RefreshToken); err != nil {
		return "", err
	}
	c.mu.Lock()
	token := c.session.AccessToken
	c.mu.Unlock()
	return token, nil
}

// ForceRefresh redeems the stored refresh token regardless of the access
// token's apparent validity. Used after a server-side 401 on a token the
// client still believed in.
func (c *Client) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.RefreshToken == "" {
		return ErrUnauthorized
	}
	return c.refreshWith(ctx, sess.RefreshToken)
}

func (c *Client) tokenGrant(ctx context.Context, grant string, payload any) error {
	var env sessionEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grant, "", payload, &env); err != nil {
		return err
	}
	c.adopt(env.toSession())
	return nil
}

func (c *Client) refreshWith(ctx context.Context, refreshToken string) error {
	return c.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) adopt(sess Session) {
	c.mu.Lock()
	c.session = &sess
	hook := c.OnSessionChange
	c.mu.Unlock()
	if hook != nil {
		hook(sess)
	}
}

// do performs one JSON request against the auth API. bearer is optional;
// the publishable anon key is always attached. Non-2xx responses decode into
// *APIError with the server's message intact.
func (c *Client) do(ctx context.Context, method, path, bearer string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling auth API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ResponseError(resp)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding auth response: %w", err)
	}
	return nil
}
