package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens is a JWT access/refresh pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Profile is the signed-in user.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// SignupRequest is the payload of POST /auth/signup/.
type SignupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// SetTokens installs a token pair, e.g. one restored from storage.
func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
}

// Tokens returns the current token pair.
func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// IsAuthenticated returns true if an access token is held.
func (c *Client) IsAuthenticated() bool {
	return c.accessToken() != ""
}

// OnTokensChanged registers fn to be called after login and every refresh.
func (c *Client) OnTokensChanged(fn func(Tokens)) {
	c.mu.Lock()
	c.onTokens = fn
	c.mu.Unlock()
}

// OnLogout registers fn to be called when the session is dropped.
func (c *Client) OnLogout(fn func()) {
	c.mu.Lock()
	c.onLogout = fn
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	return c.Tokens().Access
}

func (c *Client) refreshToken() string {
	return c.Tokens().Refresh
}

func (c *Client) storeTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	hook := c.onTokens
	c.mu.Unlock()

	if hook != nil {
		hook(t)
	}
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (Tokens, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Tokens{}, fmt.Errorf("marshal body: %w", err)
	}

	status, respBody, err := c.send(ctx, http.MethodPost, "/auth/login/", nil, body, "")
	if err != nil {
		return Tokens{}, err
	}
	if status >= 400 {
		return Tokens{}, decodeError(status, respBody)
	}

	var tokens Tokens
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("decode tokens: %w", err)
	}
	if tokens.Access == "" {
		return Tokens{}, fmt.Errorf("login: empty access token")
	}

	c.storeTokens(tokens)
	return tokens, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (Profile, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Profile{}, fmt.Errorf("marshal body: %w", err)
	}

	status, respBody, err := c.send(ctx, http.MethodPost, "/auth/signup/", nil, body, "")
	if err != nil {
		return Profile{}, err
	}
	if status >= 400 {
		return Profile{}, decodeError(status, respBody)
	}

	var profile Profile
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.doRequest(ctx, http.MethodGet, "/auth/profile/", nil, nil, &profile); err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// Logout forgets the tokens and fires the logout hook if a session existed.
func (c *Client) Logout() {
	c.mu.Lock()
	had := c.tokens.Access != "" || c.tokens.Refresh != ""
	c.tokens = Tokens{}
	hook := c.onLogout
	c.mu.Unlock()

	if had && hook != nil {
		hook()
	}
}

// refresh swaps the refresh token for a new access token. stale is the
// access token that was rejected; if another caller already replaced it
// nothing is sent.
func (c *Client) refresh(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.Tokens()
	if current.Access != "" && current.Access != stale {
		return nil
	}
	if current.Refresh == "" {
		return ErrUnauthorized
	}

	body, err := json.Marshal(map[string]string{"refresh": current.Refresh})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	status, respBody, err := c.send(ctx, http.MethodPost, "/auth/token/refresh/", nil, body, "")
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}

	var next Tokens
	if err := json.Unmarshal(respBody, &next); err != nil {
		return fmt.Errorf("decode tokens: %w", err)
	}
	if next.Access == "" {
		return fmt.Errorf("refresh: empty access token")
	}
	if next.Refresh == "" {
		next.Refresh = current.Refresh
	}

	c.storeTokens(next)
	c.log.Debug("access token refreshed")
	return nil
}

// refreshIfExpiring refreshes ahead of time when the access token is about
// to expire. Failures are left to the 401 path.
func (c *Client) refreshIfExpiring(ctx context.Context) {
	t := c.Tokens()
	if t.Access == "" || t.Refresh == "" {
		return
	}
	exp, err := TokenExpiry(t.Access)
	if err != nil || exp.IsZero() {
		return
	}
	if exp.Sub(c.now()) > refreshLeeway {
		return
	}
	if err := c.refresh(ctx, t.Access); err != nil {
		c.log.WithError(err).Debug("proactive refresh failed")
	}
}

// TokenExpiry reads the exp claim without verifying the signature; the
// backend is the one verifying it. A token without exp yields a zero time.
func TokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("token exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
