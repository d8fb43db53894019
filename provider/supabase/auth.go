package supabase

import (
	"context"
	"time"

	"github.com/wallyhq/go-account"
)

type tokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresIn    int64             `json:"expires_in"`
	ExpiresAt    int64             `json:"expires_at"`
	User         *account.Identity `json:"user"`
}

func (r tokenResponse) session(now time.Time) *account.Session {
	session := &account.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}

	switch {
	case r.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		session.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}

	return session
}

// SignUp creates an identity. The provider may or may not return a session
// alongside the identity; only the identity is surfaced here, token
// acquisition is a separate grant.
func (c *Client) SignUp(ctx context.Context, req account.SignupRequest) (*account.Identity, error) {
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data": map[string]any{
			"full_name": req.FullName,
		},
	}

	var payload struct {
		User *account.Identity `json:"user"`
		account.Identity
	}

	if err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/auth/v1/signup", nil, body, &payload); err != nil {
		return nil, err
	}

	identity := payload.User
	if identity == nil && payload.Identity.ID != "" {
		clone := payload.Identity
		identity = &clone
	}
	if identity == nil || identity.ID == "" {
		return nil, account.NewProviderError("signup returned no user", 200)
	}
	if identity.FullName == "" {
		identity.FullName = req.FullName
	}

	return identity, nil
}

// SignInWithPassword performs the password grant. A rejected grant maps to
// ErrInvalidCredentials; everything else keeps the provider's message.
func (c *Client) SignInWithPassword(ctx context.Context, creds account.Credentials) (*account.Session, error) {
	body := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}

	var payload tokenResponse
	err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/auth/v1/token?grant_type=password", nil, body, &payload)
	if err != nil {
		return nil, normalizeGrantError(err)
	}

	session := payload.session(c.now())
	if !session.Valid() {
		return nil, account.NewProviderError("token grant returned no usable session", 200)
	}

	c.setCurrent(session)
	return session, nil
}

// SetSession hydrates local client state from a known token pair, deriving
// identity and expiry from the access token claims. No network call.
func (c *Client) SetSession(_ context.Context, accessToken, refreshToken string) error {
	session, err := account.SessionFromToken(accessToken, refreshToken)
	if err != nil {
		return err
	}

	c.setCurrent(session)
	c.emit(account.AuthEvent{Kind: account.EventSignedIn, Session: session})
	return nil
}

// Session returns the current session, refreshing it first when the access
// token already expired and a refresh token is available.
func (c *Client) Session(ctx context.Context) (*account.Session, error) {
	current := c.currentSession()
	if current == nil {
		return nil, account.ErrSessionNotFound
	}

	if current.Expired(c.now()) && current.RefreshToken != "" {
		return c.RefreshSession(ctx)
	}

	return current, nil
}

// RefreshSession rotates the token pair via the refresh grant and emits a
// TokenRefreshed event.
func (c *Client) RefreshSession(ctx context.Context) (*account.Session, error) {
	current := c.currentSession()
	if current == nil || current.RefreshToken == "" {
		return nil, account.ErrSessionNotFound
	}

	body := map[string]any{
		"refresh_token": current.RefreshToken,
	}

	var payload tokenResponse
	err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/auth/v1/token?grant_type=refresh_token", nil, body, &payload)
	if err != nil {
		return nil, err
	}

	session := payload.session(c.now())
	if session.User == nil {
		session.User = current.User
	}

	c.setCurrent(session)
	c.emit(account.AuthEvent{Kind: account.EventTokenRefreshed, Session: session})

	return session, nil
}

// SignOut revokes the current session with the provider, clears local
// state, and emits a SignedOut event.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.currentSession()

	headers := map[string]string{}
	if current != nil {
		headers["Authorization"] = "Bearer " + current.AccessToken
	}

	if err := c.doJSON(ctx, "POST", c.cfg.BaseURL+"/auth/v1/logout", headers, nil, nil); err != nil {
		if account.IsNetworkError(err) {
			return err
		}
		return account.WrapAuthError(err, "provider sign out failed")
	}

	c.setCurrent(nil)
	c.emit(account.AuthEvent{Kind: account.EventSignedOut})
	return nil
}
