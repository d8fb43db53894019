package account

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the access/refresh token pair plus the identity it was
// issued for. At most one Session is authoritative for the running process
// at any instant; consumers receive read-only snapshots and request
// mutation through the Manager.
type Session struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	User         *Identity `json:"user,omitempty"`
}

// UserID returns the owning identity's provider-issued ID.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Valid reports whether the session carries a usable token and identity.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User != nil && s.User.ID != ""
}

// Expired reports whether the access token expired relative to now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires inside d from now.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// Clone returns a defensive copy so subscribers never share the
// authoritative value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		user := *s.User
		if s.User.Metadata != nil {
			user.Metadata = make(map[string]any, len(s.User.Metadata))
			for k, v := range s.User.Metadata {
				user.Metadata[k] = v
			}
		}
		out.User = &user
	}
	return &out
}

func (s Session) String() string {
	exp := "<none>"
	if !s.ExpiresAt.IsZero() {
		exp = s.ExpiresAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s exp=%s refresh=%t", s.UserID(), exp, s.RefreshToken != "")
}

// SessionFromToken rebuilds a Session from a raw access token without
// verifying the signature. Used when hydrating local state from persisted
// tokens; callers that need verification go through a TokenValidator.
func SessionFromToken(accessToken, refreshToken string) (*Session, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, ErrUnableToDecodeToken.WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	identity := identityFromClaims(claims)
	if identity == nil || identity.ID == "" {
		return nil, ErrUnableToMapClaims
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         identity,
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}

	return session, nil
}

func identityFromClaims(claims jwt.MapClaims) *Identity {
	identity := &Identity{}

	if sub, err := claims.GetSubject(); err == nil {
		identity.ID = sub
	}

	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}

	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		identity.Metadata = meta
		if name, ok := meta["full_name"].(string); ok {
			identity.FullName = name
		}
	}

	return identity
}
