package account

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthEventKind enumerates the asynchronous events pushed by the identity
// provider's channel.
type AuthEventKind string

const (
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is an externally observed auth-state change. Session is nil for
// EventSignedOut.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// IdentityClient wraps the remote identity provider: signup, password-grant
// login, local session hydration, sign-out, and the event channel.
type IdentityClient interface {
	SignUp(ctx context.Context, req SignupRequest) (*Identity, error)
	SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) error
	Session(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	Events() <-chan AuthEvent
}

// ResourceClient is the bearer-authenticated multi-tenant resource store.
// Every write requires an access token and is partitioned by tenant.
type ResourceClient interface {
	CreateTenant(ctx context.Context, accessToken string, tenant TenantCreate) (*Tenant, error)
	CreateProfile(ctx context.Context, accessToken string, profile ProfileCreate) (*Profile, error)
}

// SessionStore persists the token pair between process runs so Initialize
// can recover a session without user interaction.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

// AccountProvisioner executes the multi-step signup saga.
type AccountProvisioner interface {
	Provision(ctx context.Context, req SignupRequest) (*Session, error)
}

// Config holds guard options
type Config interface {
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetWaitingStatusCode() int
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
