package account_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wallyhq/go-account"
)

// MockIdentityClient implements account.IdentityClient
type MockIdentityClient struct {
	mock.Mock
	events chan account.AuthEvent
}

func NewMockIdentityClient() *MockIdentityClient {
	return &MockIdentityClient{
		events: make(chan account.AuthEvent, 8),
	}
}

func (m *MockIdentityClient) SignUp(ctx context.Context, req account.SignupRequest) (*account.Identity, error) {
	args := m.Called(ctx, req)
	identity, _ := args.Get(0).(*account.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityClient) SignInWithPassword(ctx context.Context, creds account.Credentials) (*account.Session, error) {
	args := m.Called(ctx, creds)
	session, _ := args.Get(0).(*account.Session)
	return session, args.Error(1)
}

func (m *MockIdentityClient) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	args := m.Called(ctx, accessToken, refreshToken)
	return args.Error(0)
}

func (m *MockIdentityClient) Session(ctx context.Context) (*account.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*account.Session)
	return session, args.Error(1)
}

func (m *MockIdentityClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityClient) Events() <-chan account.AuthEvent {
	return m.events
}

// Push delivers an event as the provider would.
func (m *MockIdentityClient) Push(event account.AuthEvent) {
	m.events <- event
}

// MockResourceClient implements account.ResourceClient
type MockResourceClient struct {
	mock.Mock
}

func (m *MockResourceClient) CreateTenant(ctx context.Context, accessToken string, tenant account.TenantCreate) (*account.Tenant, error) {
	args := m.Called(ctx, accessToken, tenant)
	out, _ := args.Get(0).(*account.Tenant)
	return out, args.Error(1)
}

func (m *MockResourceClient) CreateProfile(ctx context.Context, accessToken string, profile account.ProfileCreate) (*account.Profile, error) {
	args := m.Called(ctx, accessToken, profile)
	out, _ := args.Get(0).(*account.Profile)
	return out, args.Error(1)
}

// MockSessionStore implements account.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Save(ctx context.Context, session *account.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) Load(ctx context.Context) (*account.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*account.Session)
	return session, args.Error(1)
}

func (m *MockSessionStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockActivitySink implements account.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event account.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testSession(userID, email string) *account.Session {
	return &account.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		User: &account.Identity{
			ID:    userID,
			Email: email,
		},
	}
}
