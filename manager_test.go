package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wallyhq/go-account"
)

func TestManagerRequiresInitialize(t *testing.T) {
	idp := NewMockIdentityClient()
	m := account.NewManager(idp)

	_, err := m.SignIn(context.Background(), account.Credentials{
		Email:    "mario@example.com",
		Password: "secret1",
	})
	assert.ErrorIs(t, err, account.ErrNotInitialized)

	_, err = m.SignUp(context.Background(), signupFixture)
	assert.ErrorIs(t, err, account.ErrNotInitialized)

	assert.ErrorIs(t, m.SignOut(context.Background()), account.ErrNotInitialized)

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUninitialized, snap.Phase)

	idp.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything)
}

func TestManagerInitializeWithoutStore(t *testing.T) {
	idp := NewMockIdentityClient()
	m := account.NewManager(idp)
	defer m.Close()

	m.Initialize(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Session)

	// re-initializing is a no-op
	m.Initialize(context.Background())
	assert.Equal(t, account.PhaseUnauthenticated, m.Snapshot().Phase)
}

func TestManagerInitializeRecoversSession(t *testing.T) {
	ctx := context.Background()
	persisted := testSession("user-123", "mario@example.com")

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}

	store.On("Load", mock.Anything).Return(persisted, nil).Once()
	idp.On("SetSession", mock.Anything, persisted.AccessToken, persisted.RefreshToken).
		Return(nil).Once()
	idp.On("Session", mock.Anything).Return(persisted, nil).Once()

	m := account.NewManager(idp, account.WithSessionStore(store))
	defer m.Close()

	m.Initialize(ctx)

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseAuthenticated, snap.Phase)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "user-123", snap.User.ID)

	idp.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestManagerInitializeRejectsInvalidPersistedToken(t *testing.T) {
	persisted := testSession("user-123", "mario@example.com")

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}
	store.On("Load", mock.Anything).Return(persisted, nil).Once()

	validator := account.TokenValidatorFunc(func(string) (*account.Identity, error) {
		return nil, account.ErrUnableToDecodeToken
	})

	m := account.NewManager(idp,
		account.WithSessionStore(store),
		account.WithTokenValidator(validator),
	)
	defer m.Close()

	m.Initialize(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session)
	idp.AssertNotCalled(t, "SetSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestManagerSignIn(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}

	store.On("Load", mock.Anything).Return(nil, account.ErrSessionNotFound).Once()
	idp.On("SignInWithPassword", mock.Anything, creds).Return(session, nil)
	idp.On("SetSession", mock.Anything, session.AccessToken, session.RefreshToken).Return(nil)
	store.On("Save", mock.Anything, mock.MatchedBy(func(s *account.Session) bool {
		return s.UserID() == "user-123"
	})).Return(nil)

	m := account.NewManager(idp, account.WithSessionStore(store))
	defer m.Close()
	m.Initialize(ctx)

	var notified []account.Snapshot
	unsubscribe := m.Subscribe(func(snap account.Snapshot) {
		notified = append(notified, snap)
	})
	defer unsubscribe()

	got, err := m.SignIn(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.UserID())

	snap := m.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Equal(t, account.PhaseAuthenticated, snap.Phase)

	// subscribers see the change synchronously, before SignIn returns
	require.Len(t, notified, 1)
	assert.True(t, notified[0].Authenticated())

	// a second sign-in by the same user is an authenticated self-loop
	got, err = m.SignIn(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.UserID())
	assert.True(t, m.Snapshot().Authenticated())

	store.AssertExpectations(t)
}

func TestManagerSignInValidationShortCircuits(t *testing.T) {
	idp := NewMockIdentityClient()
	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(context.Background())

	_, err := m.SignIn(context.Background(), account.Credentials{Email: "mario@example.com"})
	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))

	idp.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything)
}

func TestManagerSignInMalformedEmailReachesProvider(t *testing.T) {
	creds := account.Credentials{Email: "x", Password: "wrong"}

	idp := NewMockIdentityClient()
	idp.On("SignInWithPassword", mock.Anything, creds).
		Return(nil, account.ErrInvalidCredentials).Once()

	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(context.Background())

	// A mistyped address is the provider's call, not ours: it must fail
	// as invalid credentials, never as a local validation error.
	_, err := m.SignIn(context.Background(), creds)
	require.Error(t, err)
	assert.True(t, account.IsInvalidCredentials(err))
	assert.False(t, account.IsValidationError(err))

	idp.AssertExpectations(t)
}

func TestManagerSignInFailureLeavesStateUntouched(t *testing.T) {
	creds := account.Credentials{Email: "mario@example.com", Password: "wrong-1"}

	idp := NewMockIdentityClient()
	idp.On("SignInWithPassword", mock.Anything, creds).
		Return(nil, account.ErrInvalidCredentials).Once()

	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(context.Background())

	_, err := m.SignIn(context.Background(), creds)
	require.Error(t, err)
	assert.True(t, account.IsInvalidCredentials(err))

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session)
}

func TestManagerSignUp(t *testing.T) {
	ctx := context.Background()
	session := testSession("user-123", signupFixture.Email)

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}
	provisioner := &fakeProvisioner{session: session}

	store.On("Load", mock.Anything).Return(nil, account.ErrSessionNotFound).Once()
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	m := account.NewManager(idp,
		account.WithProvisioner(provisioner),
		account.WithSessionStore(store),
	)
	defer m.Close()
	m.Initialize(ctx)

	got, err := m.SignUp(ctx, signupFixture)
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.UserID())
	assert.True(t, m.Snapshot().Authenticated())
	assert.Equal(t, 1, provisioner.calls)

	store.AssertExpectations(t)
}

func TestManagerSignUpFailureLeavesStateUntouched(t *testing.T) {
	idp := NewMockIdentityClient()
	provisioner := &fakeProvisioner{
		err: account.NewProviderError("duplicate key value violates unique constraint", 409),
	}

	m := account.NewManager(idp, account.WithProvisioner(provisioner))
	defer m.Close()
	m.Initialize(context.Background())

	_, err := m.SignUp(context.Background(), signupFixture)
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session)
}

func TestManagerSignUpValidationShortCircuits(t *testing.T) {
	idp := NewMockIdentityClient()
	provisioner := &fakeProvisioner{}

	m := account.NewManager(idp, account.WithProvisioner(provisioner))
	defer m.Close()
	m.Initialize(context.Background())

	req := signupFixture
	req.ConfirmPassword = "different1"

	_, err := m.SignUp(context.Background(), req)
	require.Error(t, err)
	assert.True(t, account.IsValidationError(err))
	assert.Zero(t, provisioner.calls, "saga must not start on invalid input")
}

func TestManagerSignOut(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}

	store.On("Load", mock.Anything).Return(nil, account.ErrSessionNotFound).Once()
	idp.On("SignInWithPassword", mock.Anything, creds).Return(session, nil).Once()
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	idp.On("SignOut", mock.Anything).Return(nil).Once()
	store.On("Clear", mock.Anything).Return(nil).Once()

	m := account.NewManager(idp, account.WithSessionStore(store))
	defer m.Close()
	m.Initialize(ctx)

	_, err := m.SignIn(ctx, creds)
	require.NoError(t, err)

	require.NoError(t, m.SignOut(ctx))

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session)

	store.AssertExpectations(t)
	idp.AssertExpectations(t)
}

func TestManagerSignOutProviderFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	idp.On("SignInWithPassword", mock.Anything, creds).Return(session, nil).Once()
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	idp.On("SignOut", mock.Anything).
		Return(account.WrapNetworkError(context.DeadlineExceeded, "logout failed")).Once()

	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(ctx)

	_, err := m.SignIn(ctx, creds)
	require.NoError(t, err)

	err = m.SignOut(ctx)
	require.Error(t, err)
	assert.True(t, account.IsNetworkError(err))
	assert.True(t, m.Snapshot().Authenticated(), "failed sign-out must not clear local state")
}

func TestManagerHandlesSignedOutEvent(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	idp.On("SignInWithPassword", mock.Anything, creds).Return(session, nil).Once()
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(ctx)

	_, err := m.SignIn(ctx, creds)
	require.NoError(t, err)

	applied := make(chan account.Snapshot, 1)
	unsubscribe := m.Subscribe(func(snap account.Snapshot) {
		applied <- snap
	})
	defer unsubscribe()

	idp.Push(account.AuthEvent{Kind: account.EventSignedOut})

	select {
	case snap := <-applied:
		assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
		assert.Nil(t, snap.Session)
	case <-time.After(time.Second):
		t.Fatal("signed-out event was never applied")
	}

	assert.False(t, m.Snapshot().Authenticated())
}

func TestManagerHandlesTokenRefreshedEvent(t *testing.T) {
	refreshed := testSession("user-123", "mario@example.com")
	refreshed.AccessToken = "rotated-access"

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}
	store.On("Load", mock.Anything).Return(nil, account.ErrSessionNotFound).Once()
	store.On("Save", mock.Anything, mock.MatchedBy(func(s *account.Session) bool {
		return s.AccessToken == "rotated-access"
	})).Return(nil).Once()

	m := account.NewManager(idp, account.WithSessionStore(store))
	defer m.Close()
	m.Initialize(context.Background())

	applied := make(chan account.Snapshot, 1)
	unsubscribe := m.Subscribe(func(snap account.Snapshot) {
		applied <- snap
	})
	defer unsubscribe()

	idp.Push(account.AuthEvent{Kind: account.EventTokenRefreshed, Session: refreshed})

	select {
	case snap := <-applied:
		assert.True(t, snap.Authenticated())
		assert.Equal(t, "rotated-access", snap.Session.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("token-refreshed event was never applied")
	}

	store.AssertExpectations(t)
}

func TestManagerStaleSignInLosesToLaterEvent(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(ctx)

	eventApplied := make(chan struct{})
	unsubscribe := m.Subscribe(func(account.Snapshot) {
		select {
		case <-eventApplied:
		default:
			close(eventApplied)
		}
	})
	defer unsubscribe()

	// While the sign-in round trip is in flight, the provider reports a
	// sign-out. The sign-in began earlier, so its result must lose.
	idp.On("SignInWithPassword", mock.Anything, creds).
		Run(func(mock.Arguments) {
			idp.Push(account.AuthEvent{Kind: account.EventSignedOut})
			select {
			case <-eventApplied:
			case <-time.After(time.Second):
				t.Error("sign-out event was never applied")
			}
		}).
		Return(session, nil).Once()
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := m.SignIn(ctx, creds)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session, "stale sign-in result must be discarded")
}

func TestManagerStaleSignInIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)

	idp := NewMockIdentityClient()
	store := &MockSessionStore{}
	store.On("Load", mock.Anything).Return(nil, account.ErrSessionNotFound).Once()
	store.On("Clear", mock.Anything).Return(nil).Once()

	m := account.NewManager(idp, account.WithSessionStore(store))
	defer m.Close()
	m.Initialize(ctx)

	eventApplied := make(chan struct{})
	unsubscribe := m.Subscribe(func(account.Snapshot) {
		select {
		case <-eventApplied:
		default:
			close(eventApplied)
		}
	})
	defer unsubscribe()

	idp.On("SignInWithPassword", mock.Anything, creds).
		Run(func(mock.Arguments) {
			idp.Push(account.AuthEvent{Kind: account.EventSignedOut})
			select {
			case <-eventApplied:
			case <-time.After(time.Second):
				t.Error("sign-out event was never applied")
			}
		}).
		Return(session, nil).Once()
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := m.SignIn(ctx, creds)
	require.NoError(t, err)

	// The losing sign-in must not reach the store, or the next
	// Initialize would resurrect a session the provider revoked.
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	store.AssertExpectations(t)

	snap := m.Snapshot()
	assert.Equal(t, account.PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Session)
}

func TestManagerSubscribeUnsubscribe(t *testing.T) {
	idp := NewMockIdentityClient()
	creds := account.Credentials{Email: "mario@example.com", Password: "secret1"}
	session := testSession("user-123", creds.Email)
	idp.On("SignInWithPassword", mock.Anything, creds).Return(session, nil)
	idp.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	idp.On("SignOut", mock.Anything).Return(nil)

	m := account.NewManager(idp)
	defer m.Close()
	m.Initialize(context.Background())

	calls := 0
	unsubscribe := m.Subscribe(func(account.Snapshot) { calls++ })

	_, err := m.SignIn(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()

	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, 1, calls, "unsubscribed callback must not fire")
}

// fakeProvisioner satisfies account.AccountProvisioner without the mock
// plumbing; SignUp tests only need the call count and a canned result.
type fakeProvisioner struct {
	session *account.Session
	err     error
	calls   int
}

func (f *fakeProvisioner) Provision(context.Context, account.SignupRequest) (*account.Session, error) {
	f.calls++
	return f.session, f.err
}
