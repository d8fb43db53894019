package account

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is the read-only view handed to subscribers and the route guard.
type Snapshot struct {
	User    *Identity
	Session *Session
	Phase   Phase
	Loading bool
}

// Authenticated reports whether the snapshot carries a usable session.
func (s Snapshot) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.Session.Valid()
}

// Subscriber receives every state change synchronously with the snapshot
// in effect at notification time.
type Subscriber func(Snapshot)

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithProvisioner wires the signup saga runner.
func WithProvisioner(p AccountProvisioner) ManagerOption {
	return func(m *Manager) {
		m.provisioner = p
	}
}

// WithSessionStore wires durable token persistence for Initialize recovery.
func WithSessionStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithTokenValidator vets recovered access tokens before they are trusted.
func WithTokenValidator(v TokenValidator) ManagerOption {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithManagerLogger overrides the default logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerActivitySink configures an ActivitySink for auth events.
func WithManagerActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithManagerLifecycle overrides the phase transition table.
func WithManagerLifecycle(l *Lifecycle) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.lifecycle = l
		}
	}
}

// Manager is the process-wide authoritative owner of the current Session.
// All writer paths (sign-in, sign-up completion, sign-out, event channel
// delivery) funnel through apply, which enforces last-writer-wins by a
// monotonic sequence number rather than by arrival order: a local call is
// assigned its sequence when it begins, so a slow sign-in that completes
// after a later sign-out event loses deterministically.
type Manager struct {
	idp         IdentityClient
	provisioner AccountProvisioner
	store       SessionStore
	validator   TokenValidator
	lifecycle   *Lifecycle
	logger      Logger
	sink        ActivitySink

	mu          sync.RWMutex
	phase       Phase
	session     *Session
	loading     bool
	appliedSeq  uint64
	subscribers map[int]Subscriber
	nextSubID   int

	seq      atomic.Uint64
	initOnce sync.Once
	done     chan struct{}
}

// NewManager returns an uninitialized manager; call Initialize once at
// process start.
func NewManager(idp IdentityClient, opts ...ManagerOption) *Manager {
	m := &Manager{
		idp:         idp,
		lifecycle:   NewLifecycle(),
		logger:      defLogger{},
		sink:        noopActivitySink{},
		phase:       PhaseUninitialized,
		subscribers: map[int]Subscriber{},
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Initialize recovers a previously persisted session, subscribes to the
// identity provider's event channel, and resolves the loading flag. It runs
// exactly once per process lifetime; later calls are no-ops.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.mu.Lock()
		m.phase = PhaseLoading
		m.loading = true
		snap := m.snapshotLocked()
		subs := m.subscribersLocked()
		m.mu.Unlock()
		m.notify(subs, snap)

		session := m.recover(ctx)
		m.apply(ctx, m.begin(), session)

		go m.consumeEvents()
	})
}

func (m *Manager) recover(ctx context.Context) *Session {
	if m.store == nil {
		return nil
	}

	persisted, err := m.store.Load(ctx)
	if err != nil {
		if !HasTextCode(err, textCodeSessionNotFound) {
			m.logger.Warn("session recovery failed: %v", err)
		}
		return nil
	}

	if m.validator != nil {
		if _, err := m.validator.Validate(persisted.AccessToken); err != nil {
			m.logger.Warn("persisted access token rejected: %v", err)
			return nil
		}
	}

	if err := m.idp.SetSession(ctx, persisted.AccessToken, persisted.RefreshToken); err != nil {
		m.logger.Warn("could not hydrate provider session: %v", err)
		return nil
	}

	session, err := m.idp.Session(ctx)
	if err != nil {
		m.logger.Warn("could not read provider session: %v", err)
		return nil
	}

	return session
}

// SignIn performs a password-grant login directly, bypassing the
// provisioner, and installs the resulting session.
func (m *Manager) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}

	if err := creds.Validate(); err != nil {
		return nil, WrapValidationError(err)
	}

	seq := m.begin()

	session, err := m.idp.SignInWithPassword(ctx, creds)
	if err != nil {
		m.emit(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": creds.Email, "error": err.Error()},
		})
		return nil, err
	}

	// Hydrate the provider's local client state so dependent features see
	// the same tokens.
	if err := m.idp.SetSession(ctx, session.AccessToken, session.RefreshToken); err != nil {
		m.logger.Warn("could not hydrate provider session: %v", err)
	}

	if m.apply(ctx, seq, session) {
		m.persist(ctx, session)
	} else {
		m.logger.Info("sign-in result superseded by a later mutation, discarding")
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    session.UserID(),
		Metadata:  map[string]any{"email": creds.Email},
	})

	return session.Clone(), nil
}

// SignUp validates the request locally, delegates to the provisioner, and
// installs the resulting session. Validation failures never reach the
// network. A failed saga leaves the authoritative state untouched.
func (m *Manager) SignUp(ctx context.Context, req SignupRequest) (*Session, error) {
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}

	if m.provisioner == nil {
		return nil, ErrNotInitialized.WithMetadata(map[string]any{
			"reason": "no provisioner configured",
		})
	}

	if err := req.Validate(); err != nil {
		return nil, WrapValidationError(err)
	}

	seq := m.begin()

	session, err := m.provisioner.Provision(ctx, req)
	if err != nil {
		return nil, err
	}

	if m.apply(ctx, seq, session) {
		m.persist(ctx, session)
	} else {
		m.logger.Info("sign-up result superseded by a later mutation, discarding")
	}

	return session.Clone(), nil
}

// SignOut revokes the session with the provider and clears the
// authoritative state. A provider failure leaves local state untouched and
// is surfaced to the caller.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.ensureInitialized(); err != nil {
		return err
	}

	seq := m.begin()
	userID := m.Snapshot().Session.UserID()

	if err := m.idp.SignOut(ctx); err != nil {
		if IsNetworkError(err) {
			return err
		}
		return WrapAuthError(err, "sign out failed")
	}

	if m.apply(ctx, seq, nil) {
		m.clearPersisted(ctx)
	} else {
		m.logger.Info("sign-out superseded by a later mutation, discarding")
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignOut,
		UserID:    userID,
	})

	return nil
}

// Snapshot returns the current read-only state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe registers a subscriber and returns its unsubscribe function.
// Subscribers are invoked synchronously on every state change.
func (m *Manager) Subscribe(fn Subscriber) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Close stops the event loop. The manager state remains readable.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) consumeEvents() {
	events := m.idp.Events()
	if events == nil {
		return
	}

	for {
		select {
		case <-m.done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(event)
		}
	}
}

// handleEvent applies a channel-delivered state change. The provider's view
// is authoritative: the payload unconditionally overwrites local state,
// subject only to the sequence rule shared with local writers. Events are
// processed in delivery order and never debounced.
func (m *Manager) handleEvent(event AuthEvent) {
	ctx := context.Background()
	seq := m.begin()

	switch event.Kind {
	case EventSignedOut:
		if m.apply(ctx, seq, nil) {
			m.clearPersisted(ctx)
		}
	case EventTokenRefreshed:
		if m.apply(ctx, seq, event.Session) {
			m.persist(ctx, event.Session)
			m.emit(ctx, ActivityEvent{
				EventType: ActivityEventTokenRefreshed,
				UserID:    event.Session.UserID(),
			})
		}
	case EventSignedIn, EventUserUpdated:
		if m.apply(ctx, seq, event.Session) {
			m.persist(ctx, event.Session)
		}
	default:
		m.logger.Debug("ignoring unknown auth event kind %q", event.Kind)
	}
}

// begin allocates the sequence number for a session-mutating operation.
// Local callers allocate before their network round trip so that a slower
// operation started earlier cannot overwrite a later one.
func (m *Manager) begin() uint64 {
	return m.seq.Add(1)
}

// apply is the single mutation entry point. It returns false when the
// write is stale under last-writer-wins; callers must not persist or
// clear the SessionStore for a losing write.
func (m *Manager) apply(ctx context.Context, seq uint64, session *Session) bool {
	m.mu.Lock()

	if seq <= m.appliedSeq {
		m.mu.Unlock()
		return false
	}

	target := PhaseUnauthenticated
	if session.Valid() {
		target = PhaseAuthenticated
	}

	phase, err := m.lifecycle.Transition(ctx, m.phase, target, session.UserID())
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("rejected session phase transition: %v", err)
		return false
	}

	m.appliedSeq = seq
	m.phase = phase
	m.session = session.Clone()
	m.loading = false

	snap := m.snapshotLocked()
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.notify(subs, snap)
	return true
}

func (m *Manager) ensureInitialized() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.phase == PhaseUninitialized {
		return ErrNotInitialized
	}
	return nil
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:   m.phase,
		Loading: m.loading,
		Session: m.session.Clone(),
	}
	if snap.Session != nil {
		snap.User = snap.Session.User
	}
	return snap
}

func (m *Manager) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func (m *Manager) notify(subs []Subscriber, snap Snapshot) {
	for _, fn := range subs {
		if fn != nil {
			fn(snap)
		}
	}
}

func (m *Manager) persist(ctx context.Context, session *Session) {
	if m.store == nil || session == nil {
		return
	}
	if err := m.store.Save(ctx, session); err != nil {
		m.logger.Warn("could not persist session: %v", err)
	}
}

func (m *Manager) clearPersisted(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("could not clear persisted session: %v", err)
	}
}

func (m *Manager) emit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	sink := normalizeActivitySink(m.sink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
