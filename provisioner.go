package account

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Step identifies one stage of the signup saga.
type Step string

const (
	StepCreateIdentity   Step = "create_identity"
	StepAcquireToken     Step = "acquire_token"
	StepCreateTenant     Step = "create_tenant"
	StepCreateProfile    Step = "create_profile"
	StepEstablishSession Step = "establish_session"
)

// StepStatus tracks a step through the transaction log.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

var stepTextCodes = map[Step]string{
	StepCreateIdentity:   "IDENTITY_CREATION_FAILED",
	StepAcquireToken:     "TOKEN_ACQUISITION_FAILED",
	StepCreateTenant:     "TENANT_CREATION_FAILED",
	StepCreateProfile:    "PROFILE_CREATION_FAILED",
	StepEstablishSession: "SESSION_ESTABLISHMENT_FAILED",
}

var stepMessages = map[Step]string{
	StepCreateIdentity:   "could not create account identity",
	StepAcquireToken:     "could not acquire access token",
	StepCreateTenant:     "could not create workspace",
	StepCreateProfile:    "could not create profile",
	StepEstablishSession: "could not establish session",
}

// StepResult is one entry of the ordered transaction log.
type StepResult struct {
	Step      Step
	Status    StepStatus
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Transaction is the ordered step log of one provisioning run. It is not
// persisted; it exists so observers and error metadata can name exactly
// which step failed and which writes already landed.
type Transaction struct {
	Steps []StepResult
}

func (t *Transaction) record(result StepResult) {
	t.Steps = append(t.Steps, result)
}

// Failed returns the first failed step, if any.
func (t *Transaction) Failed() (StepResult, bool) {
	for _, s := range t.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// Done reports whether every step of the saga completed.
func (t *Transaction) Done() bool {
	if len(t.Steps) != 5 {
		return false
	}
	for _, s := range t.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return true
}

// StepObserver receives each step result as it is recorded.
type StepObserver func(StepResult)

// ProvisionerOption customizes provisioner construction.
type ProvisionerOption func(*Provisioner)

// WithProvisionerLogger overrides the default logger.
func WithProvisionerLogger(logger Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProvisionerClock injects a custom clock (useful for tests).
func WithProvisionerClock(clock func() time.Time) ProvisionerOption {
	return func(p *Provisioner) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithProvisionerActivitySink configures an ActivitySink for step events.
func WithProvisionerActivitySink(sink ActivitySink) ProvisionerOption {
	return func(p *Provisioner) {
		p.sink = normalizeActivitySink(sink)
	}
}

// WithStepTimeout bounds each saga step. A step that exceeds the bound is
// surfaced as a network error, not left hanging against the caller.
func WithStepTimeout(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		if d > 0 {
			p.stepTimeout = d
		}
	}
}

// WithStepObserver registers a callback invoked for every recorded step.
func WithStepObserver(observer StepObserver) ProvisionerOption {
	return func(p *Provisioner) {
		p.observer = observer
	}
}

// Provisioner drives the signup saga against the identity provider and the
// resource store. Steps are strictly sequential; each consumes the prior
// step's output, and the first failure aborts the run.
type Provisioner struct {
	idp         IdentityClient
	resources   ResourceClient
	logger      Logger
	sink        ActivitySink
	now         func() time.Time
	stepTimeout time.Duration
	observer    StepObserver
}

var _ AccountProvisioner = (*Provisioner)(nil)

// NewProvisioner returns a saga runner over the given clients.
func NewProvisioner(idp IdentityClient, resources ResourceClient, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		idp:         idp,
		resources:   resources,
		logger:      defLogger{},
		sink:        noopActivitySink{},
		now:         time.Now,
		stepTimeout: time.Second * 10,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Provision executes the saga for a pre-validated request and returns the
// established session. On failure the returned error names the failed step
// in its metadata; no compensation runs, so writes that already landed
// (identity, tenant) remain. The tenant idempotency key makes a retry of
// the same request safe at step three.
func (p *Provisioner) Provision(ctx context.Context, req SignupRequest) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account provisioning",
		)
	default:
		return p.provision(ctx, req)
	}
}

func (p *Provisioner) provision(ctx context.Context, req SignupRequest) (*Session, error) {
	tx := &Transaction{}
	creds := req.Credentials()

	var identity *Identity
	err := p.step(ctx, tx, StepCreateIdentity, func(ctx context.Context) error {
		var err error
		identity, err = p.idp.SignUp(ctx, req)
		if err == nil && (identity == nil || identity.ID == "") {
			return ErrUnableToMapClaims
		}
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, tx, req, err)
	}

	// Identity creation does not return usable tokens for the writes below.
	var first *Session
	err = p.step(ctx, tx, StepAcquireToken, func(ctx context.Context) error {
		var err error
		first, err = p.idp.SignInWithPassword(ctx, creds)
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, tx, req, err)
	}

	slug := TenantSlug(req.Email, p.now())

	var tenant *Tenant
	err = p.step(ctx, tx, StepCreateTenant, func(ctx context.Context) error {
		var err error
		tenant, err = p.resources.CreateTenant(ctx, first.AccessToken, TenantCreate{
			Name:           req.WorkspaceName(),
			Slug:           slug,
			IdempotencyKey: IdempotencyKey(req.Email, slug),
		})
		if err == nil && (tenant == nil || tenant.ID == "") {
			return goerrors.New("resource store returned no tenant id", goerrors.CategoryOperation)
		}
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, tx, req, err)
	}

	err = p.step(ctx, tx, StepCreateProfile, func(ctx context.Context) error {
		_, err := p.resources.CreateProfile(ctx, first.AccessToken, ProfileCreate{
			ID:          identity.ID,
			TenantID:    tenant.ID,
			Email:       identity.Email,
			FullName:    req.FullName,
			Role:        RoleOwner,
			Preferences: map[string]any{},
		})
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, tx, req, err)
	}

	// Re-acquire tokens rather than reusing the step-two pair, which may
	// have gone stale during the resource writes.
	var session *Session
	err = p.step(ctx, tx, StepEstablishSession, func(ctx context.Context) error {
		var err error
		session, err = p.idp.SignInWithPassword(ctx, creds)
		if err != nil {
			return err
		}
		return p.idp.SetSession(ctx, session.AccessToken, session.RefreshToken)
	})
	if err != nil {
		return nil, p.fail(ctx, tx, req, err)
	}

	if session.User == nil {
		session.User = identity
	}

	p.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignupSuccess,
		UserID:    identity.ID,
		Metadata: map[string]any{
			"email":  req.Email,
			"tenant": tenant.ID,
		},
	})

	return session, nil
}

func (p *Provisioner) step(ctx context.Context, tx *Transaction, step Step, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()

	started := p.now()
	err := fn(sctx)
	result := StepResult{
		Step:      step,
		Status:    StepDone,
		StartedAt: started,
		Duration:  p.now().Sub(started),
	}

	if err != nil {
		err = p.stepError(step, err)
		result.Status = StepFailed
		result.Err = err
	}

	tx.record(result)
	if p.observer != nil {
		p.observer(result)
	}

	p.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignupStep,
		Step:      step,
		Metadata:  map[string]any{"status": result.Status},
	})

	return err
}

func (p *Provisioner) stepError(step Step, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = WrapNetworkError(cause, stepMessages[step])
	}

	return goerrors.Wrap(cause, stepCategory(cause), stepMessages[step]).
		WithTextCode(stepTextCodes[step]).
		WithMetadata(map[string]any{"step": string(step)})
}

func stepCategory(cause error) goerrors.Category {
	var richErr *goerrors.Error
	if goerrors.As(cause, &richErr) {
		return richErr.Category
	}
	return goerrors.CategoryOperation
}

func (p *Provisioner) fail(ctx context.Context, tx *Transaction, req SignupRequest, err error) error {
	failed, _ := tx.Failed()
	p.logger.Error("provisioning aborted at %s: %v", failed.Step, err)

	p.emit(ctx, ActivityEvent{
		EventType: ActivityEventSignupFailure,
		Step:      failed.Step,
		Metadata: map[string]any{
			"email": req.Email,
			"error": err.Error(),
		},
	})

	return err
}

func (p *Provisioner) emit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	sink := normalizeActivitySink(p.sink)
	if err := sink.Record(ctx, event); err != nil {
		p.logger.Warn("provisioner activity sink error: %v", err)
	}
}
