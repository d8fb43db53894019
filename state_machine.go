package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidPhaseTransition = "INVALID_SESSION_PHASE_TRANSITION"

// ErrInvalidPhaseTransition is returned when a requested phase change is not allowed.
var ErrInvalidPhaseTransition = goerrors.New("invalid session phase transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidPhaseTransition).
	WithCode(goerrors.CodeConflict)

// Phase identifies where the session lifecycle currently is. The machine
// runs for the process lifetime; there is no terminal phase.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// LifecycleOption customizes lifecycle construction.
type LifecycleOption func(*Lifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish phase changes.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *Lifecycle) {
		l.sink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Lifecycle centralizes the session phase transition graph:
// uninitialized -> loading -> {authenticated | unauthenticated}, with
// authenticated re-entering itself on token refresh and both resolved
// phases able to swap on sign-in/sign-out.
type Lifecycle struct {
	transitions map[Phase]map[Phase]struct{}
	now         func() time.Time
	sink        ActivitySink
	logger      Logger
}

// NewLifecycle returns the default transition table.
func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		transitions: map[Phase]map[Phase]struct{}{
			PhaseUninitialized: {
				PhaseLoading: {},
			},
			PhaseLoading: {
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
			PhaseAuthenticated: {
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
			PhaseUnauthenticated: {
				PhaseAuthenticated:   {},
				PhaseUnauthenticated: {},
			},
		},
		now:    time.Now,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// CanTransition reports whether from -> to is in the table. A no-op
// transition (from == to) is always acceptable to request; whether it is a
// recorded self-loop depends on the table.
func (l *Lifecycle) CanTransition(from, to Phase) bool {
	if from == to {
		if allowed, ok := l.transitions[from]; ok {
			if _, exists := allowed[to]; exists {
				return true
			}
		}
		return true
	}
	if allowed, ok := l.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition validates and records a phase change, returning the phase that
// is now in effect.
func (l *Lifecycle) Transition(ctx context.Context, from, to Phase, userID string) (Phase, error) {
	if to == "" {
		return from, ErrInvalidPhaseTransition.WithMetadata(map[string]any{
			"reason": "target phase is empty",
		})
	}

	if from == to {
		return to, nil
	}

	if !l.CanTransition(from, to) {
		return from, ErrInvalidPhaseTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityEventPhaseChanged,
		UserID:    userID,
		FromPhase: from,
		ToPhase:   to,
	})

	return to, nil
}

func (l *Lifecycle) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now()
	}

	sink := normalizeActivitySink(l.sink)
	if err := sink.Record(ctx, event); err != nil {
		l.logger.Warn("lifecycle activity sink error: %v", err)
	}
}
