// Package store persists the authoritative token pair between process runs
// so the session manager can recover a session at startup without user
// interaction. Tokens are sealed with a secretbox key before touching disk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/wallyhq/go-account"
)

// recordID keys the single authoritative row; one process owns one session.
var recordID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("go-account.session"))

// Record is the persisted session row.
type Record struct {
	bun.BaseModel `bun:"table:account_sessions,alias:asn"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID       string     `bun:"user_id,notnull" json:"user_id"`
	Email        string     `bun:"email" json:"email"`
	AccessToken  string     `bun:"access_token,notnull" json:"-"`
	RefreshToken string     `bun:"refresh_token" json:"-"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// Option customizes store construction.
type Option func(*SessionStore)

// WithLogger overrides the default logger.
func WithLogger(logger account.Logger) Option {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SessionStore implements account.SessionStore over a bun database.
type SessionStore struct {
	db     *bun.DB
	repo   repository.Repository[*Record]
	cipher *tokenCipher
	logger account.Logger
	now    func() time.Time
}

var _ account.SessionStore = (*SessionStore)(nil)

// New builds a store. key must be 32 bytes; tokens are never written in
// the clear.
func New(db *bun.DB, key []byte, opts ...Option) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: database handle is required")
	}

	cipher, err := newTokenCipher(key)
	if err != nil {
		return nil, err
	}

	repo := repository.NewRepository[*Record](db, repository.ModelHandlers[*Record]{
		NewRecord:     func() *Record { return &Record{} },
		GetIdentifier: func() string { return "id" },
		GetID: func(r *Record) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Record, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	s := &SessionStore{
		db:     db,
		repo:   repo,
		cipher: cipher,
		logger: noopLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

// Init creates the backing table when missing.
func (s *SessionStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Save seals the token pair and upserts the single session row.
func (s *SessionStore) Save(ctx context.Context, session *account.Session) error {
	if !session.Valid() {
		return account.ErrUnableToMapClaims
	}

	access, err := s.cipher.seal(session.AccessToken)
	if err != nil {
		return err
	}

	refresh := ""
	if session.RefreshToken != "" {
		if refresh, err = s.cipher.seal(session.RefreshToken); err != nil {
			return err
		}
	}

	record := &Record{
		ID:           recordID,
		UserID:       session.UserID(),
		Email:        session.User.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		UpdatedAt:    s.now(),
	}
	if !session.ExpiresAt.IsZero() {
		expires := session.ExpiresAt
		record.ExpiresAt = &expires
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}

	return nil
}

// Load opens the persisted row and rebuilds a session. A missing row maps
// to account.ErrSessionNotFound.
func (s *SessionStore) Load(ctx context.Context) (*account.Session, error) {
	record := &Record{}
	err := s.db.NewSelect().
		Model(record).
		Where("id = ?", recordID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, account.ErrSessionNotFound
		}
		return nil, fmt.Errorf("store: load session: %w", err)
	}

	access, err := s.cipher.open(record.AccessToken)
	if err != nil {
		return nil, err
	}

	refresh := ""
	if record.RefreshToken != "" {
		if refresh, err = s.cipher.open(record.RefreshToken); err != nil {
			return nil, err
		}
	}

	session := &account.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User: &account.Identity{
			ID:    record.UserID,
			Email: record.Email,
		},
	}
	if record.ExpiresAt != nil {
		session.ExpiresAt = *record.ExpiresAt
	}

	return session, nil
}

// Clear drops the persisted row. Clearing an empty store is not an error.
func (s *SessionStore) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("id = ?", recordID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: clear session: %w", err)
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
