package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions is the session registry: the single authority on token
// revocation. Structurally valid tokens whose row was revoked or expired
// are dead.
type Sessions interface {
	repository.Repository[*Session]

	Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error)

	// GetByToken returns ErrSessionNotFound both for a missing row and for
	// an expired one; callers cannot tell the two apart.
	GetByToken(ctx context.Context, token string) (*Session, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error)

	// RevokeByToken deletes idempotently; revoking an absent token is not an error.
	RevokeByToken(ctx context.Context, token string) error
	RevokeByTokenTx(ctx context.Context, tx bun.IDB, token string) error

	// RevokeAllForUser cuts every live session a user holds.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error

	// DeleteExpired purges naturally expired rows. Reads already filter on
	// expiry, this is housekeeping only.
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessions struct {
	repository.Repository[*Session]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

type SessionsOption func(*sessions)

// WithSessionsClock injects a custom clock (useful for tests).
func WithSessionsClock(clock func() time.Time) SessionsOption {
	return func(s *sessions) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewSessionsRepository(db *bun.DB, opts ...SessionsOption) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "session_token"
		},
	})

	repoSessions := &sessions{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoSessions)
		}
	}

	return repoSessions
}

func (s *sessions) Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	return s.CreateTx(ctx, s.db, record, criteria...)
}

func (s *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return s.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (s *sessions) GetByToken(ctx context.Context, token string) (*Session, error) {
	return s.GetByTokenTx(ctx, s.db, token)
}

func (s *sessions) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	record := &Session{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.session_token = ?", token).
		Where("?TableAlias.expires_at > ?", s.now()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		// A missing row and an expired row are intentionally the same error;
		// storage failures are not absence and surface as such.
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}

	return record, nil
}

func (s *sessions) RevokeByToken(ctx context.Context, token string) error {
	return s.RevokeByTokenTx(ctx, s.db, token)
}

func (s *sessions) RevokeByTokenTx(ctx context.Context, tx bun.IDB, token string) error {
	if token == "" {
		return nil
	}

	_, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("session_token = ?", token).
		Exec(ctx)

	return err
}

func (s *sessions) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)

	return err
}

func (s *sessions) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*Session)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return affected, nil
}
