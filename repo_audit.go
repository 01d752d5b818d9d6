package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditEvents is the append-only audit trail store. There is deliberately
// no update or delete surface.
type AuditEvents interface {
	Append(ctx context.Context, event *AuditEvent) error
	AppendTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEvent, error)
}

type auditEvents struct {
	repo repository.Repository[*AuditEvent]
	db   *bun.DB
}

var _ AuditEvents = (*auditEvents)(nil)

func NewAuditEventsRepository(db *bun.DB) AuditEvents {
	repo := repository.NewRepository[*AuditEvent](db, repository.ModelHandlers[*AuditEvent]{
		NewRecord: func() *AuditEvent { return &AuditEvent{} },
		GetID: func(e *AuditEvent) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *AuditEvent, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &auditEvents{
		repo: repo,
		db:   db,
	}
}

func (a *auditEvents) Append(ctx context.Context, event *AuditEvent) error {
	return a.AppendTx(ctx, a.db, event)
}

func (a *auditEvents) AppendTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error {
	if event == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	_, err := a.repo.CreateTx(ctx, tx, event)
	return err
}

func (a *auditEvents) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var events []*AuditEvent
	err := a.db.NewSelect().
		Model(&events).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return events, nil
}
