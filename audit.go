package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditSink consumes security events for the append-only audit trail.
// Sinks run best-effort: the orchestrator logs a failed Record and moves
// on, it never fails the surrounding auth operation over it.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditSink(s AuditSink) AuditSink {
	if s == nil {
		return noopAuditSink{}
	}
	return s
}

// RepositoryAuditSink persists events through the AuditEvents repository.
type RepositoryAuditSink struct {
	repo AuditEvents
}

// NewRepositoryAuditSink wires a persistent sink over the audit repository.
func NewRepositoryAuditSink(repo AuditEvents) *RepositoryAuditSink {
	return &RepositoryAuditSink{repo: repo}
}

// Record implements AuditSink.
func (s *RepositoryAuditSink) Record(ctx context.Context, event AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt == nil {
		now := time.Now()
		event.CreatedAt = &now
	}
	return s.repo.Append(ctx, &event)
}
