package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by the audit log.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditLog records every operator notification of one bot. It is a
// notify.Sender, so alerts land in the database alongside chat delivery.
type AuditLog struct {
	db    Querier
	botID string
}

// NewAuditLog creates an audit log for botID.
func NewAuditLog(db Querier, botID string) *AuditLog {
	return &AuditLog{db: db, botID: botID}
}

// Send appends one entry.
func (a *AuditLog) Send(ctx context.Context, title, message string) error {
	const query = `INSERT INTO audit_log (bot_id, title, message) VALUES ($1, $2, $3)`
	if _, err := a.db.Exec(ctx, query, a.botID, title, message); err != nil {
		return fmt.Errorf("postgres: audit %q: %w", title, err)
	}
	return nil
}

// Name returns the sender identifier.
func (a *AuditLog) Name() string { return "audit_log" }

// Recent returns up to limit entries, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, title, message, created_at
		FROM audit_log
		WHERE bot_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := a.db.Query(ctx, query, a.botID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var e domain.AuditEntry
		err := row.Scan(&e.ID, &e.Title, &e.Message, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}
	return entries, nil
}
