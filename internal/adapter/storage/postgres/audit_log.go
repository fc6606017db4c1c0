package postgres

import (
	"context"

	"go.uber.org/zap"

	pgdb "github.com/fieldops/dispatch/config/storage/postgresql"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
)

type auditLog struct {
	db  *pgdb.DB
	log *zap.Logger
}

// NewAuditLog creates the append-only postgres task trail.
func NewAuditLog(db *pgdb.DB, log *zap.Logger) port.AuditLog {
	return &auditLog{
		db:  db,
		log: log,
	}
}

func (a *auditLog) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query, args, err := a.db.QueryBuilder.Insert("task_audit").
		Columns("id", "task_id", "actor_id", "action", "from_status", "to_status", "detail", "created_at").
		Values(entry.ID, entry.TaskID, entry.ActorID, entry.Action,
			string(entry.FromStatus), string(entry.ToStatus), entry.Detail, entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := a.db.Exec(ctx, query, args...); err != nil {
		a.log.Error("Failed to append audit entry",
			zap.String("task_id", entry.TaskID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return err
	}
	return nil
}
