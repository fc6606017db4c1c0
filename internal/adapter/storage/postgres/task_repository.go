package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	pgdb "github.com/fieldops/dispatch/config/storage/postgresql"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
)

var taskColumns = []string{
	"id", "short_code", "title", "type", "priority", "creator_id", "skills",
	"location_lat", "location_lng", "status", "assignee_id", "deadline",
	"sent_at", "accepted_at", "started_at", "completed_at",
	"response_time", "completion_time",
	"escalation_count", "last_escalation_at", "last_reminder_sent",
	"deadline_warning_sent", "quality_rating", "created_at", "updated_at",
}

type taskRepository struct {
	db  *pgdb.DB
	log *zap.Logger
}

// NewTaskRepository creates the postgres-backed task store.
func NewTaskRepository(db *pgdb.DB, log *zap.Logger) port.TaskRepository {
	return &taskRepository{
		db:  db,
		log: log,
	}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	var lat, lng *float64
	if task.Location != nil {
		lat, lng = &task.Location.Lat, &task.Location.Lng
	}
	skills := task.Skills
	if skills == nil {
		skills = []string{}
	}

	query, args, err := r.db.QueryBuilder.Insert("tasks").
		Columns(taskColumns...).
		Values(task.ID, task.ShortCode, task.Title, task.Type, task.Priority,
			task.CreatorID, skills, lat, lng, task.Status,
			nullableID(task.AssigneeID), task.Deadline,
			task.SentAt, task.AcceptedAt, task.StartedAt, task.CompletedAt,
			task.ResponseTime, task.CompletionTime,
			task.EscalationCount, task.LastEscalationAt, task.LastReminderSent,
			task.DeadlineWarningSent, task.QualityRating,
			task.CreatedAt, task.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to insert task", zap.String("task_id", task.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *taskRepository) GetByShortCode(ctx context.Context, code string) (*domain.Task, error) {
	return r.getOne(ctx, sq.Eq{"short_code": code})
}

func (r *taskRepository) getOne(ctx context.Context, pred any) (*domain.Task, error) {
	query, args, err := r.db.QueryBuilder.Select(taskColumns...).
		From("tasks").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *taskRepository) ListByStatus(ctx context.Context, statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	return r.list(ctx, sq.Eq{"status": statuses})
}

func (r *taskRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	return r.list(ctx, sq.And{
		sq.Eq{"status": domain.OverdueCandidateStatuses},
		sq.Lt{"deadline": now},
	})
}

func (r *taskRepository) FindActiveByAssignee(ctx context.Context, workerID string) (*domain.Task, error) {
	active := append([]domain.TaskStatus{}, domain.OpenStatuses...)
	active = append(active, domain.TaskStatusRead, domain.TaskStatusOverdue)

	query, args, err := r.db.QueryBuilder.Select(taskColumns...).
		From("tasks").
		Where(sq.And{
			sq.Eq{"assignee_id": workerID},
			sq.Eq{"status": active},
		}).
		OrderBy("sent_at DESC NULLS LAST").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return task, err
}

func (r *taskRepository) CountOpen(ctx context.Context, workerID string) (int, error) {
	query, args, err := r.db.QueryBuilder.Select("COUNT(*)").
		From("tasks").
		Where(sq.And{
			sq.Eq{"assignee_id": workerID},
			sq.Eq{"status": domain.OpenStatuses},
		}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *taskRepository) ListCompletedSince(ctx context.Context, workerID string, since time.Time) ([]*domain.Task, error) {
	return r.list(ctx, sq.And{
		sq.Eq{"assignee_id": workerID},
		sq.Eq{"status": domain.TaskStatusCompleted},
		sq.Gt{"completed_at": since},
	})
}

// UpdateGuarded writes the task's mutable fields with the stored status as
// the write guard. Zero rows affected means another actor got there first.
func (r *taskRepository) UpdateGuarded(ctx context.Context, task *domain.Task, expected domain.TaskStatus) error {
	query, args, err := r.db.QueryBuilder.Update("tasks").
		Set("status", task.Status).
		Set("assignee_id", nullableID(task.AssigneeID)).
		Set("sent_at", task.SentAt).
		Set("accepted_at", task.AcceptedAt).
		Set("started_at", task.StartedAt).
		Set("completed_at", task.CompletedAt).
		Set("response_time", task.ResponseTime).
		Set("completion_time", task.CompletionTime).
		Set("escalation_count", task.EscalationCount).
		Set("last_escalation_at", task.LastEscalationAt).
		Set("last_reminder_sent", task.LastReminderSent).
		Set("quality_rating", task.QualityRating).
		Set("updated_at", task.UpdatedAt).
		Where(sq.Eq{"id": task.ID, "status": expected}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to update task", zap.String("task_id", task.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, task.ID)
	}
	return nil
}

func (r *taskRepository) StampReminder(ctx context.Context, taskID string, observed *time.Time, now time.Time) error {
	query, args, err := r.db.QueryBuilder.Update("tasks").
		Set("last_reminder_sent", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": taskID}).
		Where(sq.Expr("last_reminder_sent IS NOT DISTINCT FROM ?", observed)).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, taskID)
	}
	return nil
}

func (r *taskRepository) StampDeadlineWarning(ctx context.Context, taskID string, threshold int) error {
	query, args, err := r.db.QueryBuilder.Update("tasks").
		Set("deadline_warning_sent", threshold).
		Where(sq.Eq{"id": taskID}).
		Where(sq.Or{
			sq.Eq{"deadline_warning_sent": nil},
			sq.Gt{"deadline_warning_sent": threshold},
		}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, taskID)
	}
	return nil
}

func (r *taskRepository) staleOrMissing(ctx context.Context, taskID string) error {
	if _, err := r.GetByID(ctx, taskID); errors.Is(err, domain.ErrTaskNotFound) {
		return domain.ErrTaskNotFound
	}
	return fmt.Errorf("%w: task %s", domain.ErrStaleTask, taskID)
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t          domain.Task
		lat, lng   *float64
		assigneeID *string
	)
	err := row.Scan(
		&t.ID, &t.ShortCode, &t.Title, &t.Type, &t.Priority, &t.CreatorID,
		&t.Skills, &lat, &lng, &t.Status, &assigneeID, &t.Deadline,
		&t.SentAt, &t.AcceptedAt, &t.StartedAt, &t.CompletedAt,
		&t.ResponseTime, &t.CompletionTime,
		&t.EscalationCount, &t.LastEscalationAt, &t.LastReminderSent,
		&t.DeadlineWarningSent, &t.QualityRating, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		t.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	if assigneeID != nil {
		t.AssigneeID = *assigneeID
	}
	return &t, nil
}

func (r *taskRepository) list(ctx context.Context, pred any) ([]*domain.Task, error) {
	query, args, err := r.db.QueryBuilder.Select(taskColumns...).
		From("tasks").
		Where(pred).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// nullableID maps the empty string onto SQL NULL so the unassigned state is
// queryable and never collides with a real worker id.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
