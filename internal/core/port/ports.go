package port

import (
	"context"
	"time"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// TaskRepository defines how tasks are persisted. Every mutating call is a
// conditional write: the guard fields it names must still hold in the store
// or the write is rejected with domain.ErrStaleTask, so two concurrent
// actors (inbound message vs. escalation sweep) can never clobber each
// other's update.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	GetByShortCode(ctx context.Context, code string) (*domain.Task, error)

	// ListByStatus returns tasks currently in any of the given states.
	ListByStatus(ctx context.Context, statuses ...domain.TaskStatus) ([]*domain.Task, error)
	// ListOverdue returns tasks in an overdue-candidate state whose deadline
	// has passed.
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error)
	// FindActiveByAssignee returns the assignee's most recently dispatched
	// open task, or ErrTaskNotFound.
	FindActiveByAssignee(ctx context.Context, workerID string) (*domain.Task, error)
	// CountOpen counts the worker's tasks in SENT/ACCEPTED/IN_PROGRESS.
	CountOpen(ctx context.Context, workerID string) (int, error)
	// ListCompletedSince returns the worker's tasks completed after the cutoff.
	ListCompletedSince(ctx context.Context, workerID string, since time.Time) ([]*domain.Task, error)

	// UpdateGuarded persists the task's mutable lifecycle fields only if the
	// stored status still equals expected.
	UpdateGuarded(ctx context.Context, task *domain.Task, expected domain.TaskStatus) error
	// StampReminder advances last_reminder_sent to now only if the stored
	// cursor still equals observed (nil = never sent).
	StampReminder(ctx context.Context, taskID string, observed *time.Time, now time.Time) error
	// StampDeadlineWarning lowers deadline_warning_sent to threshold only if
	// the stored value is still strictly above it (nil = no warning yet).
	StampDeadlineWarning(ctx context.Context, taskID string, threshold int) error
}

// WorkerDirectory reads field-reporter snapshots from the employee
// subsystem. The dispatch core owns exactly one field on it: the
// performance score written back by the metrics sweep.
type WorkerDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Worker, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Worker, error)
	// ListCandidates returns ACTIVE workers who are AVAILABLE or BUSY.
	ListCandidates(ctx context.Context) ([]*domain.Worker, error)
	ListActive(ctx context.Context) ([]*domain.Worker, error)
	UpdatePerformanceScore(ctx context.Context, id string, score float64) error
}

// PresenceStore tracks live worker location heartbeats (Redis, TTL-bound).
type PresenceStore interface {
	RecordPresence(ctx context.Context, workerID string, loc domain.GeoPoint, at time.Time) error
	// LastKnown returns the worker's freshest heartbeat location, or
	// (nil, zero, nil) when no live presence exists.
	LastKnown(ctx context.Context, workerID string) (*domain.GeoPoint, time.Time, error)
}

// Notifier hands notification requests to the delivery subsystem. Dispatch
// is at-least-once; per-channel failures come back in the result and never
// abort the state change that produced the notification.
type Notifier interface {
	Dispatch(ctx context.Context, n *domain.Notification) (*domain.DispatchResult, error)
}

// MessageSource defines how inbound field messages reach the core.
type MessageSource interface {
	ConsumeMessages(ctx context.Context, handler func(msg *domain.InboundMessage) error) error
}

// AuditLog appends lifecycle events to the task trail.
type AuditLog interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}
