package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lifecycle owns every task status change. Both the inbound-message path and
// the privileged paths (dashboard API, escalation sweep) route through
// Apply, so the legal-edge table is enforced in exactly one place.
type Lifecycle struct {
	tasks      port.TaskRepository
	workers    port.WorkerDirectory
	presence   port.PresenceStore
	notifier   port.Notifier
	audit      port.AuditLog
	classifier Classifier
	log        *zap.Logger
	clock      func() time.Time
}

func NewLifecycle(
	tasks port.TaskRepository,
	workers port.WorkerDirectory,
	presence port.PresenceStore,
	notifier port.Notifier,
	audit port.AuditLog,
	classifier Classifier,
	log *zap.Logger,
) *Lifecycle {
	return &Lifecycle{
		tasks:      tasks,
		workers:    workers,
		presence:   presence,
		notifier:   notifier,
		audit:      audit,
		classifier: classifier,
		log:        log,
		clock:      time.Now,
	}
}

// HandleMessage classifies one inbound field message and drives the task it
// refers to. Routine failures (unknown sender, stray task ref, illegal
// transition, unauthorized sender) are logged and swallowed: chat traffic
// is untrusted and these are everyday cases, not errors.
func (l *Lifecycle) HandleMessage(ctx context.Context, msg *domain.InboundMessage) error {
	intent := l.classifier.Classify(msg)

	worker, err := l.workers.GetByPhone(ctx, msg.SenderAddress)
	if err != nil {
		if errors.Is(err, domain.ErrWorkerNotFound) {
			l.log.Info("Message from unknown sender ignored",
				zap.String("sender", msg.SenderAddress),
				zap.String("action", string(intent.Action)))
			return nil
		}
		return fmt.Errorf("lookup sender: %w", err)
	}

	if intent.Action == domain.ActionLocationUpdate {
		if intent.Location == nil {
			return nil
		}
		if err := l.presence.RecordPresence(ctx, worker.ID, *intent.Location, l.clock()); err != nil {
			l.log.Warn("Failed to record worker location",
				zap.String("worker_id", worker.ID), zap.Error(err))
		}
		return nil
	}

	task, err := l.resolveTask(ctx, intent, worker.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			l.log.Info("Message references no known task",
				zap.String("worker_id", worker.ID),
				zap.String("task_ref", intent.TaskRef))
			return nil
		}
		return fmt.Errorf("resolve task: %w", err)
	}

	if task.AssigneeID != worker.ID {
		l.log.Warn("Message sender is not the task assignee, ignoring",
			zap.String("task_id", task.ID),
			zap.String("sender_worker_id", worker.ID),
			zap.String("assignee_id", task.AssigneeID))
		l.appendAudit(ctx, task, worker.ID, "unauthorized_message", task.Status, task.Status,
			truncateDetail(intent.Description))
		return nil
	}

	// Any authorized message touching a SENT task doubles as a read receipt.
	if task.Status == domain.TaskStatusSent {
		if err := l.Apply(ctx, task, domain.TaskStatusRead, worker.ID, "read", ""); err != nil {
			if errors.Is(err, domain.ErrStaleTask) {
				l.log.Warn("Task changed concurrently, dropping read receipt",
					zap.String("task_id", task.ID))
				return nil
			}
			return err
		}
	}

	target, drives := intent.Action.TargetStatus()
	if !drives {
		l.recordPassiveEvent(ctx, task, worker.ID, intent)
		return nil
	}

	action := strings.ToLower(string(intent.Action))
	err = l.Apply(ctx, task, target, worker.ID, action, truncateDetail(intent.Description))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrIllegalTransition):
		l.log.Info("Message-driven transition not legal, ignoring",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.String("action", string(intent.Action)))
		return nil
	case errors.Is(err, domain.ErrStaleTask):
		l.log.Warn("Task changed concurrently, dropping message transition",
			zap.String("task_id", task.ID),
			zap.String("action", string(intent.Action)))
		return nil
	}
	return err
}

// Transition is the privileged path used by the dashboard API and manual
// tooling. It enforces the legal-edge table but skips the assignee guard.
func (l *Lifecycle) Transition(ctx context.Context, taskID string, to domain.TaskStatus, actorID, reason string) (*domain.Task, error) {
	task, err := l.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := l.Apply(ctx, task, to, actorID, "status_change", reason); err != nil {
		return nil, err
	}
	return task, nil
}

// Apply validates and executes one transition: legal-edge check, phase
// timestamps, guarded store write, audit entry, creator notification.
// Optional mutators run after the phase stamps and before the write, so
// callers (assignment, escalation) can fold their own field changes into
// the same conditional update.
func (l *Lifecycle) Apply(ctx context.Context, task *domain.Task, to domain.TaskStatus, actorID, action, detail string, mutate ...func(*domain.Task)) error {
	from := task.Status
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}

	now := l.clock()
	task.Status = to
	task.UpdatedAt = now
	stampPhase(task, to, now)
	for _, m := range mutate {
		m(task)
	}

	if err := l.tasks.UpdateGuarded(ctx, task, from); err != nil {
		return err
	}

	l.log.Info("Task transitioned",
		zap.String("task_id", task.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actorID))

	l.appendAudit(ctx, task, actorID, action, from, to, detail)
	l.notifyCreator(ctx, task, from, to)
	return nil
}

// resolveTask prefers an explicit reference; without one the sender's most
// recently dispatched open task is assumed.
func (l *Lifecycle) resolveTask(ctx context.Context, intent domain.Intent, workerID string) (*domain.Task, error) {
	if intent.TaskRef == "" {
		return l.tasks.FindActiveByAssignee(ctx, workerID)
	}
	task, err := l.tasks.GetByID(ctx, intent.TaskRef)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, err
	}
	return l.tasks.GetByShortCode(ctx, strings.ToUpper(intent.TaskRef))
}

// recordPassiveEvent audits actions that never change status. A DELAY still
// warns the creator that the reporter is running late.
func (l *Lifecycle) recordPassiveEvent(ctx context.Context, task *domain.Task, workerID string, intent domain.Intent) {
	action := strings.ToLower(string(intent.Action))
	l.appendAudit(ctx, task, workerID, action, task.Status, task.Status, truncateDetail(intent.Description))

	if intent.Action != domain.ActionDelay {
		return
	}
	n := &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.CreatorID,
		Type:        "task_delay",
		Priority:    domain.NotifyPriorityHigh,
		Title:       "Reporter running late",
		Message:     fmt.Sprintf("%s reported a delay on %q: %s", workerID, task.Title, truncateDetail(intent.Description)),
		TaskID:      task.ID,
		Channels:    []domain.Channel{domain.ChannelDashboard, domain.ChannelPush},
	}
	l.dispatch(ctx, n)
}

func (l *Lifecycle) notifyCreator(ctx context.Context, task *domain.Task, from, to domain.TaskStatus) {
	n := &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.CreatorID,
		Type:        "task_lifecycle",
		Priority:    lifecyclePriority(task, to),
		Title:       fmt.Sprintf("Task %s", strings.ToLower(string(to))),
		Message:     fmt.Sprintf("%q moved from %s to %s", task.Title, from, to),
		TaskID:      task.ID,
		Channels:    lifecycleChannels(task, to),
	}
	l.dispatch(ctx, n)
}

// dispatch is fire-and-forget: channel failures are logged, never rolled
// back into the already-applied transition.
func (l *Lifecycle) dispatch(ctx context.Context, n *domain.Notification) {
	result, err := l.notifier.Dispatch(ctx, n)
	if err != nil {
		l.log.Error("Notification dispatch failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient", n.RecipientID),
			zap.Error(err))
		return
	}
	for channel, ok := range result.Success {
		if !ok {
			l.log.Warn("Notification channel failed",
				zap.String("notification_id", n.ID),
				zap.String("channel", string(channel)))
		}
	}
}

func (l *Lifecycle) appendAudit(ctx context.Context, task *domain.Task, actorID, action string, from, to domain.TaskStatus, detail string) {
	entry := &domain.AuditEntry{
		ID:         uuid.New().String(),
		TaskID:     task.ID,
		ActorID:    actorID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
		CreatedAt:  l.clock(),
	}
	if err := l.audit.Append(ctx, entry); err != nil {
		l.log.Warn("Failed to append audit entry",
			zap.String("task_id", task.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// stampPhase sets phase timestamps and derived durations. Each is written
// at most once; replays land on the legal-edge check before reaching here.
func stampPhase(task *domain.Task, to domain.TaskStatus, now time.Time) {
	switch to {
	case domain.TaskStatusSent:
		if task.SentAt == nil {
			task.SentAt = &now
		}
	case domain.TaskStatusAccepted:
		if task.AcceptedAt == nil {
			task.AcceptedAt = &now
		}
		if task.SentAt != nil && task.ResponseTime == nil {
			secs := int64(now.Sub(*task.SentAt).Seconds())
			task.ResponseTime = &secs
		}
	case domain.TaskStatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case domain.TaskStatusCompleted:
		if task.CompletedAt == nil {
			task.CompletedAt = &now
		}
		if task.StartedAt != nil && task.CompletionTime == nil {
			secs := int64(now.Sub(*task.StartedAt).Seconds())
			task.CompletionTime = &secs
		}
	}
}

func lifecyclePriority(task *domain.Task, to domain.TaskStatus) domain.NotificationPriority {
	switch to {
	case domain.TaskStatusOverdue:
		if task.Priority == domain.TaskPriorityUrgent || task.Priority == domain.TaskPriorityHigh {
			return domain.NotifyPriorityCritical
		}
		return domain.NotifyPriorityHigh
	case domain.TaskStatusRejected:
		return domain.NotifyPriorityHigh
	default:
		return domain.NotifyPriorityNormal
	}
}

func lifecycleChannels(task *domain.Task, to domain.TaskStatus) []domain.Channel {
	if to == domain.TaskStatusOverdue {
		return domain.EscalationChannels(task.EscalationCount, task.Priority)
	}
	return []domain.Channel{domain.ChannelDashboard, domain.ChannelPush}
}

func truncateDetail(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max]
}
