package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// schedulerActor is the actor id stamped on sweep-driven audit entries.
const schedulerActor = "scheduler"

// Escalator runs the periodic sweep: unaccepted-task reminders, overdue
// detection and deadline-proximity warnings. Each pass keeps its own
// idempotency cursor on the task record, so a crashed or skipped tick is
// recovered by the next one re-evaluating the same conditions.
type Escalator struct {
	tasks     port.TaskRepository
	workers   port.WorkerDirectory
	notifier  port.Notifier
	audit     port.AuditLog
	lifecycle *Lifecycle
	scorer    *Scorer
	policy    *config.Escalation
	log       *zap.Logger
	clock     func() time.Time
}

// OverdueReport is the result of one overdue pass, also returned by the
// manual dashboard trigger.
type OverdueReport struct {
	EscalatedCount int             `json:"escalated_count"`
	Results        []OverdueResult `json:"results"`
}

type OverdueResult struct {
	TaskID          string `json:"task_id"`
	EscalationLevel int    `json:"escalation_level"`
}

func NewEscalator(
	tasks port.TaskRepository,
	workers port.WorkerDirectory,
	notifier port.Notifier,
	audit port.AuditLog,
	lifecycle *Lifecycle,
	scorer *Scorer,
	policy *config.Escalation,
	log *zap.Logger,
) *Escalator {
	return &Escalator{
		tasks:     tasks,
		workers:   workers,
		notifier:  notifier,
		audit:     audit,
		lifecycle: lifecycle,
		scorer:    scorer,
		policy:    policy,
		log:       log,
		clock:     time.Now,
	}
}

// StartScheduler starts the polling loop
func (e *Escalator) StartScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Stopping escalation scheduler loop")
			return
		case <-ticker.C:
			count++
			if count%3 == 0 {
				e.log.Info("Escalation scheduler heartbeat",
					zap.Duration("interval", interval),
					zap.Int("ticks", count))
			}
			if err := e.RunSweep(ctx); err != nil {
				e.log.Error("Escalation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSweep performs the three passes. A failure on one task is logged and
// the sweep continues; only an infrastructure failure (store unreachable)
// aborts the tick, and the next tick retries.
func (e *Escalator) RunSweep(ctx context.Context) error {
	if err := e.sweepReminders(ctx); err != nil {
		return fmt.Errorf("reminder pass: %w", err)
	}
	if _, err := e.CheckOverdueTasks(ctx); err != nil {
		return fmt.Errorf("overdue pass: %w", err)
	}
	if err := e.sweepDeadlineWarnings(ctx); err != nil {
		return fmt.Errorf("deadline warning pass: %w", err)
	}
	return nil
}

// sweepReminders nudges tasks stuck at SENT through three mutually
// exclusive bands, checked in descending severity. last_reminder_sent is
// the sole dedup cursor; it is advanced with a compare-and-swap so two
// overlapping ticks send at most one reminder per band.
func (e *Escalator) sweepReminders(ctx context.Context) error {
	tasks, err := e.tasks.ListByStatus(ctx, domain.TaskStatusSent)
	if err != nil {
		return err
	}

	now := e.clock()
	first := time.Duration(e.policy.FirstReminderMinutes) * time.Minute
	second := time.Duration(e.policy.SecondReminderMinutes) * time.Minute
	escalate := time.Duration(e.policy.EscalationMinutes) * time.Minute

	for _, task := range tasks {
		if task.SentAt == nil {
			e.log.Warn("SENT task has no sent_at, skipping",
				zap.String("task_id", task.ID))
			continue
		}
		elapsed := now.Sub(*task.SentAt)
		last := task.LastReminderSent

		switch {
		case elapsed >= escalate && (last == nil || last.Before(now.Add(-second))):
			e.escalateUnaccepted(ctx, task, now, elapsed)
		case elapsed >= second && (last == nil || last.Before(now.Add(-first))):
			e.sendReminder(ctx, task, now, true)
		case elapsed >= first && last == nil:
			e.sendReminder(ctx, task, now, false)
		}
	}
	return nil
}

func (e *Escalator) sendReminder(ctx context.Context, task *domain.Task, now time.Time, urgent bool) {
	if err := e.tasks.StampReminder(ctx, task.ID, task.LastReminderSent, now); err != nil {
		if errors.Is(err, domain.ErrStaleTask) {
			return // another actor moved the cursor or the status
		}
		e.log.Error("Failed to stamp reminder", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	priority := domain.NotifyPriorityNormal
	title := "Task waiting for you"
	channels := []domain.Channel{domain.ChannelWhatsApp, domain.ChannelPush}
	if urgent {
		priority = domain.NotifyPriorityHigh
		title = "Task still unaccepted"
		channels = append(channels, domain.ChannelSMS)
	}

	e.dispatch(ctx, &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.AssigneeID,
		Type:        "task_reminder",
		Priority:    priority,
		Title:       title,
		Message:     fmt.Sprintf("Please respond to %q (#%s)", task.Title, task.ShortCode),
		TaskID:      task.ID,
		Channels:    channels,
	})
}

// escalateUnaccepted bumps the escalation level on a task nobody accepted,
// alerts creator and assignee, and past the auto-reassign limit rotates the
// task to the next best candidate.
func (e *Escalator) escalateUnaccepted(ctx context.Context, task *domain.Task, now time.Time, elapsed time.Duration) {
	task.EscalationCount++
	task.LastEscalationAt = &now
	task.LastReminderSent = &now
	task.UpdatedAt = now
	if err := e.tasks.UpdateGuarded(ctx, task, domain.TaskStatusSent); err != nil {
		if errors.Is(err, domain.ErrStaleTask) {
			return
		}
		e.log.Error("Failed to record escalation", zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	e.log.Warn("Unaccepted task escalated",
		zap.String("task_id", task.ID),
		zap.Int("level", task.EscalationCount),
		zap.Duration("unaccepted_for", elapsed))

	e.appendAudit(ctx, task.ID, "escalated",
		fmt.Sprintf("unaccepted for %s, level %d", elapsed.Round(time.Minute), task.EscalationCount))

	channels := domain.EscalationChannels(task.EscalationCount, task.Priority)
	e.dispatch(ctx, &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.CreatorID,
		Type:        "task_escalation",
		Priority:    escalationPriority(task),
		Title:       fmt.Sprintf("Task unaccepted (level %d)", task.EscalationCount),
		Message:     fmt.Sprintf("%q has been waiting %s without a response from %s", task.Title, elapsed.Round(time.Minute), task.AssigneeID),
		TaskID:      task.ID,
		Channels:    channels,
	})
	e.dispatch(ctx, &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.AssigneeID,
		Type:        "task_escalation",
		Priority:    domain.NotifyPriorityCritical,
		Title:       "Task escalated",
		Message:     fmt.Sprintf("%q (#%s) is escalated, respond now or it will be reassigned", task.Title, task.ShortCode),
		TaskID:      task.ID,
		Channels:    channels,
	})

	if elapsed >= time.Duration(e.policy.AutoReassignMinutes)*time.Minute {
		e.autoReassign(ctx, task, now)
	}
}

// autoReassign rotates an ignored task to the best other candidate. It
// keeps rotating at escalation cadence while the task stays unaccepted.
func (e *Escalator) autoReassign(ctx context.Context, task *domain.Task, now time.Time) {
	candidates, err := e.workers.ListCandidates(ctx)
	if err != nil {
		e.log.Error("Failed to list reassignment candidates", zap.Error(err))
		return
	}
	others := candidates[:0:0]
	for _, w := range candidates {
		if w.ID != task.AssigneeID {
			others = append(others, w)
		}
	}

	replacement, breakdown, err := e.scorer.SelectBest(ctx, task, others)
	if err != nil {
		e.log.Error("Reassignment scoring failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if replacement == nil {
		e.log.Warn("No replacement candidate for ignored task", zap.String("task_id", task.ID))
		return
	}

	previous := task.AssigneeID
	task.AssigneeID = replacement.ID
	task.UpdatedAt = now
	if err := e.tasks.UpdateGuarded(ctx, task, domain.TaskStatusSent); err != nil {
		if !errors.Is(err, domain.ErrStaleTask) {
			e.log.Error("Failed to reassign task", zap.String("task_id", task.ID), zap.Error(err))
		}
		return
	}

	e.log.Info("Task auto-reassigned",
		zap.String("task_id", task.ID),
		zap.String("from_worker", previous),
		zap.String("to_worker", replacement.ID),
		zap.Int("score", breakdown.Total))
	e.appendAudit(ctx, task.ID, "auto_reassigned",
		fmt.Sprintf("from %s to %s, score %d", previous, replacement.ID, breakdown.Total))

	e.dispatch(ctx, &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: replacement.ID,
		Type:        "task_assigned",
		Priority:    domain.NotifyPriorityHigh,
		Title:       "New assignment",
		Message:     fmt.Sprintf("You have been assigned %q (#%s)", task.Title, task.ShortCode),
		TaskID:      task.ID,
		Channels:    []domain.Channel{domain.ChannelWhatsApp, domain.ChannelPush, domain.ChannelDashboard},
	})
}

// CheckOverdueTasks transitions past-deadline tasks to OVERDUE through the
// shared state machine. Exposed for the manual dashboard trigger as well as
// the sweep.
func (e *Escalator) CheckOverdueTasks(ctx context.Context) (*OverdueReport, error) {
	now := e.clock()
	tasks, err := e.tasks.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &OverdueReport{Results: []OverdueResult{}}
	for _, task := range tasks {
		if err := e.markOverdue(ctx, task, now); err != nil {
			e.log.Error("Failed to mark task overdue",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		report.EscalatedCount++
		report.Results = append(report.Results, OverdueResult{
			TaskID:          task.ID,
			EscalationLevel: task.EscalationCount,
		})
	}
	if report.EscalatedCount > 0 {
		e.log.Info("Overdue pass complete", zap.Int("escalated", report.EscalatedCount))
	}
	return report, nil
}

func (e *Escalator) markOverdue(ctx context.Context, task *domain.Task, now time.Time) error {
	detail := ""
	if task.Deadline != nil {
		detail = fmt.Sprintf("deadline %s missed by %s",
			task.Deadline.Format(time.RFC3339), now.Sub(*task.Deadline).Round(time.Minute))
	}

	// Apply notifies the creator with the escalation channel fan-out; the
	// assignee gets a direct nudge on top.
	err := e.lifecycle.Apply(ctx, task, domain.TaskStatusOverdue, schedulerActor, "overdue", detail,
		func(t *domain.Task) {
			t.EscalationCount++
			t.LastEscalationAt = &now
		})
	if err != nil {
		return err
	}

	e.dispatch(ctx, &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: task.AssigneeID,
		Type:        "task_overdue",
		Priority:    escalationPriority(task),
		Title:       "Task overdue",
		Message:     fmt.Sprintf("%q (#%s) has passed its deadline", task.Title, task.ShortCode),
		TaskID:      task.ID,
		Channels:    domain.EscalationChannels(task.EscalationCount, task.Priority),
	})
	return nil
}

// sweepDeadlineWarnings emits at most one warning per threshold per task,
// in strictly descending threshold order. The stamp is CAS-guarded: it only
// ever descends, so a rerun or overlapping tick cannot re-fire a threshold.
// A threshold whose window passes entirely between ticks is dropped, not
// fired retroactively.
func (e *Escalator) sweepDeadlineWarnings(ctx context.Context) error {
	tasks, err := e.tasks.ListByStatus(ctx, domain.TaskStatusInProgress)
	if err != nil {
		return err
	}

	now := e.clock()
	for _, task := range tasks {
		e.warnDeadline(ctx, task, now)
	}
	return nil
}

func (e *Escalator) warnDeadline(ctx context.Context, task *domain.Task, now time.Time) {
	if task.Deadline == nil {
		return
	}
	start := task.StartedAt
	if start == nil {
		start = task.AcceptedAt
	}
	if start == nil {
		return
	}
	total := task.Deadline.Sub(*start)
	if total <= 0 {
		return
	}
	remainingPct := 100 * task.Deadline.Sub(now).Seconds() / total.Seconds()

	for _, threshold := range e.policy.DeadlineWarningPcts {
		if remainingPct > float64(threshold) || remainingPct <= float64(threshold-5) {
			continue
		}
		if task.DeadlineWarningSent != nil && *task.DeadlineWarningSent <= threshold {
			return // this threshold (or a lower one) already fired
		}
		if err := e.tasks.StampDeadlineWarning(ctx, task.ID, threshold); err != nil {
			if !errors.Is(err, domain.ErrStaleTask) {
				e.log.Error("Failed to stamp deadline warning",
					zap.String("task_id", task.ID), zap.Error(err))
			}
			return
		}

		priority := domain.NotifyPriorityNormal
		if threshold <= 10 {
			priority = domain.NotifyPriorityCritical
		} else if threshold <= 25 {
			priority = domain.NotifyPriorityHigh
		}
		e.dispatch(ctx, &domain.Notification{
			ID:          uuid.New().String(),
			RecipientID: task.AssigneeID,
			Type:        "deadline_warning",
			Priority:    priority,
			Title:       fmt.Sprintf("%d%% of time remaining", threshold),
			Message:     fmt.Sprintf("%q (#%s) is due %s", task.Title, task.ShortCode, task.Deadline.Format(time.RFC3339)),
			TaskID:      task.ID,
			Channels:    []domain.Channel{domain.ChannelWhatsApp, domain.ChannelPush},
		})
		e.appendAudit(ctx, task.ID, "deadline_warning",
			fmt.Sprintf("%d%% threshold fired at %.1f%% remaining", threshold, remainingPct))
		return
	}
}

func (e *Escalator) dispatch(ctx context.Context, n *domain.Notification) {
	result, err := e.notifier.Dispatch(ctx, n)
	if err != nil {
		e.log.Error("Notification dispatch failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient", n.RecipientID),
			zap.Error(err))
		return
	}
	for channel, ok := range result.Success {
		if !ok {
			e.log.Warn("Notification channel failed",
				zap.String("notification_id", n.ID),
				zap.String("channel", string(channel)))
		}
	}
}

func (e *Escalator) appendAudit(ctx context.Context, taskID, action, detail string) {
	entry := &domain.AuditEntry{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		ActorID:   schedulerActor,
		Action:    action,
		Detail:    detail,
		CreatedAt: e.clock(),
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		e.log.Warn("Failed to append audit entry",
			zap.String("task_id", taskID), zap.Error(err))
	}
}

func escalationPriority(task *domain.Task) domain.NotificationPriority {
	if task.Priority == domain.TaskPriorityUrgent || task.EscalationCount >= 3 {
		return domain.NotifyPriorityCritical
	}
	return domain.NotifyPriorityHigh
}
