package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Assignment puts an owner on a task, either a manually chosen worker or
// the scorer's best candidate, and dispatches it (DRAFT -> SENT).
type Assignment struct {
	tasks     port.TaskRepository
	workers   port.WorkerDirectory
	scorer    *Scorer
	lifecycle *Lifecycle
	notifier  port.Notifier
	log       *zap.Logger
	clock     func() time.Time
}

// AssignResult reports who got the task and, for scored assignments, why.
type AssignResult struct {
	AssigneeID   string                 `json:"assignee_id"`
	AssigneeName string                 `json:"assignee_name"`
	Score        *domain.ScoreBreakdown `json:"score,omitempty"`
}

func NewAssignment(
	tasks port.TaskRepository,
	workers port.WorkerDirectory,
	scorer *Scorer,
	lifecycle *Lifecycle,
	notifier port.Notifier,
	log *zap.Logger,
) *Assignment {
	return &Assignment{
		tasks:     tasks,
		workers:   workers,
		scorer:    scorer,
		lifecycle: lifecycle,
		notifier:  notifier,
		log:       log,
		clock:     time.Now,
	}
}

// Assign routes the task. An empty workerID means "pick for me": candidates
// are pre-filtered to ACTIVE workers who are AVAILABLE or BUSY, scored, and
// the best above the floor wins. No qualifying candidate is reported as
// ErrNoEligibleAssignee, an expected condition rather than a failure.
func (a *Assignment) Assign(ctx context.Context, taskID, workerID, actorID string) (*AssignResult, error) {
	task, err := a.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var (
		worker    *domain.Worker
		breakdown *domain.ScoreBreakdown
	)

	if workerID != "" {
		worker, err = a.workers.GetByID(ctx, workerID)
		if err != nil {
			return nil, err
		}
		if worker.Status != domain.WorkerStatusActive || worker.Availability == domain.AvailabilityOffDuty {
			return nil, fmt.Errorf("%w: %s is %s/%s", domain.ErrWorkerIneligible,
				worker.ID, worker.Status, worker.Availability)
		}
	} else {
		candidates, err := a.workers.ListCandidates(ctx)
		if err != nil {
			return nil, err
		}
		worker, breakdown, err = a.scorer.SelectBest(ctx, task, candidates)
		if err != nil {
			return nil, err
		}
		if worker == nil {
			a.log.Info("No candidate reached the selection floor",
				zap.String("task_id", task.ID),
				zap.Int("candidates", len(candidates)))
			return nil, domain.ErrNoEligibleAssignee
		}
	}

	detail := ""
	if breakdown != nil {
		detail = fmt.Sprintf("score=%d (avail=%d skills=%d perf=%d prox=%d load=%d)",
			breakdown.Total, breakdown.Availability, breakdown.Skills,
			breakdown.Performance, breakdown.Proximity, breakdown.Workload)
	}

	assigneeID := worker.ID
	err = a.lifecycle.Apply(ctx, task, domain.TaskStatusSent, actorID, "assigned", detail,
		func(t *domain.Task) { t.AssigneeID = assigneeID })
	if err != nil {
		return nil, err
	}

	a.notifyAssignee(ctx, task, worker)

	return &AssignResult{
		AssigneeID:   worker.ID,
		AssigneeName: worker.Name,
		Score:        breakdown,
	}, nil
}

func (a *Assignment) notifyAssignee(ctx context.Context, task *domain.Task, worker *domain.Worker) {
	n := &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: worker.ID,
		Type:        "task_assigned",
		Priority:    assignmentPriority(task.Priority),
		Title:       "New assignment",
		Message:     fmt.Sprintf("You have been assigned %q (#%s)", task.Title, task.ShortCode),
		TaskID:      task.ID,
		Channels:    []domain.Channel{domain.ChannelWhatsApp, domain.ChannelPush, domain.ChannelDashboard},
	}
	if _, err := a.notifier.Dispatch(ctx, n); err != nil {
		a.log.Error("Failed to notify assignee",
			zap.String("task_id", task.ID),
			zap.String("worker_id", worker.ID),
			zap.Error(err))
	}
}

func assignmentPriority(p domain.TaskPriority) domain.NotificationPriority {
	switch p {
	case domain.TaskPriorityUrgent:
		return domain.NotifyPriorityCritical
	case domain.TaskPriorityHigh:
		return domain.NotifyPriorityHigh
	case domain.TaskPriorityLow:
		return domain.NotifyPriorityLow
	default:
		return domain.NotifyPriorityNormal
	}
}
