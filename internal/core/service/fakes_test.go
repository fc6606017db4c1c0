package service

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// In-memory port implementations with the same conditional-write semantics
// as the Postgres adapter, so the services' CAS paths are exercised for real.

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*domain.Task{}}
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	return &c
}

func (r *fakeTaskRepo) put(t *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = copyTask(t)
}

func (r *fakeTaskRepo) stored(id string) *domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

func (r *fakeTaskRepo) Create(_ context.Context, t *domain.Task) error {
	r.put(t)
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (r *fakeTaskRepo) GetByShortCode(_ context.Context, code string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ShortCode == code {
			return copyTask(t), nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (r *fakeTaskRepo) ListByStatus(_ context.Context, statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, copyTask(t))
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) ListOverdue(_ context.Context, now time.Time) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		if t.Deadline == nil || !t.Deadline.Before(now) {
			continue
		}
		for _, s := range domain.OverdueCandidateStatuses {
			if t.Status == s {
				out = append(out, copyTask(t))
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) FindActiveByAssignee(_ context.Context, workerID string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Task
	for _, t := range r.tasks {
		if t.AssigneeID != workerID {
			continue
		}
		open := false
		for _, s := range domain.OpenStatuses {
			if t.Status == s {
				open = true
				break
			}
		}
		if t.Status == domain.TaskStatusRead || t.Status == domain.TaskStatusOverdue {
			open = true
		}
		if !open {
			continue
		}
		if best == nil || (t.SentAt != nil && best.SentAt != nil && t.SentAt.After(*best.SentAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(best), nil
}

func (r *fakeTaskRepo) CountOpen(_ context.Context, workerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.tasks {
		if t.AssigneeID != workerID {
			continue
		}
		for _, s := range domain.OpenStatuses {
			if t.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *fakeTaskRepo) ListCompletedSince(_ context.Context, workerID string, since time.Time) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		if t.AssigneeID == workerID && t.Status == domain.TaskStatusCompleted &&
			t.CompletedAt != nil && t.CompletedAt.After(since) {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) UpdateGuarded(_ context.Context, task *domain.Task, expected domain.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[task.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if stored.Status != expected {
		return domain.ErrStaleTask
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *fakeTaskRepo) StampReminder(_ context.Context, taskID string, observed *time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	switch {
	case stored.LastReminderSent == nil && observed == nil:
	case stored.LastReminderSent != nil && observed != nil && stored.LastReminderSent.Equal(*observed):
	default:
		return domain.ErrStaleTask
	}
	stored.LastReminderSent = &now
	return nil
}

func (r *fakeTaskRepo) StampDeadlineWarning(_ context.Context, taskID string, threshold int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if stored.DeadlineWarningSent != nil && *stored.DeadlineWarningSent <= threshold {
		return domain.ErrStaleTask
	}
	th := threshold
	stored.DeadlineWarningSent = &th
	return nil
}

type fakeWorkers struct {
	mu      sync.Mutex
	workers []*domain.Worker
	scores  map[string]float64
}

func newFakeWorkers(workers ...*domain.Worker) *fakeWorkers {
	return &fakeWorkers{workers: workers, scores: map[string]float64{}}
}

func (d *fakeWorkers) GetByID(_ context.Context, id string) (*domain.Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.workers {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, domain.ErrWorkerNotFound
}

func (d *fakeWorkers) GetByPhone(_ context.Context, phone string) (*domain.Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.workers {
		if w.Phone == phone {
			return w, nil
		}
	}
	return nil, domain.ErrWorkerNotFound
}

func (d *fakeWorkers) ListCandidates(_ context.Context) ([]*domain.Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Worker
	for _, w := range d.workers {
		if w.Eligible() {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *fakeWorkers) ListActive(_ context.Context) ([]*domain.Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Worker
	for _, w := range d.workers {
		if w.Status == domain.WorkerStatusActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *fakeWorkers) UpdatePerformanceScore(_ context.Context, id string, score float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scores[id] = score
	return nil
}

type presenceRecord struct {
	loc domain.GeoPoint
	at  time.Time
}

type fakePresence struct {
	mu      sync.Mutex
	records map[string]presenceRecord
}

func newFakePresence() *fakePresence {
	return &fakePresence{records: map[string]presenceRecord{}}
}

func (p *fakePresence) RecordPresence(_ context.Context, workerID string, loc domain.GeoPoint, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[workerID] = presenceRecord{loc: loc, at: at}
	return nil
}

func (p *fakePresence) LastKnown(_ context.Context, workerID string) (*domain.GeoPoint, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[workerID]
	if !ok {
		return nil, time.Time{}, nil
	}
	loc := rec.loc
	return &loc, rec.at, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*domain.Notification
}

func (n *fakeNotifier) Dispatch(_ context.Context, notification *domain.Notification) (*domain.DispatchResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	success := map[domain.Channel]bool{}
	for _, ch := range notification.Channels {
		success[ch] = true
	}
	return &domain.DispatchResult{NotificationID: notification.ID, Success: success}, nil
}

func (n *fakeNotifier) byType(notifType string) []*domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*domain.Notification
	for _, sent := range n.sent {
		if sent.Type == notifType {
			out = append(out, sent)
		}
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (a *fakeAudit) Append(_ context.Context, entry *domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) byAction(action string) []*domain.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.AuditEntry
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
