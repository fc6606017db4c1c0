package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/core/domain"
)

type escalationFixture struct {
	repo     *fakeTaskRepo
	workers  *fakeWorkers
	notifier *fakeNotifier
	audit    *fakeAudit
	esc      *Escalator
	now      *time.Time
}

func newEscalationFixture(workers ...*domain.Worker) *escalationFixture {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	f := &escalationFixture{
		repo:     newFakeTaskRepo(),
		workers:  newFakeWorkers(workers...),
		notifier: &fakeNotifier{},
		audit:    &fakeAudit{},
		now:      &now,
	}
	clock := func() time.Time { return *f.now }

	presence := newFakePresence()
	log := zap.NewNop()
	lifecycle := NewLifecycle(f.repo, f.workers, presence, f.notifier, f.audit,
		NewKeywordClassifier(), log)
	lifecycle.clock = clock
	scorer := NewScorer(f.repo, presence, log)
	scorer.clock = clock

	policy := &config.Escalation{
		FirstReminderMinutes:  15,
		SecondReminderMinutes: 30,
		EscalationMinutes:     60,
		AutoReassignMinutes:   120,
		DeadlineWarningPcts:   []int{50, 25, 10},
	}
	f.esc = NewEscalator(f.repo, f.workers, f.notifier, f.audit, lifecycle, scorer, policy, log)
	f.esc.clock = clock
	return f
}

func (f *escalationFixture) putSent(id string, sentAgo time.Duration) *domain.Task {
	sentAt := f.now.Add(-sentAgo)
	task := &domain.Task{
		ID:         id,
		ShortCode:  domain.ShortCodeFromID(id),
		Title:      "Interview the race winner",
		Priority:   domain.TaskPriorityNormal,
		CreatorID:  "editor-1",
		Status:     domain.TaskStatusSent,
		AssigneeID: "w1",
		SentAt:     &sentAt,
	}
	f.repo.put(task)
	return task
}

func TestSweepFirstReminder(t *testing.T) {
	f := newEscalationFixture()
	task := f.putSent("t1", 20*time.Minute)

	require.NoError(t, f.esc.RunSweep(context.Background()))

	reminders := f.notifier.byType("task_reminder")
	require.Len(t, reminders, 1)
	assert.Equal(t, "w1", reminders[0].RecipientID)
	assert.Equal(t, domain.NotifyPriorityNormal, reminders[0].Priority)

	stored := f.repo.stored(task.ID)
	require.NotNil(t, stored.LastReminderSent)
	assert.Equal(t, f.now.UTC(), stored.LastReminderSent.UTC())

	// The next tick inside the same band stays quiet.
	*f.now = f.now.Add(5 * time.Minute)
	require.NoError(t, f.esc.RunSweep(context.Background()))
	assert.Len(t, f.notifier.byType("task_reminder"), 1)
}

func TestSweepSecondReminderIsUrgent(t *testing.T) {
	f := newEscalationFixture()
	task := f.putSent("t1", 35*time.Minute)
	last := f.now.Add(-16 * time.Minute)
	task.LastReminderSent = &last
	f.repo.put(task)

	require.NoError(t, f.esc.RunSweep(context.Background()))

	reminders := f.notifier.byType("task_reminder")
	require.Len(t, reminders, 1)
	assert.Equal(t, domain.NotifyPriorityHigh, reminders[0].Priority)
	assert.Contains(t, reminders[0].Channels, domain.ChannelSMS)
}

func TestSweepEscalatesUnaccepted(t *testing.T) {
	f := newEscalationFixture()
	task := f.putSent("t1", 65*time.Minute)
	last := f.now.Add(-35 * time.Minute)
	task.LastReminderSent = &last
	f.repo.put(task)

	require.NoError(t, f.esc.RunSweep(context.Background()))

	stored := f.repo.stored(task.ID)
	assert.Equal(t, 1, stored.EscalationCount)
	assert.Equal(t, domain.TaskStatusSent, stored.Status)
	require.NotNil(t, stored.LastEscalationAt)

	escalations := f.notifier.byType("task_escalation")
	require.Len(t, escalations, 2)
	recipients := []string{escalations[0].RecipientID, escalations[1].RecipientID}
	assert.ElementsMatch(t, []string{"editor-1", "w1"}, recipients)
	require.Len(t, f.audit.byAction("escalated"), 1)

	// Under the auto-reassign limit nothing moves.
	assert.Equal(t, "w1", stored.AssigneeID)
}

func TestSweepAutoReassignsIgnoredTask(t *testing.T) {
	f := newEscalationFixture(
		reporter("w1", "+97333000001"),
		reporter("w2", "+97333000002"),
	)
	task := f.putSent("t1", 125*time.Minute)
	last := f.now.Add(-40 * time.Minute)
	task.LastReminderSent = &last
	task.EscalationCount = 1
	f.repo.put(task)
	originalSentAt := *task.SentAt

	require.NoError(t, f.esc.RunSweep(context.Background()))

	stored := f.repo.stored(task.ID)
	assert.Equal(t, "w2", stored.AssigneeID)
	assert.Equal(t, domain.TaskStatusSent, stored.Status)
	// The dispatch timestamp is written once; rotation keeps the original.
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, originalSentAt.UTC(), stored.SentAt.UTC())

	require.Len(t, f.audit.byAction("auto_reassigned"), 1)
	assigned := f.notifier.byType("task_assigned")
	require.Len(t, assigned, 1)
	assert.Equal(t, "w2", assigned[0].RecipientID)
}

func TestOverdueSweepTransitionsAndNotifies(t *testing.T) {
	f := newEscalationFixture()
	deadline := f.now.Add(-30 * time.Minute)
	started := f.now.Add(-2 * time.Hour)
	task := &domain.Task{
		ID:         "t1",
		ShortCode:  "T1T1T1T1",
		Title:      "File the council report",
		Priority:   domain.TaskPriorityNormal,
		CreatorID:  "editor-1",
		Status:     domain.TaskStatusInProgress,
		AssigneeID: "w1",
		StartedAt:  &started,
		Deadline:   &deadline,
	}
	f.repo.put(task)

	report, err := f.esc.CheckOverdueTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.EscalatedCount)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "t1", report.Results[0].TaskID)
	assert.Equal(t, 1, report.Results[0].EscalationLevel)

	stored := f.repo.stored(task.ID)
	assert.Equal(t, domain.TaskStatusOverdue, stored.Status)
	assert.Equal(t, 1, stored.EscalationCount)

	// Creator hears through the lifecycle notification, assignee directly.
	lifecycleNotes := f.notifier.byType("task_lifecycle")
	require.Len(t, lifecycleNotes, 1)
	assert.Equal(t, "editor-1", lifecycleNotes[0].RecipientID)
	assert.Equal(t, domain.NotifyPriorityHigh, lifecycleNotes[0].Priority)
	overdueNotes := f.notifier.byType("task_overdue")
	require.Len(t, overdueNotes, 1)
	assert.Equal(t, "w1", overdueNotes[0].RecipientID)

	// A second pass finds nothing: OVERDUE is not a candidate state.
	report, err = f.esc.CheckOverdueTasks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.EscalatedCount)
}

func TestOverdueUrgentTaskIsCritical(t *testing.T) {
	f := newEscalationFixture()
	deadline := f.now.Add(-time.Minute)
	sentAt := f.now.Add(-10 * time.Minute)
	f.repo.put(&domain.Task{
		ID:         "t1",
		ShortCode:  "T1T1T1T1",
		Title:      "Breaking: refinery fire",
		Priority:   domain.TaskPriorityUrgent,
		CreatorID:  "editor-1",
		Status:     domain.TaskStatusAccepted,
		AssigneeID: "w1",
		SentAt:     &sentAt,
		Deadline:   &deadline,
	})

	_, err := f.esc.CheckOverdueTasks(context.Background())
	require.NoError(t, err)

	lifecycleNotes := f.notifier.byType("task_lifecycle")
	require.Len(t, lifecycleNotes, 1)
	assert.Equal(t, domain.NotifyPriorityCritical, lifecycleNotes[0].Priority)
	assert.Contains(t, lifecycleNotes[0].Channels, domain.ChannelSMS)
}

func TestDeadlineWarningsDescend(t *testing.T) {
	f := newEscalationFixture()
	started := *f.now
	deadline := f.now.Add(100 * time.Minute)
	f.repo.put(&domain.Task{
		ID:         "t1",
		ShortCode:  "T1T1T1T1",
		Title:      "Edit the festival feature",
		Priority:   domain.TaskPriorityNormal,
		CreatorID:  "editor-1",
		Status:     domain.TaskStatusInProgress,
		AssigneeID: "w1",
		StartedAt:  &started,
		Deadline:   &deadline,
	})
	ctx := context.Background()

	warningsAt := func(elapsed time.Duration) []*domain.Notification {
		*f.now = started.Add(elapsed)
		require.NoError(t, f.esc.RunSweep(ctx))
		return f.notifier.byType("deadline_warning")
	}

	// 48% remaining: inside the (45, 50] window.
	got := warningsAt(52 * time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NotifyPriorityNormal, got[0].Priority)
	stored := f.repo.stored("t1")
	require.NotNil(t, stored.DeadlineWarningSent)
	assert.Equal(t, 50, *stored.DeadlineWarningSent)

	// Already stamped; the next tick adds nothing.
	got = warningsAt(57 * time.Minute)
	assert.Len(t, got, 1)

	// 24% remaining fires the 25% threshold at HIGH.
	got = warningsAt(76 * time.Minute)
	require.Len(t, got, 2)
	assert.Equal(t, domain.NotifyPriorityHigh, got[1].Priority)

	// 9% remaining fires the final threshold at CRITICAL.
	got = warningsAt(91 * time.Minute)
	require.Len(t, got, 3)
	assert.Equal(t, domain.NotifyPriorityCritical, got[2].Priority)
	stored = f.repo.stored("t1")
	assert.Equal(t, 10, *stored.DeadlineWarningSent)
}

func TestDeadlineWarningWindowMissedIsDropped(t *testing.T) {
	f := newEscalationFixture()
	started := *f.now
	deadline := f.now.Add(100 * time.Minute)
	f.repo.put(&domain.Task{
		ID:         "t1",
		ShortCode:  "T1T1T1T1",
		Title:      "Edit the festival feature",
		Priority:   domain.TaskPriorityNormal,
		CreatorID:  "editor-1",
		Status:     domain.TaskStatusInProgress,
		AssigneeID: "w1",
		StartedAt:  &started,
		Deadline:   &deadline,
	})
	ctx := context.Background()

	// 12% remaining sits between the 25% and 10% windows; the sweep was
	// down while 50% and 25% passed. Nothing fires retroactively.
	*f.now = started.Add(88 * time.Minute)
	require.NoError(t, f.esc.RunSweep(ctx))
	assert.Empty(t, f.notifier.byType("deadline_warning"))

	// The 10% window still fires on its own turn.
	*f.now = started.Add(91 * time.Minute)
	require.NoError(t, f.esc.RunSweep(ctx))
	assert.Len(t, f.notifier.byType("deadline_warning"), 1)
}

func TestReminderStampIsCompareAndSwap(t *testing.T) {
	f := newEscalationFixture()
	task := f.putSent("t1", 20*time.Minute)

	// Another sweep instance stamped the cursor after our read.
	racedAt := f.now.Add(-time.Minute)
	require.NoError(t, f.repo.StampReminder(context.Background(), task.ID, nil, racedAt))

	// Our copy still sees a nil cursor; the guarded stamp must lose.
	err := f.repo.StampReminder(context.Background(), task.ID, nil, *f.now)
	require.ErrorIs(t, err, domain.ErrStaleTask)

	stored := f.repo.stored(task.ID)
	assert.Equal(t, racedAt.UTC(), stored.LastReminderSent.UTC())
}
