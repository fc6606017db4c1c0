package service

import (
	"context"
	"time"

	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"go.uber.org/zap"
)

// metricsWindow is how far back the daily pass looks when recomputing a
// worker's performance score.
const metricsWindow = 30 * 24 * time.Hour

// Metrics recomputes worker performance scores from completed-task
// aggregates once a day. The score (0-100) is the one worker field this
// core writes back to the employee directory.
type Metrics struct {
	tasks   port.TaskRepository
	workers port.WorkerDirectory
	sched   *config.Scheduler
	log     *zap.Logger
	clock   func() time.Time
}

func NewMetrics(tasks port.TaskRepository, workers port.WorkerDirectory, sched *config.Scheduler, log *zap.Logger) *Metrics {
	return &Metrics{
		tasks:   tasks,
		workers: workers,
		sched:   sched,
		log:     log,
		clock:   time.Now,
	}
}

// StartDaily runs the pass once per day at the configured hour and timezone.
func (m *Metrics) StartDaily(ctx context.Context) {
	loc, err := time.LoadLocation(m.sched.Timezone)
	if err != nil {
		m.log.Error("Invalid metrics timezone, falling back to UTC",
			zap.String("timezone", m.sched.Timezone), zap.Error(err))
		loc = time.UTC
	}

	for {
		next := nextRun(m.clock().In(loc), m.sched.MetricsHour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log.Info("Stopping daily metrics loop")
			return
		case <-timer.C:
			if err := m.RunOnce(ctx); err != nil {
				m.log.Error("Metrics pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce recomputes every active worker's score. A failure on one worker
// is logged and the pass continues.
func (m *Metrics) RunOnce(ctx context.Context) error {
	workers, err := m.workers.ListActive(ctx)
	if err != nil {
		return err
	}

	since := m.clock().Add(-metricsWindow)
	updated := 0
	for _, worker := range workers {
		completed, err := m.tasks.ListCompletedSince(ctx, worker.ID, since)
		if err != nil {
			m.log.Error("Failed to load completed tasks",
				zap.String("worker_id", worker.ID), zap.Error(err))
			continue
		}
		if len(completed) == 0 {
			continue
		}

		score := performanceScore(completed)
		if err := m.workers.UpdatePerformanceScore(ctx, worker.ID, score); err != nil {
			m.log.Error("Failed to write performance score",
				zap.String("worker_id", worker.ID), zap.Error(err))
			continue
		}
		updated++
		m.log.Debug("Performance score updated",
			zap.String("worker_id", worker.ID),
			zap.Float64("score", score),
			zap.Int("completed_tasks", len(completed)))
	}

	m.log.Info("Metrics pass complete",
		zap.Int("workers", len(workers)),
		zap.Int("updated", updated))
	return nil
}

// performanceScore blends acceptance speed, on-time completion and quality
// ratings into 0-100. Tasks missing a component simply don't contribute to
// that component.
func performanceScore(completed []*domain.Task) float64 {
	var (
		responseSum float64
		responseN   int
		onTime      int
		deadlineN   int
		qualitySum  float64
		qualityN    int
	)
	for _, t := range completed {
		if t.ResponseTime != nil {
			responseSum += float64(*t.ResponseTime)
			responseN++
		}
		if t.Deadline != nil && t.CompletedAt != nil {
			deadlineN++
			if !t.CompletedAt.After(*t.Deadline) {
				onTime++
			}
		}
		if t.QualityRating != nil {
			qualitySum += *t.QualityRating
			qualityN++
		}
	}

	score := 50.0
	if responseN > 0 {
		avg := time.Duration(responseSum/float64(responseN)) * time.Second
		switch {
		case avg <= 10*time.Minute:
			score += 20
		case avg <= 30*time.Minute:
			score += 10
		}
	}
	if deadlineN > 0 {
		score += 20 * float64(onTime) / float64(deadlineN)
	}
	if qualityN > 0 {
		score += 10 * (qualitySum / float64(qualityN)) / 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// nextRun returns the next occurrence of hour o'clock after now.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
