package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"go.uber.org/zap"
)

// presenceMaxAge is how old a Redis heartbeat may be before the scorer falls
// back to the directory snapshot location.
const presenceMaxAge = 15 * time.Minute

// Scorer ranks candidate workers for a task. Pure with respect to its
// inputs, aside from one open-task count query per candidate and the
// live-location overlay from the presence store.
type Scorer struct {
	tasks    port.TaskRepository
	presence port.PresenceStore
	log      *zap.Logger
	clock    func() time.Time
}

func NewScorer(tasks port.TaskRepository, presence port.PresenceStore, log *zap.Logger) *Scorer {
	return &Scorer{
		tasks:    tasks,
		presence: presence,
		log:      log,
		clock:    time.Now,
	}
}

// Score computes the five-component breakdown for one candidate.
func (s *Scorer) Score(ctx context.Context, task *domain.Task, worker *domain.Worker) (*domain.ScoreBreakdown, error) {
	openCount, err := s.tasks.CountOpen(ctx, worker.ID)
	if err != nil {
		return nil, err
	}

	breakdown := &domain.ScoreBreakdown{
		WorkerID:     worker.ID,
		Availability: availabilityPoints(worker.Availability),
		Skills:       skillPoints(task.Skills, worker.Skills),
		Performance:  performancePoints(worker.PerformanceScore),
		Proximity:    s.proximityPoints(ctx, task, worker),
		Workload:     workloadPoints(openCount),
	}
	breakdown.Total = breakdown.Availability + breakdown.Skills +
		breakdown.Performance + breakdown.Proximity + breakdown.Workload
	return breakdown, nil
}

// SelectBest scores every candidate and returns the highest total, or
// (nil, nil, nil) when no candidate reaches the selection floor. Ties keep
// the first candidate encountered, so selection is deterministic for a
// fixed input order.
func (s *Scorer) SelectBest(ctx context.Context, task *domain.Task, candidates []*domain.Worker) (*domain.Worker, *domain.ScoreBreakdown, error) {
	var (
		best      *domain.Worker
		bestScore *domain.ScoreBreakdown
	)

	for _, worker := range candidates {
		if !worker.Eligible() {
			continue
		}
		breakdown, err := s.Score(ctx, task, worker)
		if err != nil {
			return nil, nil, err
		}
		s.log.Debug("Scored candidate",
			zap.String("task_id", task.ID),
			zap.String("worker_id", worker.ID),
			zap.Int("total", breakdown.Total))

		if bestScore == nil || breakdown.Total > bestScore.Total {
			best = worker
			bestScore = breakdown
		}
	}

	if bestScore == nil || bestScore.Total < domain.MinSelectableScore {
		return nil, nil, nil
	}
	return best, bestScore, nil
}

func availabilityPoints(a domain.WorkerAvailability) int {
	switch a {
	case domain.AvailabilityAvailable:
		return 30
	case domain.AvailabilityBusy:
		return 10
	default:
		return 0
	}
}

func skillPoints(taskSkills, workerSkills []string) int {
	if len(taskSkills) == 0 || len(workerSkills) == 0 {
		return 12
	}
	matched := 0
	for _, ts := range taskSkills {
		needle := strings.ToLower(ts)
		for _, ws := range workerSkills {
			if strings.Contains(strings.ToLower(ws), needle) {
				matched++
				break
			}
		}
	}
	ratio := float64(matched) / float64(len(taskSkills))
	return int(math.Round(ratio * 25))
}

func performancePoints(score *float64) int {
	if score == nil {
		return 10
	}
	return int(math.Round(*score / 100 * 20))
}

func (s *Scorer) proximityPoints(ctx context.Context, task *domain.Task, worker *domain.Worker) int {
	if task.Location == nil {
		return 7
	}

	loc := worker.Location
	if s.presence != nil {
		if live, at, err := s.presence.LastKnown(ctx, worker.ID); err != nil {
			s.log.Warn("Presence lookup failed, using directory location",
				zap.String("worker_id", worker.ID), zap.Error(err))
		} else if live != nil && s.clock().Sub(at) <= presenceMaxAge {
			loc = live
		}
	}
	if loc == nil {
		return 7
	}
	return domain.ProximityPoints(domain.HaversineKm(*task.Location, *loc))
}

func workloadPoints(openTasks int) int {
	switch {
	case openTasks <= 0:
		return 10
	case openTasks == 1:
		return 8
	case openTasks == 2:
		return 5
	case openTasks == 3:
		return 2
	default:
		return 0
	}
}
