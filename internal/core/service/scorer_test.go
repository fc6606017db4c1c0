package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
)

func floatPtr(v float64) *float64 { return &v }

func newTestScorer(tasks *fakeTaskRepo, presence *fakePresence, at time.Time) *Scorer {
	s := NewScorer(tasks, presence, zap.NewNop())
	s.clock = func() time.Time { return at }
	return s
}

func TestScoreBreakdown(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	repo := newFakeTaskRepo()
	scorer := newTestScorer(repo, newFakePresence(), now)

	task := &domain.Task{ID: "t1", Skills: []string{"drone"}}
	worker := &domain.Worker{
		ID:               "w1",
		Status:           domain.WorkerStatusActive,
		Availability:     domain.AvailabilityAvailable,
		Skills:           []string{"drone piloting", "video"},
		PerformanceScore: floatPtr(80),
	}

	breakdown, err := scorer.Score(context.Background(), task, worker)
	require.NoError(t, err)

	assert.Equal(t, 30, breakdown.Availability)
	assert.Equal(t, 25, breakdown.Skills)
	assert.Equal(t, 16, breakdown.Performance)
	assert.Equal(t, 7, breakdown.Proximity) // task has no location
	assert.Equal(t, 10, breakdown.Workload)
	assert.Equal(t, 88, breakdown.Total)
}

func TestScoreDefaults(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	scorer := newTestScorer(newFakeTaskRepo(), newFakePresence(), now)

	// No skills declared, no performance history, no locations anywhere.
	task := &domain.Task{ID: "t1"}
	worker := &domain.Worker{
		ID:           "w1",
		Status:       domain.WorkerStatusActive,
		Availability: domain.AvailabilityBusy,
	}

	breakdown, err := scorer.Score(context.Background(), task, worker)
	require.NoError(t, err)

	assert.Equal(t, 10, breakdown.Availability)
	assert.Equal(t, 12, breakdown.Skills)
	assert.Equal(t, 10, breakdown.Performance)
	assert.Equal(t, 7, breakdown.Proximity)
	assert.Equal(t, 10, breakdown.Workload)
	assert.Equal(t, 49, breakdown.Total)
}

func TestScoreWorkloadPenalty(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	repo := newFakeTaskRepo()
	for i, status := range []domain.TaskStatus{
		domain.TaskStatusSent, domain.TaskStatusAccepted, domain.TaskStatusInProgress,
	} {
		repo.put(&domain.Task{ID: string(rune('a' + i)), Status: status, AssigneeID: "w1"})
	}
	// Completed work does not count against the load.
	repo.put(&domain.Task{ID: "done", Status: domain.TaskStatusCompleted, AssigneeID: "w1"})

	scorer := newTestScorer(repo, newFakePresence(), now)
	breakdown, err := scorer.Score(context.Background(), &domain.Task{ID: "t1"}, &domain.Worker{
		ID: "w1", Status: domain.WorkerStatusActive, Availability: domain.AvailabilityAvailable,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, breakdown.Workload)
}

func TestProximityPrefersLivePresence(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	manama := domain.GeoPoint{Lat: 26.2285, Lng: 50.5860}
	london := domain.GeoPoint{Lat: 51.5072, Lng: -0.1276}

	presence := newFakePresence()
	require.NoError(t, presence.RecordPresence(context.Background(), "w1", manama, now.Add(-5*time.Minute)))

	scorer := newTestScorer(newFakeTaskRepo(), presence, now)
	task := &domain.Task{ID: "t1", Location: &manama}
	worker := &domain.Worker{
		ID: "w1", Status: domain.WorkerStatusActive,
		Availability: domain.AvailabilityAvailable,
		Location:     &london,
	}

	breakdown, err := scorer.Score(context.Background(), task, worker)
	require.NoError(t, err)
	assert.Equal(t, 15, breakdown.Proximity, "fresh heartbeat overrides the directory location")

	// A stale heartbeat falls back to the directory snapshot.
	require.NoError(t, presence.RecordPresence(context.Background(), "w1", manama, now.Add(-20*time.Minute)))
	breakdown, err = scorer.Score(context.Background(), task, worker)
	require.NoError(t, err)
	assert.Equal(t, 0, breakdown.Proximity)
}

func TestSelectBestPicksHighestTotal(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	scorer := newTestScorer(newFakeTaskRepo(), newFakePresence(), now)

	task := &domain.Task{ID: "t1", Skills: []string{"drone"}}
	strong := &domain.Worker{
		ID: "w1", Status: domain.WorkerStatusActive,
		Availability:     domain.AvailabilityAvailable,
		Skills:           []string{"drone piloting"},
		PerformanceScore: floatPtr(80),
	}
	weak := &domain.Worker{
		ID: "w2", Status: domain.WorkerStatusActive,
		Availability:     domain.AvailabilityBusy,
		Skills:           []string{"writing"},
		PerformanceScore: floatPtr(40),
	}
	offDuty := &domain.Worker{
		ID: "w3", Status: domain.WorkerStatusActive,
		Availability: domain.AvailabilityOffDuty,
	}

	winner, breakdown, err := scorer.SelectBest(context.Background(), task, []*domain.Worker{weak, strong, offDuty})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "w1", winner.ID)
	assert.Equal(t, 88, breakdown.Total)
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	scorer := newTestScorer(newFakeTaskRepo(), newFakePresence(), now)

	task := &domain.Task{ID: "t1"}
	a := &domain.Worker{ID: "w1", Status: domain.WorkerStatusActive, Availability: domain.AvailabilityAvailable}
	b := &domain.Worker{ID: "w2", Status: domain.WorkerStatusActive, Availability: domain.AvailabilityAvailable}

	for i := 0; i < 5; i++ {
		winner, _, err := scorer.SelectBest(context.Background(), task, []*domain.Worker{a, b})
		require.NoError(t, err)
		require.NotNil(t, winner)
		assert.Equal(t, "w1", winner.ID)
	}
}

func TestSelectBestEnforcesFloor(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	repo := newFakeTaskRepo()
	for _, id := range []string{"a", "b", "c", "d"} {
		repo.put(&domain.Task{ID: id, Status: domain.TaskStatusInProgress, AssigneeID: "w1"})
	}
	scorer := newTestScorer(repo, newFakePresence(), now)

	manama := domain.GeoPoint{Lat: 26.2285, Lng: 50.5860}
	london := domain.GeoPoint{Lat: 51.5072, Lng: -0.1276}
	task := &domain.Task{ID: "t1", Skills: []string{"diving"}, Location: &manama}
	overloaded := &domain.Worker{
		ID: "w1", Status: domain.WorkerStatusActive,
		Availability:     domain.AvailabilityBusy,
		Skills:           []string{"drone piloting"},
		PerformanceScore: floatPtr(0),
		Location:         &london,
	}

	winner, breakdown, err := scorer.SelectBest(context.Background(), task, []*domain.Worker{overloaded})
	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Nil(t, breakdown)
}
