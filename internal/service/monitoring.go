package service

import (
	"context"
	"time"

	"drone_commander/internal/models"
	"drone_commander/internal/repository"
)

// MonitoringService serves the last telemetry snapshot.
type MonitoringService struct {
	stateRepo  repository.StateRepo
	staleAfter time.Duration
	now        func() time.Time
}

// NewMonitoringService reports a snapshot older than staleAfter as stale.
// A non-positive staleAfter only flags a drone that was never polled.
func NewMonitoringService(stateRepo repository.StateRepo, staleAfter time.Duration) *MonitoringService {
	return &MonitoringService{stateRepo: stateRepo, staleAfter: staleAfter, now: time.Now}
}

// GetState returns the latest persisted drone state. Before the first poll
// it returns an empty snapshot with a zero UpdatedAt.
func (s *MonitoringService) GetState(ctx context.Context) (models.DroneState, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.DroneState{}, err
	}
	if state.ID == 0 {
		state.ID = 1 // single-row table
	}
	state.UpdatedAt = toUTC(state.UpdatedAt)
	state.Stale = s.isStale(state.UpdatedAt)
	return state, nil
}

func (s *MonitoringService) isStale(updated time.Time) bool {
	if updated.IsZero() {
		return true
	}
	return s.staleAfter > 0 && s.now().Sub(updated) > s.staleAfter
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
