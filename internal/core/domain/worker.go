package domain

import "time"

type WorkerStatus string

const (
	WorkerStatusActive   WorkerStatus = "ACTIVE"
	WorkerStatusInactive WorkerStatus = "INACTIVE"
)

type WorkerAvailability string

const (
	AvailabilityAvailable WorkerAvailability = "AVAILABLE"
	AvailabilityBusy      WorkerAvailability = "BUSY"
	AvailabilityOffDuty   WorkerAvailability = "OFF_DUTY"
)

// Worker is a field reporter snapshot read from the employee directory.
// The dispatch core never creates or deletes workers; it only writes back
// the performance score after a metrics pass.
type Worker struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Role             string             `json:"role"`
	Phone            string             `json:"phone"` // chat address used to match inbound senders
	Status           WorkerStatus       `json:"status"`
	Availability     WorkerAvailability `json:"availability"`
	Skills           []string           `json:"skills,omitempty"`
	PerformanceScore *float64           `json:"performance_score,omitempty"` // 0-100
	Location         *GeoPoint          `json:"location,omitempty"`
	LastSeen         *time.Time         `json:"last_seen,omitempty"`
}

// Eligible reports whether the worker may be scored as an assignment
// candidate. OFF_DUTY and INACTIVE workers are never candidates.
func (w *Worker) Eligible() bool {
	if w.Status != WorkerStatusActive {
		return false
	}
	return w.Availability == AvailabilityAvailable || w.Availability == AvailabilityBusy
}
