package domain

import "time"

// AuditEntry records one lifecycle event for the task trail. Entries are
// append-only; message-derived events that change nothing (UNKNOWN, media,
// unauthorized senders) are still recorded.
type AuditEntry struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	ActorID    string     `json:"actor_id"` // worker or dashboard user, "scheduler" for sweep actions
	Action     string     `json:"action"`
	FromStatus TaskStatus `json:"from_status,omitempty"`
	ToStatus   TaskStatus `json:"to_status,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
