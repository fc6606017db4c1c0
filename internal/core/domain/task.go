package domain

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusDraft      TaskStatus = "DRAFT"
	TaskStatusSent       TaskStatus = "SENT"
	TaskStatusRead       TaskStatus = "READ"
	TaskStatusAccepted   TaskStatus = "ACCEPTED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusRejected   TaskStatus = "REJECTED"
	TaskStatusOverdue    TaskStatus = "OVERDUE"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

type TaskPriority string

const (
	TaskPriorityUrgent TaskPriority = "URGENT"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityNormal TaskPriority = "NORMAL"
	TaskPriorityLow    TaskPriority = "LOW"
)

// legalEdges is the single source of truth for lifecycle transitions.
// Terminal states have no outgoing edges. Entry into OVERDUE is only ever
// driven by the escalation sweep, never by an inbound message.
var legalEdges = map[TaskStatus][]TaskStatus{
	TaskStatusDraft:      {TaskStatusSent, TaskStatusCancelled},
	TaskStatusSent:       {TaskStatusRead, TaskStatusOverdue, TaskStatusCancelled},
	TaskStatusRead:       {TaskStatusAccepted, TaskStatusRejected, TaskStatusOverdue, TaskStatusCancelled},
	TaskStatusAccepted:   {TaskStatusInProgress, TaskStatusOverdue, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusReview, TaskStatusCompleted, TaskStatusOverdue, TaskStatusCancelled},
	TaskStatusReview:     {TaskStatusCompleted, TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusOverdue:    {TaskStatusReview, TaskStatusCompleted, TaskStatusCancelled},
	TaskStatusCompleted:  {},
	TaskStatusRejected:   {},
	TaskStatusCancelled:  {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to TaskStatus) bool {
	for _, t := range legalEdges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing edges.
func (s TaskStatus) IsTerminal() bool {
	return len(legalEdges[s]) == 0
}

// OpenStatuses are the states that count against a worker's workload.
var OpenStatuses = []TaskStatus{TaskStatusSent, TaskStatusAccepted, TaskStatusInProgress}

// OverdueCandidateStatuses are the states the escalation sweep inspects for
// missed deadlines.
var OverdueCandidateStatuses = []TaskStatus{
	TaskStatusAccepted, TaskStatusInProgress, TaskStatusSent, TaskStatusRead,
}

// Task is the unit of field work routed to a reporter.
type Task struct {
	ID        string       `json:"id"`
	ShortCode string       `json:"short_code"` // 8-char code embedded in chat messages (#XXXXXXXX)
	Title     string       `json:"title"`
	Type      string       `json:"type"`
	Priority  TaskPriority `json:"priority"`
	CreatorID string       `json:"creator_id"`
	Skills    []string     `json:"skills,omitempty"`
	Location  *GeoPoint    `json:"location,omitempty"`

	Status     TaskStatus `json:"status"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResponseTime   *int64 `json:"response_time,omitempty"`   // seconds, stamped once on acceptance
	CompletionTime *int64 `json:"completion_time,omitempty"` // seconds, stamped once on completion

	EscalationCount     int        `json:"escalation_count"`
	LastEscalationAt    *time.Time `json:"last_escalation_at,omitempty"`
	LastReminderSent    *time.Time `json:"last_reminder_sent,omitempty"`
	DeadlineWarningSent *int       `json:"deadline_warning_sent,omitempty"` // last warning percent fired, descends

	QualityRating *float64 `json:"quality_rating,omitempty"` // 0-5

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShortCodeFromID derives the 8-char message reference from a task id.
func ShortCodeFromID(id string) string {
	cleaned := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(cleaned) > 8 {
		cleaned = cleaned[:8]
	}
	return cleaned
}
