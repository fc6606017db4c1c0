// Package domain holds the dispatch core's entities, lifecycle rules and
// domain-level errors.
package domain

import "errors"

var (
	// ErrTaskNotFound is returned when a referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkerNotFound is returned when a referenced worker does not exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrIllegalTransition is returned when a requested status change is not
	// in the legal-edge table. The task is left untouched.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrWorkerIneligible is returned when a manually chosen assignee is
	// inactive or off duty.
	ErrWorkerIneligible = errors.New("worker is not eligible for assignment")

	// ErrUnauthorizedSender marks a message whose sender is not the task's
	// assignee. Routine for stray messages; logged, never surfaced hard.
	ErrUnauthorizedSender = errors.New("sender is not the task assignee")

	// ErrNoEligibleAssignee means scoring found no candidate above the
	// selection floor. An explicit condition, not a failure.
	ErrNoEligibleAssignee = errors.New("no eligible assignee")

	// ErrStaleTask means a conditional write found the task already mutated
	// by a concurrent actor. The write was not applied.
	ErrStaleTask = errors.New("task modified concurrently")
)
