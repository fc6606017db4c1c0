package domain

// Action is the classified meaning of an inbound field message.
type Action string

const (
	ActionAccept         Action = "ACCEPT"
	ActionDecline        Action = "DECLINE"
	ActionStarted        Action = "STARTED"
	ActionOnWay          Action = "ON_WAY"
	ActionArrived        Action = "ARRIVED"
	ActionDone           Action = "DONE"
	ActionDelay          Action = "DELAY"
	ActionIssue          Action = "ISSUE"
	ActionLocationUpdate Action = "LOCATION_UPDATE"
	ActionMedia          Action = "MEDIA"
	ActionUnknown        Action = "UNKNOWN"
)

// actionTargets maps an action to the lifecycle status it drives.
// Actions absent from the map never change status but are still recorded.
var actionTargets = map[Action]TaskStatus{
	ActionAccept:  TaskStatusAccepted,
	ActionDecline: TaskStatusRejected,
	ActionStarted: TaskStatusInProgress,
	ActionOnWay:   TaskStatusInProgress,
	ActionArrived: TaskStatusInProgress,
	ActionDone:    TaskStatusCompleted,
	ActionIssue:   TaskStatusReview,
}

// TargetStatus returns the status an action drives, if any.
func (a Action) TargetStatus() (TaskStatus, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// Intent is the full classifier output for one inbound message.
type Intent struct {
	Action      Action
	TaskRef     string // 8-char short code extracted from text or button payload, may be empty
	Description string // raw text carried along for DELAY/ISSUE events
	Location    *GeoPoint
}
