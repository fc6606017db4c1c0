package domain

type NotificationPriority string

const (
	NotifyPriorityCritical NotificationPriority = "CRITICAL"
	NotifyPriorityHigh     NotificationPriority = "HIGH"
	NotifyPriorityNormal   NotificationPriority = "NORMAL"
	NotifyPriorityLow      NotificationPriority = "LOW"
)

type Channel string

const (
	ChannelDashboard Channel = "dashboard"
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelPush      Channel = "push"
)

// Notification is a delivery request handed to the notification subsystem.
// The dispatch core decides that and how loudly to notify; delivery, retries
// and per-channel formatting happen downstream.
type Notification struct {
	ID          string               `json:"id"`
	RecipientID string               `json:"recipient_id"`
	Type        string               `json:"type"`
	Priority    NotificationPriority `json:"priority"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	TaskID      string               `json:"task_id,omitempty"`
	Channels    []Channel            `json:"channels"`
}

// EscalationChannels returns the channel fan-out for an escalation,
// widening with escalation level and task priority. Level >=2 adds email;
// URGENT priority or level >=3 adds SMS and chat.
func EscalationChannels(level int, priority TaskPriority) []Channel {
	channels := []Channel{ChannelDashboard, ChannelPush}
	if level >= 2 {
		channels = append(channels, ChannelEmail)
	}
	if level >= 3 || priority == TaskPriorityUrgent {
		channels = append(channels, ChannelSMS, ChannelWhatsApp)
	}
	return channels
}

// DispatchResult reports per-channel delivery outcome for one notification.
// Channel failures never roll back the state transition that produced the
// notification.
type DispatchResult struct {
	NotificationID string           `json:"notification_id"`
	Success        map[Channel]bool `json:"success"`
}
