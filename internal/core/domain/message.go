package domain

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeButton   MessageType = "button"
	MessageTypeLocation MessageType = "location"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
)

// InboundMessage is the raw event delivered by the messaging channel.
// Only Type and the matching payload field are meaningful to the classifier.
type InboundMessage struct {
	SenderAddress string          `json:"sender_address"`
	MessageID     string          `json:"message_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Type          MessageType     `json:"type"`
	Text          *TextPayload    `json:"text,omitempty"`
	Button        *ButtonPayload  `json:"button,omitempty"`
	Location      *LocationShare  `json:"location,omitempty"`
	Context       *MessageContext `json:"context,omitempty"`
}

type TextPayload struct {
	Body string `json:"body"`
}

type ButtonPayload struct {
	Payload string `json:"payload"` // "<action>_<taskID>"
}

type LocationShare struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

type MessageContext struct {
	RelatedMessageID string `json:"related_message_id,omitempty"`
}

// IsMedia reports whether the message carries a media attachment.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeDocument:
		return true
	}
	return false
}
