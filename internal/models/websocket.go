package models

import "github.com/google/uuid"

// WebSocket / realtime event types
const (
	EventMessageNew      = "message.new"
	EventMessageSend     = "message.send"
	EventMessageRead     = "message.read"
	EventUnreadSubscribe = "unread.subscribe"
	EventUnreadUpdate    = "unread.update"
	EventPresenceUpdate  = "presence.update"
	EventError           = "error"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// MessageEvent is the row-insert notification fanned out over Redis pub/sub.
// Delivery is at-least-once; consumers dedupe by message id.
type MessageEvent struct {
	Family         ConversationFamily `json:"family"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Message        Message            `json:"message"`
}

type WSMessageSendPayload struct {
	Family         ConversationFamily `json:"family"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Content        string             `json:"content"`
	Image          *ImageAttachment   `json:"image,omitempty"`
}

type WSMessageReadPayload struct {
	Family         ConversationFamily `json:"family"`
	ConversationID uuid.UUID          `json:"conversation_id"`
}

type WSUnreadSubscribePayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
}

type WSUnreadUpdatePayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Total          int       `json:"total"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
