package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadState marks the last point a user is considered to have seen a
// conversation. Unread counts compare message timestamps against it;
// a conversation with messages but no read state is fully unread.
type ReadState struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	UserID           uuid.UUID          `json:"user_id" db:"user_id"`
	ConversationType ConversationFamily `json:"conversation_type" db:"conversation_type"`
	ConversationID   uuid.UUID          `json:"conversation_id" db:"conversation_id"`
	LastReadAt       time.Time          `json:"last_read_at" db:"last_read_at"`
}
