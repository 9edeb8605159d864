package models

import (
	"time"

	"github.com/google/uuid"
)

// Push notification delivery statuses
const (
	PushStatusPending = "pending"
	PushStatusSent    = "sent"
	PushStatusFailed  = "failed"
)

// PushNotification records one logical fan-out to a set of device tokens.
// Delivery is fire-and-forget relative to message persistence; the stored
// status is the only surfacing of a failed provider call.
type PushNotification struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	Tokens       []string               `json:"tokens" db:"tokens"`
	Title        string                 `json:"title" db:"title"`
	Body         string                 `json:"body" db:"body"`
	Data         map[string]interface{} `json:"data,omitempty" db:"data"`
	Status       string                 `json:"status" db:"status"`
	SentAt       *time.Time             `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage *string                `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
