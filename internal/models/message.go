package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one immutable entry in a thread. Both conversation families use
// the same row shape; the family is carried by the surrounding context.
// Attachments are stored as (bucket, path) and resolved to a time-limited
// signed URL at read time, never as a bare URL.
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id" db:"sender_id"`
	Content        string    `json:"content" db:"content"`
	ImageBucket    *string   `json:"-" db:"image_bucket"`
	ImagePath      *string   `json:"-" db:"image_path"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	Sender *UserSummary `json:"sender,omitempty"`
}

// HasImage reports whether the message carries an attachment.
func (m *Message) HasImage() bool {
	return m.ImageBucket != nil && m.ImagePath != nil && *m.ImagePath != ""
}

// Preview returns the denormalized text stored on the parent conversation.
func (m *Message) Preview() string {
	if m.Content == "" && m.HasImage() {
		return ImagePreviewPlaceholder
	}
	return m.Content
}

// ImagePreviewPlaceholder is rendered in list previews for image-only messages.
const ImagePreviewPlaceholder = "📷 Image"

type ImageAttachment struct {
	Bucket string `json:"bucket" binding:"required"`
	Path   string `json:"path" binding:"required"`
}

type SendMessageRequest struct {
	Content string           `json:"content"`
	Image   *ImageAttachment `json:"image,omitempty"`
}
