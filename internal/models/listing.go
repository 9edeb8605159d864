package models

import (
	"github.com/google/uuid"
)

// ListingSummary is the marketplace slice shown on listing-linked conversations.
// The resolved thumbnail URL is filled in at read time, never stored.
type ListingSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ImageBucket  *string   `json:"-"`
	ImagePath    *string   `json:"-"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}
