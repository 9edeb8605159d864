package inbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

// Section is one of the two collapsible groupings in the conversation list.
type Section string

const (
	// SectionOrganization holds everything without a listing link: org
	// conversations and general direct threads.
	SectionOrganization Section = "organization"
	// SectionMarketplace holds direct threads linked to a listing.
	SectionMarketplace Section = "marketplace"
)

// Item tags a conversation with its family so the two sources can live in one
// ordered list. Exactly one of Direct/Org is set, matching Family.
type Item struct {
	Family models.ConversationFamily       `json:"family"`
	Direct *models.Conversation            `json:"direct,omitempty"`
	Org    *models.OrganizationConversation `json:"organization,omitempty"`
}

// ID returns the underlying conversation id
func (it Item) ID() uuid.UUID {
	if it.Family == models.FamilyDirect {
		return it.Direct.ID
	}
	return it.Org.ID
}

// LastMessageAt returns the recency timestamp used for sorting; nil means the
// conversation has no messages yet and sorts last.
func (it Item) LastMessageAt() *time.Time {
	if it.Family == models.FamilyDirect {
		return it.Direct.LastMessageAt
	}
	return it.Org.LastMessageAt
}

// Pinned reports whether the item is a system-maintained conversation that
// always renders first and never sorts by recency.
func (it Item) Pinned() bool {
	return it.Family == models.FamilyOrganization && it.Org.Pinned()
}

// Section returns the display section: listing-linked direct conversations go
// to marketplace, everything else to organization — regardless of recency.
func (it Item) Section() Section {
	if it.Family == models.FamilyDirect && it.Direct.ListingID != nil {
		return SectionMarketplace
	}
	return SectionOrganization
}

func (it Item) setPreview(text string, at time.Time) {
	if it.Family == models.FamilyDirect {
		it.Direct.LastMessage = &text
		it.Direct.LastMessageAt = &at
	} else {
		it.Org.LastMessage = &text
		it.Org.LastMessageAt = &at
	}
}
