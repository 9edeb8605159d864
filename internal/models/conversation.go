package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationFamily distinguishes the two parallel conversation tables.
type ConversationFamily string

const (
	FamilyDirect       ConversationFamily = "direct"
	FamilyOrganization ConversationFamily = "organization"
)

// Conversation is a 1:1 thread between two users, optionally scoped to a
// marketplace listing. The participant pair is stored normalized
// (participant1_id < participant2_id) so the unordered-pair uniqueness
// constraint holds regardless of who started the thread.
type Conversation struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Participant1ID uuid.UUID  `json:"participant1_id" db:"participant1_id"`
	Participant2ID uuid.UUID  `json:"participant2_id" db:"participant2_id"`
	ListingID      *uuid.UUID `json:"listing_id,omitempty" db:"listing_id"`
	LastMessage    *string    `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`

	Counterpart *UserSummary    `json:"counterpart,omitempty"`
	Listing     *ListingSummary `json:"listing,omitempty"`
}

// Organization conversation types
const (
	OrgConversationAllMembers = "all_members"
	OrgConversationBoardAdmin = "board_admin"
	OrgConversationGroup      = "group"
)

// OrganizationConversation is a group thread scoped to one organization.
// all_members and board_admin are system-maintained pinned singletons;
// group threads are user-created with an explicit member list.
type OrganizationConversation struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrganizationID uuid.UUID  `json:"organization_id" db:"organization_id"`
	Type           string     `json:"type" db:"type"`
	Name           string     `json:"name" db:"name"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	LastMessage    *string    `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Pinned reports whether this is one of the system-maintained conversations
// that always render first and never sort by recency.
func (c *OrganizationConversation) Pinned() bool {
	return c.Type == OrgConversationAllMembers || c.Type == OrgConversationBoardAdmin
}

type CreateDirectConversationRequest struct {
	OtherUserID uuid.UUID  `json:"other_user_id" binding:"required"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
}

type CreateGroupRequest struct {
	Name    string      `json:"name" binding:"required"`
	Members []uuid.UUID `json:"members"`
}

type RenameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddMembersRequest struct {
	Members []uuid.UUID `json:"members" binding:"required,min=1"`
}
