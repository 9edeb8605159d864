package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

// Display names of the system-maintained pinned conversations
const (
	allMembersName = "All members"
	boardAdminName = "Board & admins"
)

// OrgConversationRepository is the store for the organization conversation family.
type OrgConversationRepository struct {
	db *database.DB
}

func NewOrgConversationRepository(db *database.DB) *OrgConversationRepository {
	return &OrgConversationRepository{db: db}
}

// EnsurePinned lazily creates the all_members and board_admin singletons for
// an organization. Idempotent; the partial unique index on (organization_id,
// type) guarantees exactly one of each regardless of which caller gets here
// first.
func (r *OrgConversationRepository) EnsurePinned(orgID uuid.UUID) error {
	query := `
		INSERT INTO organization_conversations (id, organization_id, type, name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (organization_id, type) WHERE type <> 'group' DO NOTHING
	`

	for _, pinned := range []struct {
		convType string
		name     string
	}{
		{models.OrgConversationAllMembers, allMembersName},
		{models.OrgConversationBoardAdmin, boardAdminName},
	} {
		if _, err := r.db.Exec(query, uuid.New(), orgID, pinned.convType, pinned.name); err != nil {
			return fmt.Errorf("failed to ensure pinned conversation %s: %w", pinned.convType, err)
		}
	}

	return nil
}

// ListPinned returns the two system conversations in stable system order
// (all_members before board_admin), creating them if absent.
func (r *OrgConversationRepository) ListPinned(orgID uuid.UUID) ([]models.OrganizationConversation, error) {
	if err := r.EnsurePinned(orgID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, type, name, created_by, last_message, last_message_at, created_at
		FROM organization_conversations
		WHERE organization_id = $1 AND type <> 'group'
		ORDER BY CASE type WHEN 'all_members' THEN 0 ELSE 1 END
	`

	return r.scanConversations(r.db.Query(query, orgID))
}

// ListGroupsForUser returns the group conversations the user belongs to,
// excluding the pinned singletons.
func (r *OrgConversationRepository) ListGroupsForUser(orgID, userID uuid.UUID) ([]models.OrganizationConversation, error) {
	query := `
		SELECT c.id, c.organization_id, c.type, c.name, c.created_by, c.last_message, c.last_message_at, c.created_at
		FROM organization_conversations c
		INNER JOIN organization_conversation_members m ON c.id = m.conversation_id
		WHERE c.organization_id = $1 AND c.type = 'group' AND m.user_id = $2
		ORDER BY c.last_message_at DESC NULLS LAST
	`

	return r.scanConversations(r.db.Query(query, orgID, userID))
}

// GetByID retrieves an organization conversation by ID
func (r *OrgConversationRepository) GetByID(id uuid.UUID) (*models.OrganizationConversation, error) {
	query := `
		SELECT id, organization_id, type, name, created_by, last_message, last_message_at, created_at
		FROM organization_conversations
		WHERE id = $1
	`

	convs, err := r.scanConversations(r.db.Query(query, id))
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, fmt.Errorf("%w: organization conversation", models.ErrNotFound)
	}

	return &convs[0], nil
}

// CreateGroup creates a user-owned group conversation with an explicit member
// list. The creator is always a member.
func (r *OrgConversationRepository) CreateGroup(orgID, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*models.OrganizationConversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name required", models.ErrValidation)
	}

	conv := &models.OrganizationConversation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Type:           models.OrgConversationGroup,
		Name:           name,
		CreatedBy:      &creatorID,
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`INSERT INTO organization_conversations (id, organization_id, type, name, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING created_at`,
		conv.ID, conv.OrganizationID, conv.Type, conv.Name, creatorID,
	).Scan(&conv.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: group name already taken", models.ErrValidation)
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	seen := map[uuid.UUID]bool{creatorID: true}
	members := []uuid.UUID{creatorID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}

	for _, memberID := range members {
		_, err = tx.Exec(
			`INSERT INTO organization_conversation_members (id, conversation_id, user_id, joined_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			uuid.New(), conv.ID, memberID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return conv, nil
}

// Rename renames a group conversation. Only the creator may rename, and the
// pinned system conversations are never renameable. Enforced here rather than
// in any UI since this is a trust boundary.
func (r *OrgConversationRepository) Rename(conversationID, userID uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: group name required", models.ErrValidation)
	}

	conv, err := r.GetByID(conversationID)
	if err != nil {
		return err
	}
	if conv.Type != models.OrgConversationGroup || conv.CreatedBy == nil || *conv.CreatedBy != userID {
		return fmt.Errorf("%w: only the group creator can rename", models.ErrPermission)
	}

	_, err = r.db.Exec(
		`UPDATE organization_conversations SET name = $1 WHERE id = $2 AND type = 'group'`,
		name, conversationID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("%w: group name already taken", models.ErrValidation)
		}
		return fmt.Errorf("failed to rename group: %w", err)
	}

	return nil
}

// AddMembers adds members to a group conversation. Any current member may add.
func (r *OrgConversationRepository) AddMembers(conversationID, requesterID uuid.UUID, memberIDs []uuid.UUID) error {
	conv, err := r.GetByID(conversationID)
	if err != nil {
		return err
	}
	if conv.Type != models.OrgConversationGroup {
		return fmt.Errorf("%w: members of system conversations are managed automatically", models.ErrValidation)
	}

	isMember, err := r.isGroupMember(conversationID, requesterID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member", models.ErrPermission)
	}

	for _, memberID := range memberIDs {
		_, err := r.db.Exec(
			`INSERT INTO organization_conversation_members (id, conversation_id, user_id, joined_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			uuid.New(), conversationID, memberID,
		)
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
	}

	return nil
}

// RemoveMember removes a member from a group conversation. Removing someone
// else is reserved for the creator; a member leaving removes only themselves.
// When the last member leaves, the group is deleted so no empty group exists.
func (r *OrgConversationRepository) RemoveMember(conversationID, requesterID, targetID uuid.UUID) error {
	conv, err := r.GetByID(conversationID)
	if err != nil {
		return err
	}
	if conv.Type != models.OrgConversationGroup {
		return fmt.Errorf("%w: cannot leave a system conversation", models.ErrValidation)
	}

	if requesterID != targetID {
		if conv.CreatedBy == nil || *conv.CreatedBy != requesterID {
			return fmt.Errorf("%w: only the group creator can remove members", models.ErrPermission)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`DELETE FROM organization_conversation_members WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, targetID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: member", models.ErrNotFound)
	}

	var remaining int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM organization_conversation_members WHERE conversation_id = $1`,
		conversationID,
	).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}

	if remaining == 0 {
		if _, err := tx.Exec(`DELETE FROM organization_conversations WHERE id = $1`, conversationID); err != nil {
			return fmt.Errorf("failed to delete empty group: %w", err)
		}
	}

	return tx.Commit()
}

// CanAccess reports whether a user may read/send in a conversation. Group
// access follows the explicit member list; pinned access follows the user's
// organization role.
func (r *OrgConversationRepository) CanAccess(conversationID, userID uuid.UUID) (bool, error) {
	conv, err := r.GetByID(conversationID)
	if err != nil {
		return false, err
	}

	switch conv.Type {
	case models.OrgConversationGroup:
		return r.isGroupMember(conversationID, userID)
	case models.OrgConversationAllMembers:
		return r.hasOrgRole(conv.OrganizationID, userID, nil)
	case models.OrgConversationBoardAdmin:
		return r.hasOrgRole(conv.OrganizationID, userID, []string{models.RoleBoard, models.RoleAdmin})
	default:
		return false, nil
	}
}

// MemberUserIDs resolves the current recipient set of a conversation: the
// explicit list for groups, the organization roster for pinned types.
func (r *OrgConversationRepository) MemberUserIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := r.GetByID(conversationID)
	if err != nil {
		return nil, err
	}

	var query string
	switch conv.Type {
	case models.OrgConversationGroup:
		query = `SELECT user_id FROM organization_conversation_members WHERE conversation_id = $1`
		return r.scanUserIDs(r.db.Query(query, conversationID))
	case models.OrgConversationAllMembers:
		query = `SELECT user_id FROM organization_members WHERE organization_id = $1`
		return r.scanUserIDs(r.db.Query(query, conv.OrganizationID))
	case models.OrgConversationBoardAdmin:
		query = `SELECT user_id FROM organization_members WHERE organization_id = $1 AND role IN ('board', 'admin')`
		return r.scanUserIDs(r.db.Query(query, conv.OrganizationID))
	default:
		return nil, fmt.Errorf("unknown conversation type: %s", conv.Type)
	}
}

// SendMessage inserts a message and updates the denormalized preview fields
// in one transaction, after the access check.
func (r *OrgConversationRepository) SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error) {
	if content == "" && image == nil {
		return nil, fmt.Errorf("%w: message content or image required", models.ErrValidation)
	}

	canAccess, err := r.CanAccess(conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !canAccess {
		return nil, fmt.Errorf("%w: not a member", models.ErrPermission)
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	if image != nil {
		msg.ImageBucket = &image.Bucket
		msg.ImagePath = &image.Path
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`INSERT INTO organization_messages (id, conversation_id, sender_id, content, image_bucket, image_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.ImageBucket, msg.ImagePath,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE organization_conversations SET last_message = $1, last_message_at = $2 WHERE id = $3`,
		msg.Preview(), msg.CreatedAt, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return msg, nil
}

// GetMessages retrieves the full message history in created_at ascending order
func (r *OrgConversationRepository) GetMessages(conversationID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.image_bucket, m.image_path, m.created_at,
		       u.id, u.display_name, u.avatar_url
		FROM organization_messages m
		INNER JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC
	`

	return scanMessages(r.db.Query(query, conversationID))
}

// CountUnread counts messages newer than the given read watermark
func (r *OrgConversationRepository) CountUnread(conversationID, userID uuid.UUID, lastReadAt *time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM organization_messages
		WHERE conversation_id = $1
		AND sender_id != $2
		AND ($3::timestamp IS NULL OR created_at > $3)
	`

	var count int
	err := r.db.QueryRow(query, conversationID, userID, lastReadAt).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}

func (r *OrgConversationRepository) isGroupMember(conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM organization_conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *OrgConversationRepository) hasOrgRole(orgID, userID uuid.UUID, roles []string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	args := []interface{}{orgID, userID}
	if len(roles) > 0 {
		query += ` AND role = ANY($3)`
		args = append(args, pq.Array(roles))
	}
	query += `)`

	var exists bool
	if err := r.db.QueryRow(query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check organization role: %w", err)
	}
	return exists, nil
}

func (r *OrgConversationRepository) scanConversations(rows *sql.Rows, err error) ([]models.OrganizationConversation, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query organization conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.OrganizationConversation{}
	for rows.Next() {
		var conv models.OrganizationConversation
		var createdBy uuid.NullUUID
		var lastMessage sql.NullString
		var lastMessageAt sql.NullTime

		err := rows.Scan(
			&conv.ID,
			&conv.OrganizationID,
			&conv.Type,
			&conv.Name,
			&createdBy,
			&lastMessage,
			&lastMessageAt,
			&conv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization conversation: %w", err)
		}

		if createdBy.Valid {
			conv.CreatedBy = &createdBy.UUID
		}
		if lastMessage.Valid {
			conv.LastMessage = &lastMessage.String
		}
		if lastMessageAt.Valid {
			conv.LastMessageAt = &lastMessageAt.Time
		}

		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

func (r *OrgConversationRepository) scanUserIDs(rows *sql.Rows, err error) ([]uuid.UUID, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query member ids: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
