package repository

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

// ConversationRepository is the store for the direct (1:1) conversation family.
type ConversationRepository struct {
	db *database.DB
}

func NewConversationRepository(db *database.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// normalizePair orders two participant ids so the unordered pair maps to one row.
func normalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// GetByID retrieves a direct conversation by ID
func (r *ConversationRepository) GetByID(id uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, participant1_id, participant2_id, listing_id, last_message, last_message_at, created_at
		FROM conversations
		WHERE id = $1
	`

	conv := &models.Conversation{}
	var listingID uuid.NullUUID
	var lastMessage sql.NullString
	var lastMessageAt sql.NullTime

	err := r.db.QueryRow(query, id).Scan(
		&conv.ID,
		&conv.Participant1ID,
		&conv.Participant2ID,
		&listingID,
		&lastMessage,
		&lastMessageAt,
		&conv.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: conversation", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if listingID.Valid {
		conv.ListingID = &listingID.UUID
	}
	if lastMessage.Valid {
		conv.LastMessage = &lastMessage.String
	}
	if lastMessageAt.Valid {
		conv.LastMessageAt = &lastMessageAt.Time
	}

	return conv, nil
}

// ListForUser retrieves all direct conversations where the user is either
// participant, with the counterpart profile summary and, if listing-linked,
// the listing summary resolved in the same query.
func (r *ConversationRepository) ListForUser(userID uuid.UUID) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.participant1_id, c.participant2_id, c.listing_id,
		       c.last_message, c.last_message_at, c.created_at,
		       u.id, u.display_name, u.avatar_url,
		       l.id, l.title, l.image_bucket, l.image_path
		FROM conversations c
		INNER JOIN users u ON u.id = CASE
			WHEN c.participant1_id = $1 THEN c.participant2_id
			ELSE c.participant1_id
		END
		LEFT JOIN listings l ON l.id = c.listing_id
		WHERE c.participant1_id = $1 OR c.participant2_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		var counterpart models.UserSummary
		var listingID uuid.NullUUID
		var lastMessage sql.NullString
		var lastMessageAt sql.NullTime
		var lID uuid.NullUUID
		var lTitle, lBucket, lPath sql.NullString

		err := rows.Scan(
			&conv.ID,
			&conv.Participant1ID,
			&conv.Participant2ID,
			&listingID,
			&lastMessage,
			&lastMessageAt,
			&conv.CreatedAt,
			&counterpart.ID,
			&counterpart.DisplayName,
			&counterpart.AvatarURL,
			&lID,
			&lTitle,
			&lBucket,
			&lPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		if listingID.Valid {
			conv.ListingID = &listingID.UUID
		}
		if lastMessage.Valid {
			conv.LastMessage = &lastMessage.String
		}
		if lastMessageAt.Valid {
			conv.LastMessageAt = &lastMessageAt.Time
		}
		conv.Counterpart = &counterpart

		if lID.Valid {
			listing := &models.ListingSummary{ID: lID.UUID, Title: lTitle.String}
			if lBucket.Valid {
				listing.ImageBucket = &lBucket.String
			}
			if lPath.Valid {
				listing.ImagePath = &lPath.String
			}
			conv.Listing = listing
		}

		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// GetOrCreate returns the direct conversation for the unordered participant
// pair and listing context, creating it if absent. Listing-linked threads are
// distinct from the pair's general thread. Idempotent across participant order
// and safe under concurrent creation.
func (r *ConversationRepository) GetOrCreate(userID, otherUserID uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error) {
	if userID == otherUserID {
		return nil, models.ErrSelfConversation
	}

	p1, p2 := normalizePair(userID, otherUserID)

	existing, err := r.findByPair(p1, p2, listingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var id uuid.UUID
	insert := `
		INSERT INTO conversations (id, participant1_id, participant2_id, listing_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err = r.db.QueryRow(insert, uuid.New(), p1, p2, listingID).Scan(&id)
	if err == sql.ErrNoRows {
		// lost the race; the row exists now
		existing, err := r.findByPair(p1, p2, listingID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("conversation vanished after conflict")
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return r.GetByID(id)
}

func (r *ConversationRepository) findByPair(p1, p2 uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id FROM conversations
		WHERE participant1_id = $1 AND participant2_id = $2
	`
	args := []interface{}{p1, p2}
	if listingID != nil {
		query += " AND listing_id = $3"
		args = append(args, *listingID)
	} else {
		query += " AND listing_id IS NULL"
	}

	var id uuid.UUID
	err := r.db.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing conversation: %w", err)
	}

	return r.GetByID(id)
}

// IsParticipant checks whether a user belongs to a direct conversation
func (r *ConversationRepository) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM conversations
			WHERE id = $1 AND (participant1_id = $2 OR participant2_id = $2)
		)
	`

	var exists bool
	err := r.db.QueryRow(query, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}

	return exists, nil
}

// SendMessage inserts a message and updates the parent conversation's
// denormalized preview fields in the same transaction. Content may be empty
// only when an image attachment is present.
func (r *ConversationRepository) SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error) {
	if content == "" && image == nil {
		return nil, fmt.Errorf("%w: message content or image required", models.ErrValidation)
	}

	isParticipant, err := r.IsParticipant(conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, fmt.Errorf("%w: not a participant", models.ErrPermission)
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
		`INSERT INTO messages (id, conversation_id, sender_id, content, image_bucket, image_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.ImageBucket, msg.ImagePath,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE conversations SET last_message = $1, last_message_at = $2 WHERE id = $3`,
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

// GetMessages retrieves the full message history of a conversation in
// created_at ascending order, with sender profile summaries.
func (r *ConversationRepository) GetMessages(conversationID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.image_bucket, m.image_path, m.created_at,
		       u.id, u.display_name, u.avatar_url
		FROM messages m
		INNER JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC
	`

	return scanMessages(r.db.Query(query, conversationID))
}

// CountUnread counts messages newer than the given read watermark. A nil
// watermark means the user has never opened the thread.
func (r *ConversationRepository) CountUnread(conversationID, userID uuid.UUID, lastReadAt *time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
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

// scanMessages drains message rows that include a joined sender summary.
// Shared by both conversation families since the row shape is identical.
func scanMessages(rows *sql.Rows, err error) ([]models.Message, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var sender models.UserSummary
		var bucket, path sql.NullString

		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&bucket,
			&path,
			&msg.CreatedAt,
			&sender.ID,
			&sender.DisplayName,
			&sender.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if bucket.Valid {
			msg.ImageBucket = &bucket.String
		}
		if path.Valid {
			msg.ImagePath = &path.String
		}
		msg.Sender = &sender
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
