package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

// ReadStateRepository stores per-user, per-conversation read watermarks.
type ReadStateRepository struct {
	db *database.DB
}

func NewReadStateRepository(db *database.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

// Upsert records that the user has seen a conversation up to now
func (r *ReadStateRepository) Upsert(userID uuid.UUID, family models.ConversationFamily, conversationID uuid.UUID) error {
	query := `
		INSERT INTO read_states (id, user_id, conversation_type, conversation_id, last_read_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, conversation_type, conversation_id)
		DO UPDATE SET last_read_at = NOW()
	`

	_, err := r.db.Exec(query, uuid.New(), userID, family, conversationID)
	if err != nil {
		return fmt.Errorf("failed to upsert read state: %w", err)
	}

	return nil
}

// MapForUser loads all of a user's read watermarks, keyed by family:id
func (r *ReadStateRepository) MapForUser(userID uuid.UUID) (map[string]time.Time, error) {
	query := `
		SELECT conversation_type, conversation_id, last_read_at
		FROM read_states
		WHERE user_id = $1
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get read states: %w", err)
	}
	defer rows.Close()

	states := map[string]time.Time{}
	for rows.Next() {
		var family models.ConversationFamily
		var conversationID uuid.UUID
		var lastReadAt time.Time
		if err := rows.Scan(&family, &conversationID, &lastReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan read state: %w", err)
		}
		states[ReadStateKey(family, conversationID)] = lastReadAt
	}

	return states, rows.Err()
}

// ReadStateKey builds the map key for a conversation's read state
func ReadStateKey(family models.ConversationFamily, conversationID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", family, conversationID)
}
