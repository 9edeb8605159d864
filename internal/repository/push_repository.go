package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

// PushRepository stores push notification records and their delivery status.
type PushRepository struct {
	db *database.DB
}

func NewPushRepository(db *database.DB) *PushRepository {
	return &PushRepository{db: db}
}

// Create inserts a pending notification record
func (r *PushRepository) Create(n *models.PushNotification) error {
	var data []byte
	if n.Data != nil {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
	}

	query := `
		INSERT INTO push_notifications (id, tokens, title, body, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW())
		RETURNING created_at
	`

	err := r.db.QueryRow(query, n.ID, pq.Array(n.Tokens), n.Title, n.Body, data).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create push notification: %w", err)
	}

	n.Status = models.PushStatusPending
	return nil
}

// GetByID retrieves a notification record
func (r *PushRepository) GetByID(id uuid.UUID) (*models.PushNotification, error) {
	query := `
		SELECT id, tokens, title, body, data, status, sent_at, error_message, created_at
		FROM push_notifications
		WHERE id = $1
	`

	n := &models.PushNotification{}
	var data []byte
	err := r.db.QueryRow(query, id).Scan(
		&n.ID,
		pq.Array(&n.Tokens),
		&n.Title,
		&n.Body,
		&data,
		&n.Status,
		&n.SentAt,
		&n.ErrorMessage,
		&n.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: push notification", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get push notification: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
		}
	}

	return n, nil
}

// MarkSent records a successful provider delivery
func (r *PushRepository) MarkSent(id uuid.UUID) error {
	_, err := r.db.Exec(
		`UPDATE push_notifications SET status = 'sent', sent_at = NOW(), error_message = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a terminal delivery failure. The reason is truncated so
// arbitrarily large provider responses never bloat the row.
func (r *PushRepository) MarkFailed(id uuid.UUID, reason string) error {
	const maxReasonLen = 500
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	_, err := r.db.Exec(
		`UPDATE push_notifications SET status = 'failed', error_message = $1 WHERE id = $2`,
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}
