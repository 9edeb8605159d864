package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(user *models.User) error {
	query := `
		INSERT INTO users (id, email, display_name, avatar_url, password_hash, push_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.AvatarURL,
		user.PasswordHash,
		user.PushEnabled,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id uuid.UUID) (*models.User, error) {
	return r.getOne(`WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.getOne(`WHERE email = $1`, email)
}

func (r *UserRepository) getOne(where string, arg interface{}) (*models.User, error) {
	query := `
		SELECT id, email, display_name, avatar_url, password_hash, expo_push_token, push_enabled, created_at, updated_at
		FROM users ` + where

	user := &models.User{}
	err := r.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.ExpoPushToken,
		&user.PushEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// SetPushToken registers or replaces the device push token for a user
func (r *UserRepository) SetPushToken(userID uuid.UUID, token string) error {
	_, err := r.db.Exec(
		`UPDATE users SET expo_push_token = $1, updated_at = NOW() WHERE id = $2`,
		token, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set push token: %w", err)
	}
	return nil
}

// SetPushEnabled flips the per-user push opt-out flag
func (r *UserRepository) SetPushEnabled(userID uuid.UUID, enabled bool) error {
	_, err := r.db.Exec(
		`UPDATE users SET push_enabled = $1, updated_at = NOW() WHERE id = $2`,
		enabled, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set push setting: %w", err)
	}
	return nil
}

// PushTokens returns the device tokens of the given users, excluding users
// who opted out of push or have no registered device.
func (r *UserRepository) PushTokens(userIDs []uuid.UUID) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}

	idStrings := make([]string, len(userIDs))
	for i, id := range userIDs {
		idStrings[i] = id.String()
	}

	query := `
		SELECT expo_push_token FROM users
		WHERE id = ANY($1)
		AND push_enabled = true
		AND expo_push_token IS NOT NULL
	`

	rows, err := r.db.Query(query, pq.Array(idStrings))
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}
