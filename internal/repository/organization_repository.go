package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

type OrganizationRepository struct {
	db *database.DB
}

func NewOrganizationRepository(db *database.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(id uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.QueryRow(query, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: organization", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// MemberIDs returns the set of user ids that are members of the organization.
// Used to restrict direct conversations to counterparts within the active
// organization.
func (r *OrganizationRepository) MemberIDs(orgID uuid.UUID) (map[uuid.UUID]bool, error) {
	query := `SELECT user_id FROM organization_members WHERE organization_id = $1`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization members: %w", err)
	}
	defer rows.Close()

	members := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		members[id] = true
	}

	return members, rows.Err()
}

// IsMember checks organization membership
func (r *OrganizationRepository) IsMember(orgID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM organization_members WHERE organization_id = $1 AND user_id = $2)`,
		orgID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// AddMember adds a user to an organization with the given role
func (r *OrganizationRepository) AddMember(orgID, userID uuid.UUID, role string) error {
	_, err := r.db.Exec(
		`INSERT INTO organization_members (id, organization_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (organization_id, user_id) DO NOTHING`,
		uuid.New(), orgID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to add organization member: %w", err)
	}
	return nil
}
