package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/models"
)

// ListingRepository exposes the marketplace slice the messaging core needs:
// the summary shown on listing-linked conversations and the seller for the
// "message seller" flow. Listing CRUD lives elsewhere.
type ListingRepository struct {
	db *database.DB
}

func NewListingRepository(db *database.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetSummary retrieves a listing summary by ID
func (r *ListingRepository) GetSummary(id uuid.UUID) (*models.ListingSummary, error) {
	query := `
		SELECT id, title, image_bucket, image_path
		FROM listings
		WHERE id = $1
	`

	summary := &models.ListingSummary{}
	err := r.db.QueryRow(query, id).Scan(&summary.ID, &summary.Title, &summary.ImageBucket, &summary.ImagePath)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: listing", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return summary, nil
}

// GetSellerID retrieves the seller of a listing
func (r *ListingRepository) GetSellerID(id uuid.UUID) (uuid.UUID, error) {
	var sellerID uuid.UUID
	err := r.db.QueryRow(`SELECT seller_id FROM listings WHERE id = $1`, id).Scan(&sellerID)
	if err == sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("%w: listing", models.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get listing seller: %w", err)
	}
	return sellerID, nil
}
