package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

// ErrorResponse sends a standardized error response and logs at caller if needed
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// RespondError maps domain sentinel errors onto HTTP statuses
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSelfConversation):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrValidation):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrPermission):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// currentUserID reads the authenticated user id injected by the auth middleware
func currentUserID(c *gin.Context) uuid.UUID {
	userID, _ := c.Get("user_id")
	return userID.(uuid.UUID)
}
