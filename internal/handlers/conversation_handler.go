package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
	"github.com/vereinhub/backend/internal/repository"
)

type ConversationHandler struct {
	convRepo    *repository.ConversationRepository
	orgConvRepo *repository.OrgConversationRepository
	orgRepo     *repository.OrganizationRepository
	listingRepo *repository.ListingRepository
}

func NewConversationHandler(
	convRepo *repository.ConversationRepository,
	orgConvRepo *repository.OrgConversationRepository,
	orgRepo *repository.OrganizationRepository,
	listingRepo *repository.ListingRepository,
) *ConversationHandler {
	return &ConversationHandler{
		convRepo:    convRepo,
		orgConvRepo: orgConvRepo,
		orgRepo:     orgRepo,
		listingRepo: listingRepo,
	}
}

// CreateDirectConversation returns the existing thread for the pair (and
// listing context, if any) or creates it. Opening a conversation twice never
// produces a second thread.
func (h *ConversationHandler) CreateDirectConversation(c *gin.Context) {
	var req models.CreateDirectConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.convRepo.GetOrCreate(currentUserID(c), req.OtherUserID, req.ListingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// MessageSeller opens (or returns) the listing-scoped thread between the
// caller and the listing's seller.
func (h *ConversationHandler) MessageSeller(c *gin.Context) {
	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	sellerID, err := h.listingRepo.GetSellerID(listingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	conv, err := h.convRepo.GetOrCreate(currentUserID(c), sellerID, &listingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// GetDirectConversations returns the caller's direct threads, newest first
func (h *ConversationHandler) GetDirectConversations(c *gin.Context) {
	conversations, err := h.convRepo.ListForUser(currentUserID(c))
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get conversations")
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// CreateGroup creates a user-managed group thread inside an organization
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("org_id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid organization ID")
		return
	}

	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	uid := currentUserID(c)

	isMember, err := h.orgRepo.IsMember(orgID, uid)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !isMember {
		ErrorResponse(c, http.StatusForbidden, "Not a member of this organization")
		return
	}

	conv, err := h.orgConvRepo.CreateGroup(orgID, uid, req.Name, req.Members)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// RenameGroup renames a group thread. Only the creator may rename.
func (h *ConversationHandler) RenameGroup(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req models.RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orgConvRepo.Rename(conversationID, currentUserID(c), req.Name); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group renamed"})
}

// AddGroupMembers adds members to a group thread. Any current member may add.
func (h *ConversationHandler) AddGroupMembers(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req models.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orgConvRepo.AddMembers(conversationID, currentUserID(c), req.Members); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Members added successfully"})
}

// RemoveGroupMember removes a member from a group thread. The creator may
// remove anyone; everyone else may only remove themselves (leave).
func (h *ConversationHandler) RemoveGroupMember(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	targetID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.orgConvRepo.RemoveMember(conversationID, currentUserID(c), targetID); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

// LeaveGroup removes the caller from a group thread
func (h *ConversationHandler) LeaveGroup(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	uid := currentUserID(c)
	if err := h.orgConvRepo.RemoveMember(conversationID, uid, uid); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}
