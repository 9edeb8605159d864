package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/models"
	"github.com/vereinhub/backend/internal/repository"
	"github.com/vereinhub/backend/internal/storage"
)

type MessageHandler struct {
	convRepo    *repository.ConversationRepository
	orgConvRepo *repository.OrgConversationRepository
	readRepo    *repository.ReadStateRepository
	signer      *storage.Signer
	redis       *cache.RedisClient
}

func NewMessageHandler(
	convRepo *repository.ConversationRepository,
	orgConvRepo *repository.OrgConversationRepository,
	readRepo *repository.ReadStateRepository,
	signer *storage.Signer,
	redis *cache.RedisClient,
) *MessageHandler {
	return &MessageHandler{
		convRepo:    convRepo,
		orgConvRepo: orgConvRepo,
		readRepo:    readRepo,
		signer:      signer,
		redis:       redis,
	}
}

// parseThreadParams extracts the conversation family and id from the route
func parseThreadParams(c *gin.Context) (models.ConversationFamily, uuid.UUID, error) {
	family := models.ConversationFamily(c.Param("family"))
	if family != models.FamilyDirect && family != models.FamilyOrganization {
		return "", uuid.Nil, fmt.Errorf("unknown conversation family %q", c.Param("family"))
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid conversation ID")
	}

	return family, id, nil
}

func (h *MessageHandler) canAccess(family models.ConversationFamily, conversationID, userID uuid.UUID) (bool, error) {
	if family == models.FamilyDirect {
		return h.convRepo.IsParticipant(conversationID, userID)
	}
	return h.orgConvRepo.CanAccess(conversationID, userID)
}

// GetMessages returns the full thread history, oldest first, with image
// attachments resolved to signed URLs.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	family, conversationID, err := parseThreadParams(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	uid := currentUserID(c)

	ok, err := h.canAccess(family, conversationID, uid)
	if err != nil || !ok {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return
	}

	var messages []models.Message
	if family == models.FamilyDirect {
		messages, err = h.convRepo.GetMessages(conversationID)
	} else {
		messages, err = h.orgConvRepo.GetMessages(conversationID)
	}
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get messages")
		return
	}

	for i := range messages {
		h.resolveImage(&messages[i])
	}

	c.JSON(http.StatusOK, messages)
}

// SendMessage persists a message in the thread and publishes the insert event
// for realtime delivery and push fan-out.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	family, conversationID, err := parseThreadParams(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	uid := currentUserID(c)

	// Redis-backed token bucket, shared across instances
	if h.redis != nil {
		allowed, err := h.redis.AllowAction(uid, "send_message", 5, 10)
		if err == nil && !allowed {
			ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
	}

	var msg *models.Message
	if family == models.FamilyDirect {
		msg, err = h.convRepo.SendMessage(conversationID, uid, req.Content, req.Image)
	} else {
		msg, err = h.orgConvRepo.SendMessage(conversationID, uid, req.Content, req.Image)
	}
	if err != nil {
		RespondError(c, err)
		return
	}

	// Publish to Redis for WebSocket delivery and push fan-out
	if h.redis != nil {
		if err := h.redis.PublishMessageEvent(models.MessageEvent{
			Family:         family,
			ConversationID: conversationID,
			Message:        *msg,
		}); err != nil {
			log.Printf("failed to publish message event: %v", err)
		}
	}

	// sending implies having read the thread
	if err := h.readRepo.Upsert(uid, family, conversationID); err != nil {
		log.Printf("failed to update read state: %v", err)
	}

	h.resolveImage(msg)
	c.JSON(http.StatusCreated, msg)
}

// MarkRead advances the caller's read watermark for the thread to now
func (h *MessageHandler) MarkRead(c *gin.Context) {
	family, conversationID, err := parseThreadParams(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	uid := currentUserID(c)

	ok, err := h.canAccess(family, conversationID, uid)
	if err != nil || !ok {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.readRepo.Upsert(uid, family, conversationID); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to mark conversation as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation marked as read"})
}

// resolveImage fills ImageURL best-effort; a failed resolution leaves the
// message rendering with text only.
func (h *MessageHandler) resolveImage(msg *models.Message) {
	if h.signer == nil || !msg.HasImage() {
		return
	}
	url, err := h.signer.SignedURL(*msg.ImageBucket, *msg.ImagePath)
	if err != nil {
		log.Printf("image resolution failed for message %s: %v", msg.ID, err)
		return
	}
	msg.ImageURL = url
}
