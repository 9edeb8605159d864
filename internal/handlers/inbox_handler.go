package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/inbox"
	"github.com/vereinhub/backend/internal/repository"
	"github.com/vereinhub/backend/internal/storage"
	"github.com/vereinhub/backend/internal/unread"
)

type InboxHandler struct {
	convRepo    *repository.ConversationRepository
	orgConvRepo *repository.OrgConversationRepository
	orgRepo     *repository.OrganizationRepository
	readRepo    *repository.ReadStateRepository
	signer      *storage.Signer
}

func NewInboxHandler(
	convRepo *repository.ConversationRepository,
	orgConvRepo *repository.OrgConversationRepository,
	orgRepo *repository.OrganizationRepository,
	readRepo *repository.ReadStateRepository,
	signer *storage.Signer,
) *InboxHandler {
	return &InboxHandler{
		convRepo:    convRepo,
		orgConvRepo: orgConvRepo,
		orgRepo:     orgRepo,
		readRepo:    readRepo,
		signer:      signer,
	}
}

// GetInbox returns the merged conversation list for the caller inside one
// organization: pinned threads first, then the organization and marketplace
// sections ordered by recency, with per-section and total unread counts.
func (h *InboxHandler) GetInbox(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("org_id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid organization ID")
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

	// the pinned singletons exist lazily; creating them here keeps the list
	// complete even for a brand-new organization
	if err := h.orgConvRepo.EnsurePinned(orgID); err != nil {
		log.Printf("failed to ensure pinned conversations for org %s: %v", orgID, err)
	}

	agg := inbox.NewAggregator(uid, orgID, h.convRepo, h.orgConvRepo, h.orgRepo)
	if err := agg.Load(); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to load conversations")
		return
	}

	tracker := unread.NewTracker(uid, orgID, h.convRepo, h.orgConvRepo, h.readRepo)
	if err := tracker.Refresh(); err != nil {
		// stale badges are acceptable; an empty tracker just renders zeros
		log.Printf("unread refresh failed for user %s: %v", uid, err)
	}

	snap := agg.Snapshot(tracker)
	h.resolveThumbnails(snap.Marketplace)

	c.JSON(http.StatusOK, gin.H{
		"state":        snap.State,
		"pinned":       snap.Pinned,
		"organization": snap.Organization,
		"marketplace":  snap.Marketplace,
		"unread":       snap.Unread,
		"unread_total": tracker.Total(),
	})
}

// GetUnreadTotal returns the caller's total unread count (tab-bar badge)
func (h *InboxHandler) GetUnreadTotal(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("org_id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid organization ID")
		return
	}

	uid := currentUserID(c)

	tracker := unread.NewTracker(uid, orgID, h.convRepo, h.orgConvRepo, h.readRepo)
	if err := tracker.Refresh(); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to compute unread counts")
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_total": tracker.Total()})
}

// resolveThumbnails fills listing thumbnail URLs best-effort
func (h *InboxHandler) resolveThumbnails(items []inbox.Item) {
	if h.signer == nil {
		return
	}
	for _, item := range items {
		if item.Direct == nil || item.Direct.Listing == nil {
			continue
		}
		l := item.Direct.Listing
		if l.ImageBucket == nil || l.ImagePath == nil {
			continue
		}
		url, err := h.signer.SignedURL(*l.ImageBucket, *l.ImagePath)
		if err != nil {
			log.Printf("thumbnail resolution failed for listing %s: %v", l.ID, err)
			continue
		}
		l.ThumbnailURL = url
	}
}
