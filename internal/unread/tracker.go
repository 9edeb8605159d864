package unread

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

// DirectStore is the direct-conversation slice the tracker reads.
type DirectStore interface {
	ListForUser(userID uuid.UUID) ([]models.Conversation, error)
	CountUnread(conversationID, userID uuid.UUID, lastReadAt *time.Time) (int, error)
}

// OrgStore is the organization-conversation slice the tracker reads.
type OrgStore interface {
	ListPinned(orgID uuid.UUID) ([]models.OrganizationConversation, error)
	ListGroupsForUser(orgID, userID uuid.UUID) ([]models.OrganizationConversation, error)
	CountUnread(conversationID, userID uuid.UUID, lastReadAt *time.Time) (int, error)
}

// ReadStateStore persists read watermarks.
type ReadStateStore interface {
	Upsert(userID uuid.UUID, family models.ConversationFamily, conversationID uuid.UUID) error
	MapForUser(userID uuid.UUID) (map[string]time.Time, error)
}

// Tracker caches unread counts for one user within one organization. It is
// explicitly owned and refreshed by its callers (screen focus, a fixed
// interval, after send/receive); Count never re-queries. Badges are allowed
// to be stale for at most one refresh interval; message delivery is never
// gated on this cache.
type Tracker struct {
	userID uuid.UUID
	orgID  uuid.UUID

	direct     DirectStore
	org        OrgStore
	readStates ReadStateStore

	mu     sync.RWMutex
	counts map[string]int
}

func NewTracker(userID, orgID uuid.UUID, direct DirectStore, org OrgStore, readStates ReadStateStore) *Tracker {
	return &Tracker{
		userID:     userID,
		orgID:      orgID,
		direct:     direct,
		org:        org,
		readStates: readStates,
		counts:     map[string]int{},
	}
}

// Refresh recomputes the unread map by comparing each conversation's
// last_message_at against the stored read watermark. Conversations with no
// stored read state are fully unread if they have any message.
func (t *Tracker) Refresh() error {
	watermarks, err := t.readStates.MapForUser(t.userID)
	if err != nil {
		return fmt.Errorf("failed to load read states: %w", err)
	}

	directConvs, err := t.direct.ListForUser(t.userID)
	if err != nil {
		return fmt.Errorf("failed to load direct conversations: %w", err)
	}

	pinned, err := t.org.ListPinned(t.orgID)
	if err != nil {
		return fmt.Errorf("failed to load pinned conversations: %w", err)
	}

	groups, err := t.org.ListGroupsForUser(t.orgID, t.userID)
	if err != nil {
		return fmt.Errorf("failed to load group conversations: %w", err)
	}

	counts := map[string]int{}

	for _, conv := range directConvs {
		n, err := t.countFor(models.FamilyDirect, conv.ID, conv.LastMessageAt, watermarks)
		if err != nil {
			return err
		}
		if n > 0 {
			counts[key(models.FamilyDirect, conv.ID)] = n
		}
	}

	orgConvs := append(pinned, groups...)
	for _, conv := range orgConvs {
		n, err := t.countFor(models.FamilyOrganization, conv.ID, conv.LastMessageAt, watermarks)
		if err != nil {
			return err
		}
		if n > 0 {
			counts[key(models.FamilyOrganization, conv.ID)] = n
		}
	}

	t.mu.Lock()
	t.counts = counts
	t.mu.Unlock()

	return nil
}

func (t *Tracker) countFor(family models.ConversationFamily, conversationID uuid.UUID, lastMessageAt *time.Time, watermarks map[string]time.Time) (int, error) {
	if lastMessageAt == nil {
		return 0, nil
	}

	var readAt *time.Time
	if at, ok := watermarks[key(family, conversationID)]; ok {
		if !at.Before(*lastMessageAt) {
			return 0, nil
		}
		readAt = &at
	}

	switch family {
	case models.FamilyDirect:
		return t.direct.CountUnread(conversationID, t.userID, readAt)
	default:
		return t.org.CountUnread(conversationID, t.userID, readAt)
	}
}

// Count is a pure lookup against the last-computed map. Callers needing fresh
// data must Refresh first.
func (t *Tracker) Count(family models.ConversationFamily, conversationID uuid.UUID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[key(family, conversationID)]
}

// Total returns the sum of all cached unread counts (tab-bar badge).
func (t *Tracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

// MarkRead upserts the read watermark to now. It does not touch the cached
// map; the next Refresh reconciles it.
func (t *Tracker) MarkRead(family models.ConversationFamily, conversationID uuid.UUID) error {
	return t.readStates.Upsert(t.userID, family, conversationID)
}

// AutoRefresh refreshes on a fixed interval until the returned stop function
// is called. Used while the messages list is mounted.
func (t *Tracker) AutoRefresh(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := t.Refresh(); err != nil {
					log.Printf("unread refresh failed: %v", err)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func key(family models.ConversationFamily, conversationID uuid.UUID) string {
	return string(family) + ":" + conversationID.String()
}
