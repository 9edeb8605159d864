package thread

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

// ErrSendInFlight rejects a second send while one is outstanding for the
// same thread. Sends in other threads are unaffected.
var ErrSendInFlight = errors.New("a send is already in flight")

// DirectStore is the direct-conversation slice the controller uses.
type DirectStore interface {
	GetByID(id uuid.UUID) (*models.Conversation, error)
	GetMessages(conversationID uuid.UUID) ([]models.Message, error)
	SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error)
}

// OrgStore is the organization-conversation slice the controller uses.
type OrgStore interface {
	GetByID(id uuid.UUID) (*models.OrganizationConversation, error)
	GetMessages(conversationID uuid.UUID) ([]models.Message, error)
	SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error)
	Rename(conversationID, userID uuid.UUID, name string) error
	RemoveMember(conversationID, requesterID, targetID uuid.UUID) error
}

// ReadMarker persists read watermarks (satisfied by unread.Tracker).
type ReadMarker interface {
	MarkRead(family models.ConversationFamily, conversationID uuid.UUID) error
}

// ImageResolver resolves stored attachments to time-limited URLs
// (satisfied by storage.Signer).
type ImageResolver interface {
	SignedURL(bucket, path string) (string, error)
}

// SubscribeFunc attaches a realtime message-event consumer and returns its
// teardown. Each Open gets a fresh subscription; Close releases it.
type SubscribeFunc func(handler func(models.MessageEvent)) (stop func())

// Controller drives one open conversation thread: history, realtime appends,
// sends and read marking. Messages stay ordered by created_at ascending and
// are deduped by id, so the send confirmation and the realtime echo of the
// same message may arrive in either order.
type Controller struct {
	family         models.ConversationFamily
	conversationID uuid.UUID
	userID         uuid.UUID

	direct    DirectStore
	org       OrgStore
	reads     ReadMarker
	images    ImageResolver
	subscribe SubscribeFunc

	mu          sync.Mutex
	open        bool
	title       string
	createdBy   *uuid.UUID
	messages    []models.Message
	seen        map[uuid.UUID]bool
	sending     bool
	input       string
	unsubscribe func()
}

func NewController(
	family models.ConversationFamily,
	conversationID, userID uuid.UUID,
	direct DirectStore,
	org OrgStore,
	reads ReadMarker,
	images ImageResolver,
	subscribe SubscribeFunc,
) *Controller {
	return &Controller{
		family:         family,
		conversationID: conversationID,
		userID:         userID,
		direct:         direct,
		org:            org,
		reads:          reads,
		images:         images,
		subscribe:      subscribe,
		seen:           map[uuid.UUID]bool{},
	}
}

// Open loads header metadata and the full message history, resolves image
// URLs best-effort, marks the thread read and attaches the realtime
// subscription.
func (c *Controller) Open() error {
	title, createdBy, err := c.loadHeader()
	if err != nil {
		return err
	}

	var history []models.Message
	if c.family == models.FamilyDirect {
		history, err = c.direct.GetMessages(c.conversationID)
	} else {
		history, err = c.org.GetMessages(c.conversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	for i := range history {
		c.resolveImage(&history[i])
	}

	c.mu.Lock()
	c.open = true
	c.title = title
	c.createdBy = createdBy
	c.messages = history
	c.seen = make(map[uuid.UUID]bool, len(history))
	for _, m := range history {
		c.seen[m.ID] = true
	}
	c.mu.Unlock()

	c.markRead()

	if c.subscribe != nil {
		stop := c.subscribe(c.HandleInsert)
		c.mu.Lock()
		c.unsubscribe = stop
		c.mu.Unlock()
	}

	return nil
}

func (c *Controller) loadHeader() (string, *uuid.UUID, error) {
	if c.family == models.FamilyDirect {
		conv, err := c.direct.GetByID(c.conversationID)
		if err != nil {
			return "", nil, err
		}
		if conv.Counterpart != nil {
			return conv.Counterpart.DisplayName, nil, nil
		}
		// counterpart profile unavailable; fall back to a safe placeholder
		return "Conversation", nil, nil
	}

	conv, err := c.org.GetByID(c.conversationID)
	if err != nil {
		return "", nil, err
	}
	return conv.Name, conv.CreatedBy, nil
}

// Title returns the header title loaded by Open
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// SetInput stores the user's draft text
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// Input returns the current draft text
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Send persists a message and appends it to local state on confirmed success.
// There is no optimistic insert: on failure the draft input is restored so
// the user does not lose it, and nothing needs rolling back. At most one send
// may be in flight per thread.
func (c *Controller) Send(content string, image *models.ImageAttachment) (*models.Message, error) {
	if content == "" && image == nil {
		return nil, fmt.Errorf("%w: message content or image required", models.ErrValidation)
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.sending = true
	c.input = ""
	c.mu.Unlock()

	var msg *models.Message
	var err error
	if c.family == models.FamilyDirect {
		msg, err = c.direct.SendMessage(c.conversationID, c.userID, content, image)
	} else {
		msg, err = c.org.SendMessage(c.conversationID, c.userID, content, image)
	}

	c.mu.Lock()
	c.sending = false
	if err != nil {
		// restore the draft so the user can retry
		c.input = content
		c.mu.Unlock()
		return nil, err
	}

	c.resolveImage(msg)
	c.appendLocked(*msg)
	c.mu.Unlock()

	c.markRead()
	return msg, nil
}

// HandleInsert consumes a realtime insert notification. Delivery is
// at-least-once, and the sender's own Send may already have appended the
// message, so the append is deduped by id.
func (c *Controller) HandleInsert(event models.MessageEvent) {
	if event.Family != c.family || event.ConversationID != c.conversationID {
		return
	}

	msg := event.Message
	c.resolveImage(&msg)

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	appended := c.appendLocked(msg)
	c.mu.Unlock()

	if appended {
		c.markRead()
	}
}

// appendLocked adds a message if unseen and keeps created_at ascending order
// independent of arrival order. Caller holds the mutex.
func (c *Controller) appendLocked(msg models.Message) bool {
	if c.seen[msg.ID] {
		return false
	}
	c.seen[msg.ID] = true
	c.messages = append(c.messages, msg)
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
	return true
}

// Messages returns a copy of the thread's messages in display order
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message{}, c.messages...)
}

// Sending reports whether a send is in flight
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Rename renames a group conversation; the store enforces creator-only access
func (c *Controller) Rename(name string) error {
	if c.family != models.FamilyOrganization {
		return fmt.Errorf("%w: only group conversations can be renamed", models.ErrValidation)
	}
	return c.org.Rename(c.conversationID, c.userID, name)
}

// RemoveMember removes another member; the store enforces creator-only access
func (c *Controller) RemoveMember(targetID uuid.UUID) error {
	if c.family != models.FamilyOrganization {
		return fmt.Errorf("%w: not a group conversation", models.ErrValidation)
	}
	return c.org.RemoveMember(c.conversationID, c.userID, targetID)
}

// Leave removes the calling user from a group conversation
func (c *Controller) Leave() error {
	return c.RemoveMember(c.userID)
}

// Close tears down the realtime subscription. Results of in-flight calls
// arriving afterwards are discarded by the open check in HandleInsert.
func (c *Controller) Close() {
	c.mu.Lock()
	stop := c.unsubscribe
	c.unsubscribe = nil
	c.open = false
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// resolveImage fills ImageURL best-effort: a failed resolution leaves the
// message rendering with text only, never blocking the thread.
func (c *Controller) resolveImage(msg *models.Message) {
	if c.images == nil || !msg.HasImage() {
		return
	}
	url, err := c.images.SignedURL(*msg.ImageBucket, *msg.ImagePath)
	if err != nil {
		log.Printf("image resolution failed for message %s: %v", msg.ID, err)
		return
	}
	msg.ImageURL = url
}

func (c *Controller) markRead() {
	if c.reads == nil {
		return
	}
	if err := c.reads.MarkRead(c.family, c.conversationID); err != nil {
		log.Printf("mark read failed for conversation %s: %v", c.conversationID, err)
	}
}
