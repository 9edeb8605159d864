package push

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/models"
)

// DirectConversations resolves direct-thread participants.
type DirectConversations interface {
	GetByID(id uuid.UUID) (*models.Conversation, error)
}

// OrgConversations resolves organization-thread recipients.
type OrgConversations interface {
	GetByID(id uuid.UUID) (*models.OrganizationConversation, error)
	MemberUserIDs(conversationID uuid.UUID) ([]uuid.UUID, error)
}

// Users resolves sender identity and recipient device tokens.
type Users interface {
	GetByID(id uuid.UUID) (*models.User, error)
	PushTokens(userIDs []uuid.UUID) ([]string, error)
}

// Notifications creates and patches notification records.
type Notifications interface {
	Create(n *models.PushNotification) error
	Recorder
}

// Worker listens for message-insert events and fans out push notifications.
// Delivery is fire-and-forget relative to message persistence: a failed push
// only shows up as a failed notification record, never as a send error.
type Worker struct {
	redis      *cache.RedisClient
	direct     DirectConversations
	org        OrgConversations
	users      Users
	records    Notifications
	dispatcher *Dispatcher
}

func NewWorker(
	redis *cache.RedisClient,
	direct DirectConversations,
	org OrgConversations,
	users Users,
	records Notifications,
	dispatcher *Dispatcher,
) *Worker {
	return &Worker{
		redis:      redis,
		direct:     direct,
		org:        org,
		users:      users,
		records:    records,
		dispatcher: dispatcher,
	}
}

// Run starts listening for message events and processing them
func (w *Worker) Run() {
	if w.redis == nil {
		log.Println("Push worker requires Redis; not started")
		return
	}

	ps := w.redis.SubscribeToMessages()
	defer ps.Close()

	ch := ps.Channel()
	log.Println("Push worker started and listening to messages")
	for msg := range ch {
		var ws models.WSMessage
		if err := json.Unmarshal([]byte(msg.Payload), &ws); err != nil {
			continue
		}
		if ws.Event != models.EventMessageNew {
			continue
		}

		raw, _ := json.Marshal(ws.Payload)
		var event models.MessageEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		go w.Process(event)
	}
}

// Process resolves the recipient set for one message and dispatches the
// notification. All failures are logged and swallowed.
func (w *Worker) Process(event models.MessageEvent) {
	title, recipients, err := w.resolve(event)
	if err != nil {
		log.Printf("push recipient resolution failed for conversation %s: %v", event.ConversationID, err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	// individual opt-out and missing-device filtering happens here
	tokens, err := w.users.PushTokens(recipients)
	if err != nil {
		log.Printf("push token lookup failed: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	record := &models.PushNotification{
		ID:     uuid.New(),
		Tokens: tokens,
		Title:  title,
		Body:   event.Message.Preview(),
		Data: map[string]interface{}{
			"family":          event.Family,
			"conversation_id": event.ConversationID.String(),
			"message_id":      event.Message.ID.String(),
		},
	}
	if err := w.records.Create(record); err != nil {
		log.Printf("failed to create notification record: %v", err)
		return
	}

	req := Request{
		PushNotificationID: &record.ID,
		Tokens:             record.Tokens,
		Title:              record.Title,
		Body:               record.Body,
		Data:               record.Data,
	}

	if result, err := w.dispatcher.Dispatch(context.Background(), req); err != nil {
		log.Printf("push dispatch failed for notification %s: %v", record.ID, err)
	} else if result.Skipped != "" {
		log.Printf("push dispatch skipped for notification %s: %s", record.ID, result.Skipped)
	}
}

// resolve determines the notification title and recipient user ids: the
// other participant for a direct message, all current conversation members
// except the sender for an organization message.
func (w *Worker) resolve(event models.MessageEvent) (string, []uuid.UUID, error) {
	if event.Family == models.FamilyDirect {
		conv, err := w.direct.GetByID(event.ConversationID)
		if err != nil {
			return "", nil, err
		}

		other := conv.Participant1ID
		if other == event.Message.SenderID {
			other = conv.Participant2ID
		}

		sender, err := w.users.GetByID(event.Message.SenderID)
		if err != nil {
			return "", nil, err
		}

		return sender.DisplayName, []uuid.UUID{other}, nil
	}

	conv, err := w.org.GetByID(event.ConversationID)
	if err != nil {
		return "", nil, err
	}

	memberIDs, err := w.org.MemberUserIDs(event.ConversationID)
	if err != nil {
		return "", nil, err
	}

	recipients := make([]uuid.UUID, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != event.Message.SenderID {
			recipients = append(recipients, id)
		}
	}

	return conv.Name, recipients, nil
}
