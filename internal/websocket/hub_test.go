package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

type fakeDirectResolver struct {
	conv *models.Conversation
}

func (f *fakeDirectResolver) GetByID(id uuid.UUID) (*models.Conversation, error) {
	return f.conv, nil
}

type fakeOrgResolver struct {
	members []uuid.UUID
}

func (f *fakeOrgResolver) MemberUserIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	return f.members, nil
}

func TestHubSendToUserAndConversation(t *testing.T) {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan []byte, 10),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
	}

	// create fake clients
	id1 := uuid.New()
	id2 := uuid.New()

	// Use actual Client struct but only use the send channel for assertion
	c1 := &Client{userID: id1, send: make(chan []byte, 4)}
	c2 := &Client{userID: id2, send: make(chan []byte, 4)}

	h.clients[id1] = c1
	h.clients[id2] = c2

	// Send to single user
	msg := map[string]string{"hello": "world"}
	if err := h.SendToUser(id1, msg); err != nil {
		t.Fatalf("SendToUser error: %v", err)
	}

	select {
	case b := <-c1.send:
		var got map[string]string
		json.Unmarshal(b, &got)
		if got["hello"] != "world" {
			t.Fatalf("unexpected payload: %v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for message to user 1")
	}

	// Send to conversation (both clients)
	msg2 := map[string]string{"ping": "pong"}
	memberIDs := []uuid.UUID{id1, id2}
	if err := h.SendToConversation(memberIDs, msg2); err != nil {
		t.Fatalf("SendToConversation error: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case b := <-c.send:
			var got map[string]string
			json.Unmarshal(b, &got)
			if got["ping"] != "pong" {
				t.Fatalf("unexpected payload: %v", got)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timed out waiting for conversation message")
		}
	}
}

func TestHubBroadcastEvictsSlowClients(t *testing.T) {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan []byte, 10),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
	}

	healthyID := uuid.New()
	slowID := uuid.New()

	healthy := &Client{userID: healthyID, send: make(chan []byte, 4)}
	// unbuffered send channel with no reader: every delivery attempt fails
	slow := &Client{userID: slowID, send: make(chan []byte)}
	h.clients[healthyID] = healthy
	h.clients[slowID] = slow

	h.broadcastToAll([]byte(`{"event":"presence.update"}`))

	select {
	case <-healthy.send:
	default:
		t.Fatalf("healthy client did not receive the broadcast")
	}

	if h.IsUserOnline(slowID) {
		t.Fatalf("slow client was not evicted")
	}
	if _, ok := <-slow.send; ok {
		t.Fatalf("slow client's send channel was not closed")
	}
	if !h.IsUserOnline(healthyID) {
		t.Fatalf("healthy client was evicted")
	}
}

func TestHubRoutesDirectMessageToParticipantsOnly(t *testing.T) {
	convID := uuid.New()
	p1 := uuid.New()
	p2 := uuid.New()
	outsider := uuid.New()

	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan []byte, 10),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
		direct: &fakeDirectResolver{conv: &models.Conversation{
			ID:             convID,
			Participant1ID: p1,
			Participant2ID: p2,
		}},
	}

	c1 := &Client{userID: p1, send: make(chan []byte, 4)}
	c2 := &Client{userID: p2, send: make(chan []byte, 4)}
	c3 := &Client{userID: outsider, send: make(chan []byte, 4)}
	h.clients[p1] = c1
	h.clients[p2] = c2
	h.clients[outsider] = c3

	payload, err := json.Marshal(models.WSMessage{
		Event: models.EventMessageNew,
		Payload: models.MessageEvent{
			Family:         models.FamilyDirect,
			ConversationID: convID,
			Message: models.Message{
				ID:             uuid.New(),
				ConversationID: convID,
				SenderID:       p1,
				Content:        "hi",
				CreatedAt:      time.Now(),
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	h.routeMessage(payload)

	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.send:
		default:
			t.Fatalf("participant %s did not receive the message", c.userID)
		}
	}

	select {
	case <-c3.send:
		t.Fatalf("non-participant received the message")
	default:
	}
}

func TestHubRoutesOrgMessageToMembers(t *testing.T) {
	convID := uuid.New()
	m1 := uuid.New()
	m2 := uuid.New()
	outsider := uuid.New()

	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan []byte, 10),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
		org:        &fakeOrgResolver{members: []uuid.UUID{m1, m2}},
	}

	c1 := &Client{userID: m1, send: make(chan []byte, 4)}
	c3 := &Client{userID: outsider, send: make(chan []byte, 4)}
	h.clients[m1] = c1
	h.clients[outsider] = c3
	// m2 is offline; routing must skip them without error

	payload, err := json.Marshal(models.WSMessage{
		Event: models.EventMessageNew,
		Payload: models.MessageEvent{
			Family:         models.FamilyOrganization,
			ConversationID: convID,
			Message: models.Message{
				ID:             uuid.New(),
				ConversationID: convID,
				SenderID:       m2,
				Content:        "meeting at 8",
				CreatedAt:      time.Now(),
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	h.routeMessage(payload)

	select {
	case <-c1.send:
	default:
		t.Fatalf("member did not receive the message")
	}

	select {
	case <-c3.send:
		t.Fatalf("non-member received the message")
	default:
	}
}
