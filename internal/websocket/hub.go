package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/models"
)

// DirectResolver resolves a direct conversation to its participant pair
type DirectResolver interface {
	GetByID(id uuid.UUID) (*models.Conversation, error)
}

// OrgResolver resolves an organization conversation to its member set
type OrgResolver interface {
	MemberUserIDs(conversationID uuid.UUID) ([]uuid.UUID, error)
}

// Hub maintains the set of active clients and routes realtime events to them.
// Message events are delivered only to the participants of the conversation
// they belong to; presence updates fan out to everyone.
type Hub struct {
	// Registered clients
	clients map[uuid.UUID]*Client

	// Inbound messages destined for all clients
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Redis client for pub/sub
	redis *cache.RedisClient

	direct DirectResolver
	org    OrgResolver

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(redis *cache.RedisClient, direct DirectResolver, org OrgResolver) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
		direct:     direct,
		org:        org,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	// Subscribe to Redis channels
	go h.subscribeToRedis()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()

			// Set user online in Redis
			h.redis.SetUserOnline(client.userID)

			// Broadcast presence update
			presence := models.UserPresence{
				UserID:   client.userID,
				Status:   "online",
				LastSeen: client.connectedAt,
			}
			h.redis.PublishPresence(presence)

			log.Printf("Client registered: %s", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()

			// Set user offline in Redis
			h.redis.SetUserOffline(client.userID)

			// Broadcast presence update
			presence := models.UserPresence{
				UserID: client.userID,
				Status: "offline",
			}
			h.redis.PublishPresence(presence)

			log.Printf("Client unregistered: %s", client.userID)

		case message := <-h.broadcast:
			h.broadcastToAll(message)
		}
	}
}

// broadcastToAll fans a payload out to every connected client. Clients whose
// send buffer is full are evicted; the eviction happens under the write lock
// so it cannot race with the routing and send paths reading the client map.
func (h *Hub) broadcastToAll(message []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range slow {
		if current, ok := h.clients[client.userID]; ok && current == client {
			delete(h.clients, client.userID)
			close(client.send)
		}
	}
	h.mu.Unlock()
}

// subscribeToRedis subscribes to Redis pub/sub channels
func (h *Hub) subscribeToRedis() {
	msgPubSub := h.redis.SubscribeToMessages()
	defer msgPubSub.Close()

	msgChan := msgPubSub.Channel()

	presencePubSub := h.redis.SubscribeToPresence()
	defer presencePubSub.Close()

	presenceChan := presencePubSub.Channel()

	for {
		select {
		case msg := <-msgChan:
			// Route message events to conversation participants only
			h.routeMessage([]byte(msg.Payload))

		case presence := <-presenceChan:
			// Broadcast presence update to everyone
			h.broadcast <- []byte(presence.Payload)
		}
	}
}

// routeMessage delivers a message event to the recipients of its
// conversation. Unparseable payloads are dropped.
func (h *Hub) routeMessage(payload []byte) {
	var ws models.WSMessage
	if err := json.Unmarshal(payload, &ws); err != nil {
		return
	}
	if ws.Event != models.EventMessageNew {
		h.broadcast <- payload
		return
	}

	raw, _ := json.Marshal(ws.Payload)
	var event models.MessageEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return
	}

	recipients, err := h.resolveRecipients(event)
	if err != nil {
		log.Printf("failed to resolve recipients for conversation %s: %v", event.ConversationID, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range recipients {
		if client, ok := h.clients[userID]; ok {
			select {
			case client.send <- payload:
			default:
				// Client's send channel is full, skip
			}
		}
	}
}

func (h *Hub) resolveRecipients(event models.MessageEvent) ([]uuid.UUID, error) {
	if event.Family == models.FamilyDirect {
		conv, err := h.direct.GetByID(event.ConversationID)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{conv.Participant1ID, conv.Participant2ID}, nil
	}
	return h.org.MemberUserIDs(event.ConversationID)
}

// SendToUser sends a message to a specific user
func (h *Hub) SendToUser(userID uuid.UUID, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if ok {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, skip
		}
	}

	return nil
}

// SendToConversation sends a message to all members of a conversation
func (h *Hub) SendToConversation(memberIDs []uuid.UUID, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, memberID := range memberIDs {
		if client, ok := h.clients[memberID]; ok {
			select {
			case client.send <- data:
			default:
				// Client's send channel is full, skip
			}
		}
	}

	return nil
}

// GetOnlineUsers returns the list of online user IDs
func (h *Hub) GetOnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]uuid.UUID, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}

	return userIDs
}

// IsUserOnline checks if a user is online
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}
