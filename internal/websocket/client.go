package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/models"
	"github.com/vereinhub/backend/internal/repository"
	"github.com/vereinhub/backend/internal/unread"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10240 // 10KB
)

// Client represents a WebSocket client
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      uuid.UUID
	email       string
	connectedAt time.Time

	// Repositories
	directRepo *repository.ConversationRepository
	orgRepo    *repository.OrgConversationRepository
	readRepo   *repository.ReadStateRepository
	redis      *cache.RedisClient

	// unread badge subscription
	unreadInterval time.Duration
	unreadStop     func()

	// simple token-bucket rate limiter
	tokens       int
	maxTokens    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

// NewClient creates a new WebSocket client
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	userID uuid.UUID,
	email string,
	directRepo *repository.ConversationRepository,
	orgRepo *repository.OrgConversationRepository,
	readRepo *repository.ReadStateRepository,
	redis *cache.RedisClient,
	unreadInterval time.Duration,
) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, 256),
		userID:         userID,
		email:          email,
		connectedAt:    time.Now(),
		directRepo:     directRepo,
		orgRepo:        orgRepo,
		readRepo:       readRepo,
		redis:          redis,
		unreadInterval: unreadInterval,
		tokens:         20,
		maxTokens:      20,
		refillPeriod:   time.Second,
		lastRefill:     time.Now(),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.stopUnreadUpdates()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Rate limit: simple token bucket (in-memory). If Redis present, you may implement a global limiter.
		now := time.Now()
		elapsed := now.Sub(c.lastRefill)
		if elapsed >= c.refillPeriod {
			// add tokens proportional to elapsed seconds
			add := int(elapsed / c.refillPeriod)
			c.tokens += add
			if c.tokens > c.maxTokens {
				c.tokens = c.maxTokens
			}
			c.lastRefill = now
		}

		if c.tokens <= 0 {
			// drop the message and optionally send a rate limit error
			c.sendError("rate_limited")
			continue
		}
		c.tokens--

		// Handle incoming message
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(data []byte) {
	var wsMsg models.WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch wsMsg.Event {
	case models.EventMessageSend:
		c.handleMessageSend(wsMsg.Payload)

	case models.EventMessageRead:
		c.handleMessageRead(wsMsg.Payload)

	case models.EventUnreadSubscribe:
		c.handleUnreadSubscribe(wsMsg.Payload)

	default:
		c.sendError("Unknown event type")
	}
}

// handleMessageSend persists a message in the requested conversation family
// and publishes the insert event. The repository enforces membership and
// payload validity.
func (c *Client) handleMessageSend(payload interface{}) {
	data, _ := json.Marshal(payload)
	var req models.WSMessageSendPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("Invalid message payload")
		return
	}

	var msg *models.Message
	var err error
	switch req.Family {
	case models.FamilyDirect:
		msg, err = c.directRepo.SendMessage(req.ConversationID, c.userID, req.Content, req.Image)
	case models.FamilyOrganization:
		msg, err = c.orgRepo.SendMessage(req.ConversationID, c.userID, req.Content, req.Image)
	default:
		c.sendError("Unknown conversation family")
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, models.ErrPermission):
			c.sendError("Access denied")
		case errors.Is(err, models.ErrValidation):
			c.sendError("Invalid message payload")
		default:
			c.sendError("Failed to send message")
		}
		return
	}

	// Publish to Redis so the hub and the push worker pick it up
	if err := c.redis.PublishMessageEvent(models.MessageEvent{
		Family:         req.Family,
		ConversationID: req.ConversationID,
		Message:        *msg,
	}); err != nil {
		log.Printf("failed to publish message event: %v", err)
	}
}

// handleMessageRead advances the caller's read watermark for a conversation
func (c *Client) handleMessageRead(payload interface{}) {
	data, _ := json.Marshal(payload)
	var req models.WSMessageReadPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("Invalid read payload")
		return
	}

	if req.Family != models.FamilyDirect && req.Family != models.FamilyOrganization {
		c.sendError("Unknown conversation family")
		return
	}

	if err := c.readRepo.Upsert(c.userID, req.Family, req.ConversationID); err != nil {
		c.sendError("Failed to mark conversation as read")
		return
	}
}

// handleUnreadSubscribe starts pushing the caller's total unread count for one
// organization on the configured interval, until resubscribed or disconnected.
func (c *Client) handleUnreadSubscribe(payload interface{}) {
	data, _ := json.Marshal(payload)
	var req models.WSUnreadSubscribePayload
	if err := json.Unmarshal(data, &req); err != nil || req.OrganizationID == uuid.Nil {
		c.sendError("Invalid unread subscription payload")
		return
	}

	c.stopUnreadUpdates()

	tracker := unread.NewTracker(c.userID, req.OrganizationID, c.directRepo, c.orgRepo, c.readRepo)
	done := make(chan struct{})
	c.unreadStop = func() { close(done) }

	push := func() {
		if err := tracker.Refresh(); err != nil {
			log.Printf("unread refresh failed for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(models.EventUnreadUpdate, models.WSUnreadUpdatePayload{
			OrganizationID: req.OrganizationID,
			Total:          tracker.Total(),
		})
	}

	interval := c.unreadInterval
	if interval <= 0 {
		interval = 20 * time.Second
	}

	go func() {
		push()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				push()
			case <-done:
				return
			}
		}
	}()
}

func (c *Client) stopUnreadUpdates() {
	if c.unreadStop != nil {
		c.unreadStop()
		c.unreadStop = nil
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, _ := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	select {
	case c.send <- data:
	default:
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	errorMsg := models.WSMessage{
		Event: models.EventError,
		Payload: models.WSErrorPayload{
			Message: message,
		},
	}

	data, _ := json.Marshal(errorMsg)
	select {
	case c.send <- data:
	default:
	}
}
