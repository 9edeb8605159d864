package websocket

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vereinhub/backend/internal/auth"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/repository"
)

// Handler handles WebSocket connections
type Handler struct {
	hub            *Hub
	jwtService     *auth.JWTService
	directRepo     *repository.ConversationRepository
	orgRepo        *repository.OrgConversationRepository
	readRepo       *repository.ReadStateRepository
	redis          *cache.RedisClient
	unreadInterval time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. The upgrader's origin check is
// fixed at construction time; concurrent upgrades share it read-only.
func NewHandler(
	hub *Hub,
	jwtService *auth.JWTService,
	directRepo *repository.ConversationRepository,
	orgRepo *repository.OrgConversationRepository,
	readRepo *repository.ReadStateRepository,
	redis *cache.RedisClient,
	unreadInterval time.Duration,
	allowedOrigins []string,
) *Handler {
	h := &Handler{
		hub:            hub,
		jwtService:     jwtService,
		directRepo:     directRepo,
		orgRepo:        orgRepo,
		readRepo:       readRepo,
		redis:          redis,
		unreadInterval: unreadInterval,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows any origin when no allowlist is configured (development)
// and otherwise requires an exact or wildcard match against it.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, pattern := range h.allowedOrigins {
		if matchOrigin(pattern, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(c *gin.Context) {
	// Get token from query parameter
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	// Validate token
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	// Upgrade connection
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	// Create client
	client := NewClient(
		h.hub,
		conn,
		claims.UserID,
		claims.Email,
		h.directRepo,
		h.orgRepo,
		h.readRepo,
		h.redis,
		h.unreadInterval,
	)

	// Register client
	h.hub.register <- client

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}

// GetOnlineUsers returns online users (for testing/admin)
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	_ = userID.(uuid.UUID)

	onlineUsers := h.hub.GetOnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"online_users": onlineUsers,
		"count":        len(onlineUsers),
	})
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	// simple wildcard support: pattern starts with *.
	if strings.HasPrefix(pattern, "*.") {
		// strip scheme from origin if present
		// e.g., https://sub.example.com -> sub.example.com
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		patHost := strings.TrimPrefix(pattern, "*.")
		// ensure originHost ends with patHost
		if strings.HasSuffix(originHost, patHost) {
			return true
		}
	}
	return false
}
