package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/vereinhub/backend/config"
	"github.com/vereinhub/backend/internal/auth"
	"github.com/vereinhub/backend/internal/cache"
	"github.com/vereinhub/backend/internal/database"
	"github.com/vereinhub/backend/internal/handlers"
	"github.com/vereinhub/backend/internal/middleware"
	"github.com/vereinhub/backend/internal/push"
	"github.com/vereinhub/backend/internal/repository"
	"github.com/vereinhub/backend/internal/storage"
	"github.com/vereinhub/backend/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Connect to Redis
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running without Redis - real-time features will be limited")
		redis = nil
	} else {
		defer redis.Close()
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	signer := storage.NewSigner(cfg.Storage.SigningSecret, cfg.Storage.BaseURL, cfg.Storage.SignedURLTTL)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	orgConvRepo := repository.NewOrgConversationRepository(db)
	readRepo := repository.NewReadStateRepository(db)
	listingRepo := repository.NewListingRepository(db)
	pushRepo := repository.NewPushRepository(db)

	// Push pipeline
	provider := push.NewProvider(cfg.Push.ExpoAPIURL, cfg.Push.Timeout)
	dispatcher := push.NewDispatcher(provider, pushRepo)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userRepo, jwtService)
	convHandler := handlers.NewConversationHandler(convRepo, orgConvRepo, orgRepo, listingRepo)
	msgHandler := handlers.NewMessageHandler(convRepo, orgConvRepo, readRepo, signer, redis)
	inboxHandler := handlers.NewInboxHandler(convRepo, orgConvRepo, orgRepo, readRepo, signer)
	pushHandler := handlers.NewPushHandler(dispatcher)

	// Initialize WebSocket hub and push worker (only if Redis is available)
	var wsHandler *websocket.Handler
	if redis != nil {
		hub := websocket.NewHub(redis, convRepo, orgConvRepo)
		go hub.Run()
		wsHandler = websocket.NewHandler(hub, jwtService, convRepo, orgConvRepo, readRepo, redis, cfg.API.UnreadRefreshInterval, cfg.CORS.AllowedOrigins)

		worker := push.NewWorker(redis, convRepo, orgConvRepo, userRepo, pushRepo, dispatcher)
		go worker.Run()
	}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitMessagesPerSec)
	rateLimiter.Cleanup()

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// Push dispatch endpoint; responds 405 to non-POST methods
	router.Any("/push/dispatch", pushHandler.Send)

	// WebSocket endpoint (only if Redis is available)
	if wsHandler != nil {
		router.GET("/ws", wsHandler.HandleWebSocket)
	}

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		// User routes
		api.GET("/me", authHandler.GetMe)
		api.POST("/me/push-token", authHandler.RegisterPushToken)
		api.PUT("/me/push-settings", authHandler.UpdatePushSettings)

		// Direct conversation routes
		api.GET("/conversations", convHandler.GetDirectConversations)
		api.POST("/conversations/direct", convHandler.CreateDirectConversation)
		api.POST("/listings/:id/message", convHandler.MessageSeller)

		// Group conversation routes
		api.POST("/organizations/:org_id/groups", convHandler.CreateGroup)
		api.PATCH("/groups/:id", convHandler.RenameGroup)
		api.POST("/groups/:id/members", convHandler.AddGroupMembers)
		api.DELETE("/groups/:id/members/:user_id", convHandler.RemoveGroupMember)
		api.POST("/groups/:id/leave", convHandler.LeaveGroup)

		// Inbox routes
		api.GET("/organizations/:org_id/inbox", inboxHandler.GetInbox)
		api.GET("/organizations/:org_id/unread", inboxHandler.GetUnreadTotal)

		// Message routes
		api.GET("/threads/:family/:id/messages", msgHandler.GetMessages)
		api.POST("/threads/:family/:id/messages", middleware.RateLimitMiddleware(rateLimiter), msgHandler.SendMessage)
		api.PUT("/threads/:family/:id/read", msgHandler.MarkRead)

		// WebSocket info (only if Redis is available)
		if wsHandler != nil {
			api.GET("/online-users", wsHandler.GetOnlineUsers)
		}
	}

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Starting VereinHub server on %s (env: %s)", addr, cfg.Server.Env)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
