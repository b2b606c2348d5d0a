package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-core/internal/auth"
	"chat-core/internal/config"
	"chat-core/internal/db"
	"chat-core/internal/handlers"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

func main() {
	cfg := config.LoadServer()
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, "chat-core")
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	if reason := rabbitmq.PublisherNoopReason(publisher); reason != "" {
		log.Printf("event publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), reason)
	} else {
		log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	}
	observability.SetPublisher(publisher)

	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-core", cfg.Environment)

	tokens := auth.NewJWT(cfg.JWTSecret)
	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	unreadRepo := repositories.NewUnreadRepo(database)

	hub := ws.NewHub()
	chatHandler := handlers.NewChatHandler(userRepo, messageRepo, unreadRepo)
	chatWS := ws.NewChatSocketHandler(hub, messageRepo, unreadRepo, tokens, cfg.AuthDeadline)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-core"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/chat/users", authMiddleware, chatHandler.ListUsers)
	router.GET("/chat/unread", authMiddleware, chatHandler.ListUnread)
	router.GET("/chat/conversations", authMiddleware, chatHandler.ListConversations)

	router.GET("/ws/chat", chatWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, emitter, tokens, userRepo, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
