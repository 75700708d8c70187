package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatlink-service/internal/auth"
	"chatlink-service/internal/config"
	"chatlink-service/internal/db"
	"chatlink-service/internal/docstore"
	"chatlink-service/internal/grpcserver"
	"chatlink-service/internal/handlers"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/middleware"
	"chatlink-service/internal/notify"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/presence"
	"chatlink-service/internal/rabbitmq"
	"chatlink-service/internal/repositories"
	"chatlink-service/internal/services"
	"chatlink-service/internal/telemetry"
	"chatlink-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.SetPrefix(cfg.ServiceName)
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	userRepo := repositories.NewUserRepo(store)
	credRepo := repositories.NewCredentialRepo(store)
	chatRepo := repositories.NewChatRepo(store)
	messageRepo := repositories.NewMessageRepo(store)
	requestRepo := repositories.NewChatRequestRepo(store)
	pinRepo := repositories.NewPinnedRepo(store)
	notificationRepo := repositories.NewNotificationRepo(store)
	outboxRepo := repositories.NewOutboxRepo(store)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Env)

	dispatcher := notify.NewDispatcher(outboxRepo, notificationRepo, publisher, notify.Options{
		MaxAttempts:  cfg.OutboxMaxAttempts,
		PollInterval: cfg.OutboxPollInterval,
	})
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("notification dispatcher stopped: %v", err)
		}
	}()

	chatService := services.NewChatService(chatRepo, messageRepo, userRepo, dispatcher, services.NewHTTPImageProber(5*time.Second))
	requestService := services.NewChatRequestService(requestRepo, userRepo, chatService, dispatcher)
	pinService := services.NewPinnedService(pinRepo, chatRepo, messageRepo, userRepo)
	notificationService := services.NewNotificationService(notificationRepo)
	userService := services.NewUserService(userRepo, credRepo)
	authService := auth.NewService(userRepo, credRepo, cfg.JWTSecret, cfg.JWTTTL)

	presenceStore, closePresence, err := openPresence(ctx, cfg, userRepo)
	if err != nil {
		logger.Fatalf("open presence store: %v", err)
	}
	tracker := presence.NewTracker(presenceStore, cfg.HeartbeatInterval)

	hub := ws.NewHub(publisher)
	wsHandler := ws.NewHandler(hub, authService, ws.Views{
		Chats:         chatRepo,
		Messages:      messageRepo,
		Users:         userRepo,
		Requests:      requestRepo,
		Pins:          pinRepo,
		Notifications: notificationRepo,
		Summarizer:    chatService,
		Filler:        requestService,
		Presence:      tracker,
	}, originChecker(cfg.CORSOrigins))

	authHandler := handlers.NewAuthHandler(authService, tracker, hub, auditEmitter)
	userHandler := handlers.NewUserHandler(userService, tracker)
	requestHandler := handlers.NewChatRequestHandler(requestService, auditEmitter)
	chatHandler := handlers.NewChatHandler(chatService)
	pinHandler := handlers.NewPinHandler(pinService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestID())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	router.POST("/auth/signup", authHandler.SignUp)
	router.POST("/auth/login", authHandler.Login)
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(authService)

	router.POST("/auth/logout", authMiddleware, authHandler.Logout)
	router.POST("/auth/password", authMiddleware, authHandler.ChangePassword)

	router.GET("/me", authMiddleware, userHandler.Me)
	router.PATCH("/me", authMiddleware, userHandler.UpdateMe)
	router.GET("/users/search", authMiddleware, userHandler.Search)
	router.GET("/users/:user_id", authMiddleware, userHandler.GetUser)
	router.GET("/users/:user_id/presence", authMiddleware, userHandler.GetPresence)

	router.POST("/chat-requests", authMiddleware, requestHandler.Send)
	router.GET("/chat-requests/incoming", authMiddleware, requestHandler.Incoming)
	router.GET("/chat-requests/sent", authMiddleware, requestHandler.Sent)
	router.POST("/chat-requests/:request_id/accept", authMiddleware, requestHandler.Accept)
	router.POST("/chat-requests/:request_id/decline", authMiddleware, requestHandler.Decline)
	router.DELETE("/chat-requests/:request_id", authMiddleware, requestHandler.Cancel)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/self", authMiddleware, chatHandler.StartSelfChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.PATCH("/chats/:chat_id/messages/:message_id", authMiddleware, chatHandler.EditMessage)

	router.GET("/chats/:chat_id/pins", authMiddleware, pinHandler.ListChatPins)
	router.POST("/chats/:chat_id/pins", authMiddleware, pinHandler.PinMessage)
	router.GET("/pins", authMiddleware, pinHandler.ListMine)
	router.DELETE("/pins/:pin_id", authMiddleware, pinHandler.Unpin)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.POST("/notifications/:notification_id/read", authMiddleware, notificationHandler.MarkRead)
	router.POST("/notifications/read-all", authMiddleware, notificationHandler.MarkAllRead)

	handlers.RegisterDebugRoutes(router, auditEmitter, publisher, cfg.Env != "production")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		ExposedHeaders:   []string{observability.HeaderRequestID},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", observability.HeaderRequestID, observability.HeaderDeviceID},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := grpcserver.New(cfg.ServiceName)
	go func() {
		if err := healthServer.ListenAndServe(cfg.GRPCAddr); err != nil {
			logger.Errorf("grpc server error: %v", err)
		}
	}()

	go func() {
		logger.Infof("http listening on %s (store=%s presence=%s publisher=%s)",
			server.Addr, cfg.StoreDriver, cfg.PresenceDriver, rabbitmq.PublisherMode(publisher))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()
	healthServer.SetServing(true)

	<-ctx.Done()
	logger.Infof("shutting down")
	healthServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	healthServer.Stop()
	closePresence()
	if err := publisher.Close(); err != nil {
		logger.Errorf("publisher close: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("store close: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Errorf("tracing shutdown: %v", err)
	}
}

func openStore(cfg config.Config) (docstore.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Infof("using in-memory store; data is lost on restart")
		return docstore.NewMemory(), nil
	}
	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	store, err := docstore.NewPostgres(database, cfg.DatabaseDSN)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return store, nil
}

func openPresence(ctx context.Context, cfg config.Config, users repositories.UserRepository) (presence.Store, func(), error) {
	if cfg.PresenceDriver != config.PresenceRedis {
		return presence.NewUserDocStore(users), func() {}, nil
	}
	rdb, err := presence.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Errorf("redis close: %v", err)
		}
	}
	return presence.NewRedisStore(rdb, 3*cfg.HeartbeatInterval), closeFn, nil
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
