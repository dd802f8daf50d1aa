package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"messaging-service/internal/access"
	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	grpcserver "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/pagination"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Env: cfg.Logging.Env, Level: cfg.Logging.Level, Service: cfg.Service})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Service, cfg.Logging.Env, cfg.Tracing.Endpoint, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(ctx, rabbitmq.Options{
		URL:         cfg.AMQP.URL,
		Exchange:    cfg.AMQP.Exchange,
		DialRetries: cfg.AMQP.DialRetries,
	}, logger)
	logger.Info("audit publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.RoutingKey, cfg.Service, cfg.Logging.Env, logger)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	checker := access.NewChecker(chatRepo, messageRepo)
	store := service.NewMessageStore(chatRepo, messageRepo, userRepo, checker, audit,
		service.Options{MaxContentLength: cfg.Messages.MaxContentLength}, logger)
	pages := pagination.NewEngine(chatRepo, messageRepo, checker, logger)

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	registry := presence.NewRegistry()
	hub := ws.NewHub()
	dispatcher := ws.NewDispatcher(hub, registry, checker, logger)
	lifecycle := ws.NewLifecycle(ws.Deps{
		Verifier:   verifier,
		Store:      store,
		Access:     checker,
		Presence:   registry,
		Hub:        hub,
		Dispatcher: dispatcher,
		Audit:      audit,
		Logger:     logger,
	}, ws.Options{MaxInflight: cfg.WS.MaxInflight})
	wsHandler := ws.NewHandler(lifecycle, ws.ClientOptions{
		SendBuffer:   cfg.WS.SendBuffer,
		PingInterval: cfg.PingInterval(),
		PongWait:     cfg.PongWait(),
		WriteWait:    cfg.WriteWait(),
		MaxFrameSize: cfg.WS.MaxFrameSize,
	}, cfg.AllowedOrigins())

	chatHandler := handlers.NewChatHandler(pages, store)

	if cfg.Logging.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.Service),
		middleware.RequestID(),
		middleware.AccessLog(logger),
		observability.HTTPMetricsMiddleware(),
		gin.Recovery(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, registry, cfg.Debug.Enabled)

	authMiddleware := middleware.AuthMiddleware(verifier)
	router.GET("/chats/inbox", authMiddleware, chatHandler.Inbox)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.History)
	router.GET("/ws", wsHandler.Handle)

	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	health := grpcserver.NewHealth(database, cfg.Service, 10*time.Second, logger)
	grpcServer := grpcserver.NewServer(health)
	grpcListener, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	go health.Run(ctx)
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("grpc server error", zap.Error(err))
			stop()
		}
	}()
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	err = multierr.Combine(err,
		publisher.Close(),
		database.Close(),
		shutdownTracing(shutdownCtx),
	)
	if err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
}
