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
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"session-service/internal/db"
	"session-service/internal/handlers"
	"session-service/internal/logger"
	"session-service/internal/middleware"
	"session-service/internal/observability"
	"session-service/internal/presencestore"
	"session-service/internal/rabbitmq"
	"session-service/internal/repositories"
	"session-service/internal/session"
	"session-service/internal/telemetry"
	"session-service/internal/ws"

	authpkg "session-service/internal/auth"
)

func main() {
	mode := getEnv("GIN_MODE", gin.DebugMode)
	if err := logger.Init(logger.Config{
		Level:    getEnv("LOG_LEVEL", "info"),
		FileName: getEnv("LOG_FILE", "logs/session-service.log"),
	}, mode); err != nil {
		panic(err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, getEnv("OTLP_GRPC_ADDR", ""), "session-service")
	if err != nil {
		zap.L().Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect()
	if err != nil {
		zap.L().Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	var presence presencestore.Store = presencestore.NewMemoryStore()
	if redisAddr := getEnv("REDIS_ADDR", ""); redisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			zap.L().Warn("redis unreachable, presence stays in-memory", zap.Error(err))
		} else {
			presence = presencestore.NewRedisStore(client)
			defer client.Close()
		}
	}

	amqpURL := getEnv("AMQP_URL", "")
	if wsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("WS_EVENTS_EXCHANGE", "ws_events")); err != nil {
		zap.L().Warn("ws event publishing disabled", zap.Error(err))
	} else {
		observability.SetPublisher(wsPublisher)
		defer wsPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "audit"))
	defer auditPublisher.Close()
	zap.L().Info("audit publisher ready", zap.String("mode", rabbitmq.PublisherMode(auditPublisher)))
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit_log.sessions", "session-service", getEnv("ENVIRONMENT", "dev"))

	verifier := authpkg.NewVerifier(getEnv("JWT_SECRET", "dev-secret-change-me"))
	messageRepo := repositories.NewMessageRepo(database)

	registry := session.NewRegistry(presence)
	hub := session.NewHub(registry)
	go hub.Run(ctx)

	relay := session.NewRelay(registry, hub, messageRepo, 5*time.Second)

	sessionHandler := handlers.NewSessionHandler(relay, hub, presence)
	wsHandler := ws.NewHandler(registry, hub, relay, verifier, emitter)

	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("session-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/sessions/:session_id/messages", authMiddleware, sessionHandler.GetHistory)
	router.GET("/sessions/:session_id/online", authMiddleware, sessionHandler.GetOnline)
	router.GET("/presence/online", authMiddleware, sessionHandler.GetGlobalOnline)
	router.GET("/ws/sessions", wsHandler.Handle)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, getEnv("DEBUG_ROUTES", "") == "true")

	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8086"),
		Handler: router,
	}

	go func() {
		zap.L().Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	// Let every room see its members leave before the transports die.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zap.L().Warn("tracing shutdown", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
