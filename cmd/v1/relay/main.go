// Command relay runs the zero-knowledge chat relay: the websocket event
// channel, its REST companions (room creation, upload), and the process's
// health/metrics surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zkroom/relay/internal/v1/auth"
	"github.com/zkroom/relay/internal/v1/bus"
	"github.com/zkroom/relay/internal/v1/coalescer"
	"github.com/zkroom/relay/internal/v1/config"
	"github.com/zkroom/relay/internal/v1/health"
	"github.com/zkroom/relay/internal/v1/httpapi"
	"github.com/zkroom/relay/internal/v1/keepalive"
	"github.com/zkroom/relay/internal/v1/logging"
	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/middleware"
	"github.com/zkroom/relay/internal/v1/persistence"
	"github.com/zkroom/relay/internal/v1/ratelimit"
	"github.com/zkroom/relay/internal/v1/registry"
	"github.com/zkroom/relay/internal/v1/roomstore"
	"github.com/zkroom/relay/internal/v1/scheduler"
	"github.com/zkroom/relay/internal/v1/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal in deployed environments.
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()

	persist, closePersist := mustPersistenceAdapter(ctx, cfg)
	defer closePersist()

	sched := scheduler.New()
	defer sched.Stop()

	clients := registry.New()

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer busService.Close()
	}

	var rooms *roomstore.Store
	coal := coalescer.New(cfg.CoalesceWindow, func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := persist.Upsert(saveCtx, rooms.All()); err != nil {
			logging.Error(saveCtx, "failed to persist room snapshot", zap.Error(err))
		}
	})
	defer coal.Flush()

	rooms = roomstore.New(coal.Dirty)
	restoreRooms(ctx, persist, rooms, sched, coal)

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	hub := session.NewHub(rooms, clients, sched, coal, busService,
		auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{cfg.AllowedOrigins}),
		rateLimiter, cfg.RecentMessageLimit)

	// Cross-process fan-out: broadcasts published by other nodes are
	// re-delivered to this node's local members. A no-op without Redis.
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	busService.SubscribeAll(busCtx, nil, hub.DeliverRemote)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{cfg.AllowedOrigins})
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, middleware.HeaderXCorrelationID, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWs)
	router.GET("/ping", httpapi.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(busService, persistenceChecker(cfg, persist))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	restAuth := restAuthMiddleware(ctx, cfg)
	roomsHandler := httpapi.NewRoomsHandler(rooms)
	uploadHandler := httpapi.NewUploadHandler(cfg.UploadDir, cfg.UploadMaxSize)
	pagesHandler := httpapi.NewPagesHandler(cfg.StaticDir)

	router.GET("/", pagesHandler.Landing)
	router.GET("/room/:id", pagesHandler.Room)

	api := router.Group("/api")
	{
		api.POST("/rooms", rateLimiter.MiddlewareForEndpoint("rooms"), restAuth, roomsHandler.Create)
		api.GET("/rooms/:id", roomsHandler.Get)
		api.POST("/upload", rateLimiter.MiddlewareForEndpoint("upload"), restAuth, uploadHandler.Upload)
	}
	router.GET("/uploads/:name", uploadHandler.Serve)

	if cfg.PublicURL != "" {
		prober := keepalive.New(cfg.PublicURL, cfg.PingInterval)
		proberCtx, cancelProber := context.WithCancel(context.Background())
		defer cancelProber()
		go prober.Run(proberCtx)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "relay server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	coal.Flush()
	logging.Info(ctx, "relay server exited")
}

// mustPersistenceAdapter selects Firestore when a service account is
// configured, falling back to the local snapshot file otherwise. The
// returned close func is always safe to call, even for the local adapter.
func mustPersistenceAdapter(ctx context.Context, cfg *config.Config) (persistence.Adapter, func()) {
	if cfg.FirebaseServiceAccount != "" {
		raw, err := os.ReadFile(cfg.FirebaseServiceAccount)
		if err != nil {
			// Allow the env var to carry inline JSON instead of a path.
			raw = []byte(cfg.FirebaseServiceAccount)
		}
		adapter, err := persistence.NewFirestoreAdapter(ctx, cfg.FirebaseProjectID, raw)
		if err != nil {
			logging.Fatal(ctx, "failed to initialize firestore adapter", zap.Error(err))
		}
		return adapter, func() { _ = adapter.Close() }
	}

	adapter := persistence.NewLocalAdapter(cfg.SnapshotPath)
	return adapter, func() {}
}

func persistenceChecker(cfg *config.Config, adapter persistence.Adapter) health.PersistenceChecker {
	if cfg.FirebaseServiceAccount == "" {
		return nil
	}
	return adapter
}

// restoreRooms loads persisted rooms at startup and re-arms the
// Disappearance Scheduler for every message whose disappear_at is still in
// the future. Messages that already elapsed were redacted in-line by
// persistence.RoomFromDoc while loading.
func restoreRooms(ctx context.Context, persist persistence.Adapter, rooms *roomstore.Store, sched *scheduler.Scheduler, coal *coalescer.Coalescer) {
	loaded, err := persist.LoadAll(ctx)
	if err != nil {
		logging.Error(ctx, "failed to load persisted rooms", zap.Error(err))
		return
	}
	rooms.Load(loaded)

	for _, room := range loaded {
		for _, msg := range room.Messages() {
			if msg.DisappearAt == nil || msg.Deleted {
				continue
			}
			messageID, roomID, disappearAt := msg.ID, room.ID, *msg.DisappearAt
			sched.Schedule(messageID, disappearAt, func() {
				if r, ok := rooms.Get(roomID); ok && r.Redact(messageID) {
					coal.Dirty()
				}
			})
		}
	}

	metrics.ActiveRooms.Set(float64(rooms.Count()))
	logging.Info(ctx, "restored rooms from persistence", zap.Int("count", len(loaded)))
}

// restAuthMiddleware gates the room-creation and upload HTTP endpoints
// behind a bearer token. It never applies to the websocket join flow —
// join-room carries no credential check. The concrete
// validator is chosen from whichever credential source is configured:
// Auth0 JWKS when AUTH0_DOMAIN is set, otherwise a shared-secret HMAC
// validator keyed on JWT_SECRET.
func restAuthMiddleware(ctx context.Context, cfg *config.Config) gin.HandlerFunc {
	if cfg.SkipAuth {
		logging.Warn(ctx, "REST auth disabled: set JWT_SECRET or AUTH0_DOMAIN to enable it")
		return func(c *gin.Context) { c.Next() }
	}

	var validator auth.TokenValidator
	switch {
	case cfg.Auth0Domain != "":
		v, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			logging.Fatal(ctx, "failed to initialize auth0 validator", zap.Error(err))
		}
		validator = v
	case cfg.JWTSecret != "":
		validator = auth.NewHMACValidator(cfg.JWTSecret)
	case cfg.GoEnv != "production":
		// Auth was explicitly requested (SkipAuth is false here) but no
		// credential source is configured: accept any token and extract
		// its claims as-is, for local development against a frontend that
		// already mints its own unsigned-for-dev bearer tokens.
		logging.Warn(ctx, "REST auth using MockValidator: accepting any bearer token (non-production only)")
		validator = &auth.MockValidator{}
	default:
		logging.Fatal(ctx, "REST auth requested but no JWT_SECRET or AUTH0_DOMAIN configured in production")
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		if _, err := validator.ValidateToken(header[len(prefix):]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Next()
	}
}
