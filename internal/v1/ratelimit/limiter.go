// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/zkroom/relay/internal/v1/config"
	"github.com/zkroom/relay/internal/v1/logging"
	"github.com/zkroom/relay/internal/v1/metrics"
	"go.uber.org/zap"
)

// RateLimiter holds the rate limiter instances guarding the HTTP REST surface.
// The websocket join-room flow is deliberately not rate limited here beyond
// a per-IP connect check: once a client is inside a room its event traffic
// is bounded by room membership and client-side UI, not a token bucket.
type RateLimiter struct {
	apiRooms    *limiter.Limiter
	apiUpload   *limiter.Limiter
	wsConnect   *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
}

// NewRateLimiter creates a new RateLimiter instance. When redisClient is nil
// the limiter falls back to an in-process memory store (single-instance mode).
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	roomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}

	uploadRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIUpload)
	if err != nil {
		return nil, fmt.Errorf("invalid API upload rate: %w", err)
	}

	// Connection attempts are cheaper to make than REST calls, so they get
	// a more generous budget than room creation.
	wsRate, err := limiter.NewRateFromFormatted("300-M")
	if err != nil {
		return nil, fmt.Errorf("invalid websocket connect rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "relay:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(nil, "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(nil, "rate limiter using memory store (Redis disabled)")
	}

	return &RateLimiter{
		apiRooms:    limiter.New(store, roomsRate),
		apiUpload:   limiter.New(store, uploadRate),
		wsConnect:   limiter.New(store, wsRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// MiddlewareForEndpoint returns a Gin middleware enforcing the named endpoint's rate limit.
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter
		switch endpointType {
		case "rooms":
			limiterInstance = rl.apiRooms
		case "upload":
			limiterInstance = rl.apiUpload
		default:
			c.Next()
			return
		}

		key := c.ClientIP()
		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			// Fail open: availability over strict enforcement when the store is unreachable.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpointType, "ip").Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(endpointType).Inc()
		c.Next()
	}
}

// CheckWebSocket enforces the per-IP websocket connection-attempt rate limit.
// Returns true if the upgrade should proceed.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	lctx, err := rl.wsConnect.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "websocket rate limiter store failed", zap.Error(err))
		return true
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return false
	}

	return true
}
