package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds per-IP rate limiting settings for the three public
// surfaces: WebSocket connects, document uploads, and payment status polls.
type RateLimitConfig struct {
	WebSocketMax        int
	WebSocketExpiration time.Duration

	UploadMax        int
	UploadExpiration time.Duration

	PaymentCheckMax        int
	PaymentCheckExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// A chat page reconnects on drops; 20/min covers flaky networks
		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,

		// Uploads trigger a vision API call each, keep this tight
		UploadMax:        10,
		UploadExpiration: 1 * time.Minute,

		// The demo page polls every 5s, so 30/min with headroom
		PaymentCheckMax:        30,
		PaymentCheckExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_WEBSOCKET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WebSocketMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_UPLOAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.UploadMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_PAYMENT_CHECK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.PaymentCheckMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.WebSocketMax = 100
		config.UploadMax = 100
		config.PaymentCheckMax = 300
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// WebSocketRateLimiter limits WebSocket connection attempts per IP
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many connection attempts. Please wait before reconnecting.",
				"retry_after": int(config.WebSocketExpiration.Seconds()),
			})
		},
	})
}

// UploadRateLimiter limits document uploads per IP
func UploadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.UploadMax,
		Expiration: config.UploadExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "upload:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Upload limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Too many uploads. Please wait before trying again.",
				"retry_after": int(config.UploadExpiration.Seconds()),
			})
		},
	})
}

// PaymentCheckRateLimiter limits payment status polls per IP
func PaymentCheckRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.PaymentCheckMax,
		Expiration: config.PaymentCheckExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "paycheck:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Payment check limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Too many status checks. Please slow down.",
				"retry_after": int(config.PaymentCheckExpiration.Seconds()),
			})
		},
	})
}
