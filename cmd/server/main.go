package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"registerkaro/internal/config"
	"registerkaro/internal/database"
	"registerkaro/internal/handlers"
	"registerkaro/internal/jobs"
	"registerkaro/internal/logging"
	"registerkaro/internal/middleware"
	"registerkaro/internal/services"
	"registerkaro/internal/vision"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting RegisterKaro funnel server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// MongoDB session mirror is optional. Without it sessions live in memory
	// only, which is fine for a demo deployment.
	var mirror services.SessionMirror
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️  MongoDB unavailable, running memory-only: %v", err)
		} else {
			initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := mongoDB.Initialize(initCtx); err != nil {
				log.Printf("⚠️  MongoDB index setup failed: %v", err)
			}
			cancel()
			mirror = database.NewSessionRepository(mongoDB)
			defer mongoDB.Close(context.Background())
			log.Println("✅ MongoDB session mirror enabled")
		}
	} else {
		log.Println("ℹ️  MONGODB_URI not set, sessions are memory-only")
	}

	// Core services
	store := services.NewSessionStore(cfg.SessionTTL, mirror)
	reconciler := services.NewReconciler(store)
	connManager := services.NewConnectionManager()

	chatService := services.NewChatService(
		cfg.CompletionBaseURL,
		cfg.CompletionAPIKey,
		cfg.CompletionModel,
		cfg.TranscriptContextTurns,
		&http.Client{Timeout: cfg.CompletionTimeout},
	)

	visionService := vision.NewService(
		cfg.CompletionBaseURL,
		cfg.CompletionAPIKey,
		cfg.VisionModel,
		&http.Client{Timeout: cfg.VisionTimeout},
	)
	if visionService.Simulated() {
		log.Println("ℹ️  No vision API key, document verification runs simulated")
	}

	paymentService := services.NewPaymentService(cfg.DodoAPIKey, cfg.DodoEnvironment, cfg.DodoProductIDs)

	// Handlers
	wsHandler := handlers.NewWebSocketHandler(connManager, store, reconciler, chatService, cfg.FollowUpBaseDelay, cfg.FollowUpMax)
	uploadHandler := handlers.NewUploadHandler(cfg.UploadDir, store, reconciler, connManager, visionService, paymentService)
	paymentHandler := handlers.NewPaymentHandler(store, reconciler, connManager, paymentService)
	healthHandler := handlers.NewHealthHandler(connManager, store)

	// Background jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	evictionJob := jobs.NewSessionEvictionJob(store, connManager, cfg.SessionTTL)
	if err := scheduler.Register("session-eviction", 10*time.Minute, evictionJob.Run); err != nil {
		log.Printf("⚠️  %v", err)
	}
	reconciliationJob := jobs.NewPaymentReconciliationJob(store, connManager, paymentService)
	if err := scheduler.Register("payment-reconciliation", time.Minute, reconciliationJob.Run); err != nil {
		log.Printf("⚠️  %v", err)
	}
	scheduler.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "RegisterKaro Funnel v1.0",
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    12 * 1024 * 1024, // documents up to 10MB plus multipart overhead
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("registerkaro")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowedOrigins != "*",
	}))

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: WS=%d/min, Upload=%d/min, PaymentCheck=%d/min",
		rateLimitConfig.WebSocketMax, rateLimitConfig.UploadMax, rateLimitConfig.PaymentCheckMax)

	// Routes
	app.Get("/health", healthHandler.Health)
	app.Post("/upload-document", middleware.UploadRateLimiter(rateLimitConfig), uploadHandler.Upload)
	app.Get("/check-payment/:payment_id", middleware.PaymentCheckRateLimiter(rateLimitConfig), paymentHandler.CheckPayment)

	// WebSocket route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("client_ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws", middleware.WebSocketRateLimiter(rateLimitConfig))
	wsConfig := websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}
	app.Get("/ws", websocket.New(wsHandler.Handle, wsConfig))

	// Demo chat page
	app.Static("/static", "./static")
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendFile("./static/index.html")
	})

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		// Flush every session to the mirror before the process exits
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			log.Printf("⚠️ Error flushing session store: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
