package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aidobe/assembly/internal/api"
	"github.com/aidobe/assembly/internal/cache"
	"github.com/aidobe/assembly/internal/config"
	"github.com/aidobe/assembly/internal/db"
	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/memstore"
	"github.com/aidobe/assembly/internal/storage"
)

func main() {
	log.Println("Starting Assembly API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to the job store — in-memory fallback for local development
	var store jobs.JobStore
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		store = database
		log.Println("Connected to database")
	} else {
		store = memstore.New()
		log.Println("WARNING: No DATABASE_URL set — using in-memory job store (dev mode)")
	}

	// Status cache is optional — skipped entirely when REDIS_URL is unset
	var statusCache *cache.Cache
	if cfg.RedisURL != "" {
		statusCache, err = cache.New(cfg.RedisURL, time.Duration(cfg.StatusCacheTTLMs)*time.Millisecond)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer statusCache.Close()
		log.Printf("Status cache enabled (ttl=%dms)", cfg.StatusCacheTTLMs)
	} else {
		log.Println("Status cache disabled — no REDIS_URL set")
	}

	// Initialize storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Println("Initialized object storage")

	// Orchestration core: lifecycle manager + render dispatcher behind the
	// queue facade
	lifecycle := jobs.NewLifecycle(store)

	dispatcher := jobs.NewDispatcher(jobs.DispatcherConfig{
		Endpoint:    cfg.RendererURL,
		APIKey:      cfg.RendererAPIKey,
		CallbackURL: cfg.RendererCallbackURL(),
	}, stor)

	queue := jobs.NewQueue(store, lifecycle, dispatcher, statusCache)

	if cfg.RendererURL == "" {
		log.Println("WARNING: No RENDERER_URL set — enqueue will fail until the renderer is configured")
	}
	if cfg.CallbackBaseURL == "" {
		log.Println("WARNING: No CALLBACK_BASE_URL set — enqueue will fail until the callback URL is configured")
	}
	if cfg.WebhookSecret == "" {
		log.Println("WARNING: No WEBHOOK_SECRET set — renderer callbacks are unverified (dev mode)")
	}

	// Create API handler
	handler := api.NewHandler(queue, lifecycle, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		WebhookSecret:      cfg.WebhookSecret,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
