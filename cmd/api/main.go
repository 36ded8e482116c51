package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velvela/shotcraft/internal/api"
	"github.com/velvela/shotcraft/internal/config"
	"github.com/velvela/shotcraft/internal/db"
	"github.com/velvela/shotcraft/internal/models"
	"github.com/velvela/shotcraft/internal/pipeline"
	"github.com/velvela/shotcraft/internal/queue"
	"github.com/velvela/shotcraft/internal/services"
	"github.com/velvela/shotcraft/internal/storage"
	"github.com/velvela/shotcraft/internal/store"
	"github.com/velvela/shotcraft/internal/worker"
)

func main() {
	log.Println("Starting Shotcraft API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Project store shares the queue's Redis connection
	projectStore, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to project store: %v", err)
	}
	defer projectStore.Close()
	log.Println("Connected to project store")

	// Optional Postgres audit trail for render events
	var auditSink pipeline.AuditSink
	var auditView api.RenderLogReader
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to ensure audit schema: %v", err)
		}
		auditSink = database
		auditView = database
		log.Println("Render-event audit trail enabled")
	}

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Initialize generation services
	openaiSvc := services.NewOpenAIService(cfg.OpenAIKey)
	geminiSvc := services.NewGeminiService(cfg.GeminiKey)

	videos := map[models.VideoModel]pipeline.VideoClient{
		models.VideoModelVeo: &pipeline.VeoClient{Service: services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)},
	}
	log.Printf("Veo video generation enabled (model: %s)", cfg.VeoModel)

	if cfg.XAIEnabled {
		videos[models.VideoModelGrok] = &pipeline.GrokClient{Service: services.NewGrokService(cfg.XAIAPIKey)}
		log.Println("xAI Grok Imagine Video generation enabled")
	}

	pipe := pipeline.New(projectStore, geminiSvc, videos, openaiSvc, stor, pipeline.Options{
		AuditSink:   auditSink,
		AspectRatio: cfg.AspectRatio,
		Pacer:       pipeline.NewIntervalPacer(time.Duration(cfg.BatchIntervalSec) * time.Second),
	})

	// Create API handler
	handler := api.NewHandler(projectStore, q, pipe, openaiSvc, auditView)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
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

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		w := worker.New(q, pipe)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
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

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
