package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seopulse/seopulse/internal/api"
	"github.com/seopulse/seopulse/internal/config"
	"github.com/seopulse/seopulse/internal/credentials"
	"github.com/seopulse/seopulse/internal/database"
	"github.com/seopulse/seopulse/internal/events"
	"github.com/seopulse/seopulse/internal/jobs"
	"github.com/seopulse/seopulse/internal/notification"
	"github.com/seopulse/seopulse/internal/oauth"
	"github.com/seopulse/seopulse/internal/provider"
	appsync "github.com/seopulse/seopulse/internal/sync"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get underlying SQL database for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := database.NewStore(db)
	credStore := credentials.NewGormStore(db)

	// OAuth provider registry and token refresher
	registry := oauth.NewRegistry(cfg)
	refresher := oauth.NewRefresher(registry, credStore)
	oauth.StartCleanupJob(db)

	// Provider API clients
	retry := provider.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Sync.MaxAttempts
	gscClient := provider.NewGscClient(cfg.Sync.RequestTimeout, retry)
	ga4Client := provider.NewGa4Client(cfg.Sync.RequestTimeout, retry)

	// Initialize WebSocket hub
	hub := events.NewHub(cfg.JWTSecret, cfg.CORSOrigins)
	go hub.Run()

	// Initialize notification dispatcher
	dispatcher := notification.NewDispatcher(db)

	// Sync orchestrator
	orchestrator := appsync.NewOrchestrator(store, credStore, refresher, store, store, gscClient, ga4Client, cfg.Sync.DefaultDays)
	orchestrator.SetBroadcaster(hub)
	orchestrator.SetNotifier(dispatcher)

	// Initialize job scheduler
	scheduler := jobs.NewScheduler(db, orchestrator)
	scheduler.Start()
	defer scheduler.Stop()

	// Setup API router
	router := api.NewRouter(cfg, db, store, credStore, registry, orchestrator, hub, dispatcher)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
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
