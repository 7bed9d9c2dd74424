package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwmail/taskgrab/config"
	"github.com/johnwmail/taskgrab/handlers"
	"github.com/johnwmail/taskgrab/internal/exchange"
	"github.com/johnwmail/taskgrab/internal/ws"
	"github.com/johnwmail/taskgrab/models"
	"github.com/johnwmail/taskgrab/storage"
	"github.com/johnwmail/taskgrab/utils"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

func main() {
	// Print version/build info at startup
	log.Printf("TASKGRAB Version: %s", Version)
	log.Printf("Build Time:      %s", BuildTime)
	log.Printf("Commit Hash:     %s", CommitHash)

	// Load configuration
	cfg := config.LoadConfig()
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] Loaded config: %+v", cfg)
	}

	// Initialize the durable backing store
	store, err := storage.NewStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s storage: %v", cfg.StorageBackend, err)
	}
	log.Printf("Using %s storage backend", cfg.StorageBackend)

	// Wire the notification bus and the exchange. The hub needs the
	// exchange for snapshots and the exchange needs the hub for
	// broadcasts, so the hub gets a closure resolved after construction.
	var ex *exchange.Exchange
	hub := ws.New(func() []models.PublicListing { return ex.Snapshot() })
	ex = exchange.New(store, hub, cfg.DefaultTTL)

	// Rebuild the index from the durable store: live listings get their
	// remaining TTL, stale ones are purged.
	records, err := store.List()
	if err != nil {
		log.Fatalf("Failed to read back persisted listings: %v", err)
	}
	ex.Restore(records)

	// Install configured permanent official listings
	officials, err := loadOfficialSpecs(cfg.OfficialFile)
	if err != nil {
		log.Fatalf("Failed to load official listings: %v", err)
	}
	if err := ex.InstallOfficial(officials); err != nil {
		log.Fatalf("Failed to install official listings: %v", err)
	}

	router := setupRouter(ex, hub)
	runHTTPServer(router, cfg, ex, hub, store)
}

// loadOfficialSpecs reads the permanent listing definitions from a JSON
// file. An empty path means no officials.
func loadOfficialSpecs(path string) ([]exchange.OfficialSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []exchange.OfficialSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("invalid official listings file %s: %w", path, err)
	}
	return specs, nil
}

// setupRouter creates and configures the Gin router
func setupRouter(ex *exchange.Exchange, hub *ws.Hub) *gin.Engine {
	listingHandler := handlers.NewListingHandler(ex)
	systemHandler := handlers.NewSystemHandler()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(jsonRecovery())
	router.Use(gin.Recovery())

	// Core API routes
	router.POST("/api/post", listingHandler.Create)
	router.POST("/api/grab", listingHandler.Claim)
	router.POST("/api/renew", listingHandler.Renew)
	router.POST("/api/cancel", listingHandler.Cancel)
	router.GET("/api/listings", listingHandler.List)

	// Subscription channel
	router.GET("/ws", gin.WrapH(hub))

	// System routes
	router.GET("/health", systemHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Global 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so API clients can parse error responses.
func jsonRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				// Log the panic for diagnostics
				log.Printf("[PANIC] %v", r)
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// runHTTPServer starts the HTTP server and handles graceful shutdown
func runHTTPServer(router *gin.Engine, cfg *config.Config, ex *exchange.Exchange, hub *ws.Hub, store storage.ListingStore) {
	// Ensure cleanup on exit
	defer func() {
		ex.Close()
		hub.Close()
		if err := store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting taskgrab server on port %d", cfg.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	} else {
		log.Println("Server shutdown complete")
	}
}
